// verify-pipeline is a manual smoke-dial script, not a `go test`: it dials
// a running Main Server's frame (UDP 4000), inference (TCP 5000) and
// controller (TCP 5100) sockets and walks through spec.md's
// "calibration then first hazard" scenario, printing the inference reply
// and the first three controller lines it reads back. Run it against a
// live instance (cmd/server) to eyeball MR_CA:OK, ME_MC and ME_OD. With
// the shipped config/areas.yaml the FOD lands in TWY_A, not a runway, so
// no ME_RA is sent; its frame cannot be cropped, so no ME_FD follows
// either (see fakeJPEG).
package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	frameUDPAddr      = "127.0.0.1:4000"
	inferenceTCPAddr  = "127.0.0.1:5000"
	controllerTCPAddr = "127.0.0.1:5100"
)

func main() {
	ctrl, err := net.Dial("tcp", controllerTCPAddr)
	must(err)
	defer ctrl.Close()
	ctrlReader := bufio.NewReader(ctrl)

	fmt.Fprintln(ctrl, "MC_CA")
	fmt.Println("controller subscribed to camera A, waiting for events...")

	inf, err := net.Dial("tcp", inferenceTCPAddr)
	must(err)
	defer inf.Close()
	infReader := bufio.NewReader(inf)

	send(inf, `{"type":"event","event":"map_calibration","camera_id":"A","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}`)
	send(inf, `{"type":"event","event":"map_calibration","camera_id":"B","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}`)

	line, err := infReader.ReadString('\n')
	must(err)
	fmt.Println("inference <- ", line)
	send(inf, `{"type":"response","command":"set_mode_object","result":"ok"}`)

	udp, err := net.Dial("udp", frameUDPAddr)
	must(err)
	defer udp.Close()
	frameID := time.Now().UnixNano()
	datagram := fmt.Sprintf("A:%d:", frameID)
	_, err = udp.Write(append([]byte(datagram), fakeJPEG()...))
	must(err)

	send(inf, fmt.Sprintf(`{"type":"event","event":"object_detected","camera_id":"A","img_id":"%d","detections":[{"object_id":1001,"class":"FOD","bbox":[400,300,440,340],"confidence":0.9}]}`, frameID))

	ctrl.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 3; i++ {
		reply, err := ctrlReader.ReadString('\n')
		if err != nil {
			fmt.Println("controller read stopped:", err)
			break
		}
		fmt.Println("controller <- ", reply)
	}
}

func send(conn net.Conn, line string) {
	fmt.Fprintln(conn, line)
}

// fakeJPEG returns a truncated JPEG SOF0 header naming 1920x1080. It does
// not decode: internal/framebus.decodeDimensions reports 0x0 for it (the
// pipeline then uses its 1920x1080 default), and cropping the detection
// from it fails, so the server sends no ME_FD for this frame.
func fakeJPEG() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, 0xFF, 0xD8, 0xFF, 0xC0, 0x00, 0x11, 0x08)
	dims := make([]byte, 4)
	binary.BigEndian.PutUint16(dims[0:2], 1080)
	binary.BigEndian.PutUint16(dims[2:4], 1920)
	buf = append(buf, dims...)
	buf = append(buf, 0xFF, 0xD9)
	return buf
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
