package dispatch

import (
	"bufio"
	"log"
	"net"
	"strconv"

	"github.com/technosupport/airfield-guard/internal/coords"
	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/model"
)

// InferenceServer owns the inference TCP channel: object_detected/
// marker_detected/map_calibration events in, set_mode_object command out,
// gated by the InferenceLifecycle state machine so the pipeline never
// sees object events before calibration is acknowledged.
type InferenceServer struct {
	lifecycle *InferenceLifecycle
	transform *coords.Transformer
	pipeline  *Pipeline
	hub       *fanout.Hub
}

// NewInferenceServer wires an InferenceServer.
func NewInferenceServer(lifecycle *InferenceLifecycle, transform *coords.Transformer, pipeline *Pipeline, hub *fanout.Hub) *InferenceServer {
	return &InferenceServer{lifecycle: lifecycle, transform: transform, pipeline: pipeline, hub: hub}
}

// HandleConn runs the read loop for the inference worker connection. Only
// one inference worker is expected at a time; a disconnect drops the
// lifecycle back to Disconnected and the next connection starts
// calibration over, per spec.md §4.8/§4.10.
func (s *InferenceServer) HandleConn(conn net.Conn) {
	s.lifecycle.OnConnect()
	defer s.lifecycle.OnDisconnect()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 65536), 1<<20)
	for scanner.Scan() {
		msg, err := ParseInbound(scanner.Bytes())
		if err != nil {
			continue // malformed line: drop, keep session, per spec.md §7
		}
		s.handle(conn, msg)
	}
}

func (s *InferenceServer) handle(conn net.Conn, msg Inbound) {
	switch msg.Kind {
	case KindMapCalibration:
		s.transform.SetCalibration(model.Calibration{
			CameraID:   msg.CameraID,
			Homography: msg.Matrix,
			Scale:      msg.Scale,
		})
		if s.lifecycle.OnCalibration(msg.CameraID) {
			if _, err := conn.Write(EncodeSetModeObject()); err != nil {
				log.Printf("[dispatch] failed to send set_mode_object: %v", err)
			}
		}

	case KindResponse:
		if msg.Command == "set_mode_object" && msg.Result == "ok" {
			s.lifecycle.OnModeObjectAcked()
			s.hub.BroadcastControllersAndMirror(fanout.EncodeMapCalibrated())
		}

	case KindObjectDetected:
		if !s.lifecycle.Operating() {
			return
		}
		frameID, err := strconv.ParseInt(msg.ImgID, 10, 64)
		if err != nil {
			return
		}
		s.pipeline.Submit(msg.CameraID, frameID, toDetections(msg.ObjectDetections, msg.CameraID, frameID))

	case KindMarkerDetected:
		// ignored at steady state, per spec.md §4.8
	}
}

func toDetections(raw []wireDetection, cameraID string, frameID int64) []model.Detection {
	out := make([]model.Detection, 0, len(raw))
	for _, w := range raw {
		out = append(out, model.Detection{
			ObjectID:   w.ObjectID,
			CameraID:   cameraID,
			FrameID:    frameID,
			Class:      model.ObjectClass(w.Class),
			BBox:       model.BBox{X1: w.BBox[0], Y1: w.BBox[1], X2: w.BBox[2], Y2: w.BBox[3]},
			Confidence: w.Confidence,
			Pose:       model.Pose(w.Pose),
		})
	}
	return out
}
