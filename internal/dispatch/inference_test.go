package dispatch

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/airfield-guard/internal/coords"
	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/model"
)

func newInferenceFixture(t *testing.T) (*InferenceLifecycle, net.Conn, *fanout.Hub) {
	t.Helper()
	lifecycle := NewInferenceLifecycle()
	transform := coords.New(960, 720, 1800, 1350)
	hub := fanout.NewHub()
	// pipeline is nil here: these tests only exercise calibration/response
	// handling, which never touches the pipeline.
	s := NewInferenceServer(lifecycle, transform, nil, hub)

	serverConn, clientConn := net.Pipe()
	go s.HandleConn(serverConn)
	t.Cleanup(func() { clientConn.Close() })
	return lifecycle, clientConn, hub
}

func TestInferenceCalibrationBothCamerasSendsSetModeObject(t *testing.T) {
	lifecycle, conn, _ := newInferenceFixture(t)

	_, err := conn.Write([]byte(`{"type":"event","event":"map_calibration","camera_id":"A","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}` + "\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.NotEqual(t, "operating", lifecycle.State().String())

	_, err = conn.Write([]byte(`{"type":"event","event":"map_calibration","camera_id":"B","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}` + "\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), `"command":"set_mode_object"`)
}

func TestInferenceModeObjectAckMovesToOperating(t *testing.T) {
	lifecycle, conn, _ := newInferenceFixture(t)

	_, err := conn.Write([]byte(`{"type":"event","event":"map_calibration","camera_id":"A","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}` + "\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"type":"event","event":"map_calibration","camera_id":"B","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}` + "\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	require.NoError(t, err)

	_, err = conn.Write([]byte(`{"type":"response","command":"set_mode_object","result":"ok"}` + "\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	assert.True(t, lifecycle.Operating())
}

// TestInferenceModeObjectAckEmitsControllerOnlyME_MC covers spec.md
// §4.8's "emits ME_MC to controller channel": a connected pilot speaks a
// JSON-only protocol and must never receive the raw ME_MC text line.
func TestInferenceModeObjectAckEmitsControllerOnlyME_MC(t *testing.T) {
	_, conn, hub := newInferenceFixture(t)

	ctrlServer, ctrlConn := net.Pipe()
	t.Cleanup(func() { ctrlConn.Close() })
	ctrl := fanout.NewSession("ctrl-1", model.RoleController, ctrlServer)
	hub.Register(ctrl)
	go ctrl.RunWriter()
	t.Cleanup(ctrl.Close)

	pilotServer, pilotConn := net.Pipe()
	t.Cleanup(func() { pilotConn.Close() })
	pilot := fanout.NewSession("pilot-1", model.RolePilot, pilotServer)
	hub.Register(pilot)
	go pilot.RunWriter()
	t.Cleanup(pilot.Close)

	_, err := conn.Write([]byte(`{"type":"event","event":"map_calibration","camera_id":"A","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}` + "\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"type":"event","event":"map_calibration","camera_id":"B","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1}` + "\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	require.NoError(t, err)

	_, err = conn.Write([]byte(`{"type":"response","command":"set_mode_object","result":"ok"}` + "\n"))
	require.NoError(t, err)

	ctrlConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := ctrlConn.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "ME_MC")

	pilotConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = pilotConn.Read(buf)
	assert.Error(t, err, "pilot must not receive ME_MC")
}
