package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundObjectDetected(t *testing.T) {
	line := []byte(`{"type":"event","event":"object_detected","camera_id":"A","img_id":"1700000000123456789","detections":[{"object_id":1001,"class":"FOD","bbox":[400,300,440,340],"confidence":0.9}]}`)
	msg, err := ParseInbound(line)
	require.NoError(t, err)
	assert.Equal(t, KindObjectDetected, msg.Kind)
	assert.Equal(t, "A", msg.CameraID)
	assert.Equal(t, "1700000000123456789", msg.ImgID)
	require.Len(t, msg.ObjectDetections, 1)
	assert.Equal(t, int64(1001), msg.ObjectDetections[0].ObjectID)
	assert.Equal(t, "FOD", msg.ObjectDetections[0].Class)
}

func TestParseInboundMapCalibration(t *testing.T) {
	line := []byte(`{"type":"event","event":"map_calibration","camera_id":"B","matrix":[[1,0,0],[0,1,0],[0,0,1]],"scale":1.5}`)
	msg, err := ParseInbound(line)
	require.NoError(t, err)
	assert.Equal(t, KindMapCalibration, msg.Kind)
	assert.Equal(t, "B", msg.CameraID)
	assert.Equal(t, 1.5, msg.Scale)
	assert.Equal(t, [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}, msg.Matrix)
}

func TestParseInboundResponse(t *testing.T) {
	line := []byte(`{"type":"response","command":"set_mode_object","result":"ok"}`)
	msg, err := ParseInbound(line)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, msg.Kind)
	assert.Equal(t, "set_mode_object", msg.Command)
	assert.Equal(t, "ok", msg.Result)
}

func TestParseInboundMarkerDetected(t *testing.T) {
	line := []byte(`{"type":"event","event":"marker_detected","camera_id":"A","markers":[]}`)
	msg, err := ParseInbound(line)
	require.NoError(t, err)
	assert.Equal(t, KindMarkerDetected, msg.Kind)
}

func TestParseInboundUnknownShapeIsKindUnknown(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"whatever"}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, msg.Kind)
}

func TestParseInboundMalformedJSONErrors(t *testing.T) {
	_, err := ParseInbound([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeSetModeObject(t *testing.T) {
	out := EncodeSetModeObject()
	assert.Contains(t, string(out), `"command":"set_mode_object"`)
	assert.Contains(t, string(out), `"type":"command"`)
}

func TestParseBirdRiskEvent(t *testing.T) {
	ev, err := ParseBirdRiskEvent([]byte(`{"type":"event","event":"BR_CHANGED","result":"BR_HIGH"}`))
	require.NoError(t, err)
	assert.Equal(t, "BR_HIGH", ev.Result)
}

func TestParsePilotRequest(t *testing.T) {
	req, err := ParsePilotRequest([]byte(`{"type":"command","command":"query_information","request_code":"BR_INQ"}`))
	require.NoError(t, err)
	assert.Equal(t, "query_information", req.Command)
	assert.Equal(t, "BR_INQ", req.RequestCode)
}

func TestEncodePilotResponse(t *testing.T) {
	out := EncodePilotResponse(PilotResponse{Status: "success", RequestCode: "BR_INQ", ResponseCode: "BR_HIGH"})
	s := string(out)
	assert.Contains(t, s, `"type":"response"`)
	assert.Contains(t, s, `"response_code":"BR_HIGH"`)
}
