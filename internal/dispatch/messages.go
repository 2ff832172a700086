// Package dispatch is the Command Dispatcher: it owns the four inbound
// TCP channels (inference, bird-risk, controller, pilot), the inference
// lifecycle state machine, and the pipeline worker that turns a raw
// object_detected event into coordinate-transformed, access-controlled,
// zone-aggregated, persisted, and fanned-out output.
package dispatch

import "encoding/json"

// InboundKind tags the sum type the inference channel's JSON lines decode
// into, per the "tagged variants, not dynamic dictionaries" design note
// in spec.md §9.
type InboundKind int

const (
	KindUnknown InboundKind = iota
	KindObjectDetected
	KindMarkerDetected
	KindMapCalibration
	KindResponse
)

// rawInbound is the wire shape shared by every inference-channel message;
// fields not relevant to a given "event"/"type" are simply left zero.
type rawInbound struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Command string          `json:"command"`
	Result  string          `json:"result"`

	CameraID string `json:"camera_id"`
	ImgID    string `json:"img_id"`

	Detections json.RawMessage `json:"detections"`
	Markers    json.RawMessage `json:"markers"`
	Matrix     [3][3]float64   `json:"matrix"`
	Scale      float64         `json:"scale"`
}

// Inbound is the decoded, tagged-union form of one inference-channel line.
type Inbound struct {
	Kind InboundKind

	CameraID string
	ImgID    string

	ObjectDetections []wireDetection

	Matrix [3][3]float64
	Scale  float64

	Command string
	Result  string
}

type wireDetection struct {
	ObjectID   int64   `json:"object_id"`
	Class      string  `json:"class"`
	BBox       [4]float64 `json:"bbox"`
	Confidence float64 `json:"confidence"`
	Pose       string  `json:"pose"`
}

// ParseInbound decodes one inference-channel JSON line into its tagged
// variant. Malformed lines return an error; the caller drops the line and
// keeps the session, per spec.md §7.
func ParseInbound(line []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(line, &raw); err != nil {
		return Inbound{}, err
	}

	switch {
	case raw.Type == "event" && raw.Event == "object_detected":
		var dets []wireDetection
		if len(raw.Detections) > 0 {
			if err := json.Unmarshal(raw.Detections, &dets); err != nil {
				return Inbound{}, err
			}
		}
		return Inbound{
			Kind:             KindObjectDetected,
			CameraID:         raw.CameraID,
			ImgID:            raw.ImgID,
			ObjectDetections: dets,
		}, nil

	case raw.Type == "event" && raw.Event == "marker_detected":
		return Inbound{Kind: KindMarkerDetected, CameraID: raw.CameraID}, nil

	case raw.Type == "event" && raw.Event == "map_calibration":
		return Inbound{
			Kind:     KindMapCalibration,
			CameraID: raw.CameraID,
			Matrix:   raw.Matrix,
			Scale:    raw.Scale,
		}, nil

	case raw.Type == "response":
		return Inbound{Kind: KindResponse, Command: raw.Command, Result: raw.Result}, nil

	default:
		return Inbound{Kind: KindUnknown}, nil
	}
}

// EncodeSetModeObject builds the command the server sends the inference
// worker once both cameras are calibrated.
func EncodeSetModeObject() []byte {
	b, _ := json.Marshal(map[string]string{"type": "command", "command": "set_mode_object"})
	return append(b, '\n')
}

// BirdRiskEvent is the decoded bird-risk channel event.
type BirdRiskEvent struct {
	Result string `json:"result"`
}

// ParseBirdRiskEvent decodes a BR_CHANGED line.
func ParseBirdRiskEvent(line []byte) (BirdRiskEvent, error) {
	var raw rawInbound
	if err := json.Unmarshal(line, &raw); err != nil {
		return BirdRiskEvent{}, err
	}
	return BirdRiskEvent{Result: raw.Result}, nil
}

// PilotRequest is the decoded pilot-channel command.
type PilotRequest struct {
	Command     string `json:"command"`
	RequestCode string `json:"request_code"`
}

// ParsePilotRequest decodes one pilot-channel JSON line.
func ParsePilotRequest(line []byte) (PilotRequest, error) {
	var req PilotRequest
	err := json.Unmarshal(line, &req)
	return req, err
}

// PilotResponse is the wire shape of a pilot-channel reply.
type PilotResponse struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	RequestCode  string `json:"request_code"`
	ResponseCode string `json:"response_code,omitempty"`
}

func EncodePilotResponse(resp PilotResponse) []byte {
	resp.Type = "response"
	b, _ := json.Marshal(resp)
	return append(b, '\n')
}
