// Package model holds the shared domain types passed between the pipeline
// stages: frames, detections, areas, access conditions, zone and session
// state. Nothing in this package talks to a socket or a database.
package model

import "time"

// ObjectClass enumerates the detector's output classes.
type ObjectClass string

const (
	ClassBird        ObjectClass = "BIRD"
	ClassFOD         ObjectClass = "FOD"
	ClassAnimal      ObjectClass = "ANIMAL"
	ClassPerson      ObjectClass = "PERSON"
	ClassVehicle     ObjectClass = "VEHICLE"
	ClassWorkPerson  ObjectClass = "WORK_PERSON"
	ClassWorkVehicle ObjectClass = "WORK_VEHICLE"
	ClassAirplane    ObjectClass = "AIRPLANE"
	ClassAircraft    ObjectClass = "AIRCRAFT"
)

// Pose is the optional posture field carried by PERSON detections.
type Pose string

const (
	PoseStand  Pose = "stand"
	PoseFallen Pose = "fallen"
)

// EventType classifies a detection once it clears the Access Controller.
type EventType int

const (
	EventHazard EventType = 1
	EventUnauth EventType = 2
	EventRescue EventType = 3
)

// AuthorityLevel is the access policy assigned to an Area.
type AuthorityLevel int

const (
	AuthorityOpen     AuthorityLevel = 1
	AuthorityAuthOnly AuthorityLevel = 2
	AuthorityNoEntry  AuthorityLevel = 3
)

// ZoneStatus is the hysteresis state of a single Area.
type ZoneStatus int

const (
	ZoneNormal ZoneStatus = iota
	ZoneHazard
)

func (s ZoneStatus) String() string {
	if s == ZoneHazard {
		return "HAZARD"
	}
	return "NORMAL"
}

// BBox is a pixel-space bounding box, x1,y1 top-left and x2,y2 bottom-right.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

// Centroid returns the bbox's center point.
func (b BBox) Centroid() (cx, cy float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Frame is one UDP-received camera image, keyed by its 19-digit
// monotonic nanosecond frame id.
type Frame struct {
	CameraID  string
	FrameID   int64
	Width     int
	Height    int
	JPEG      []byte
	Received  time.Time
}

// Detection is a single inference-worker result, enriched by the pipeline
// as it passes through the Coordinate Transformer and Access Controller.
type Detection struct {
	ObjectID   int64
	CameraID   string
	FrameID    int64
	Class      ObjectClass
	BBox       BBox
	Confidence float64
	Pose       Pose // empty unless Class == ClassPerson

	// Filled in by internal/coords.
	NormX, NormY float64
	MapX, MapY   int
	AreaID       int // 0 means "no area matched"

	// Filled in by internal/access.
	EventType    EventType
	RescueLevel  int // only meaningful for ClassPerson
}

// HasArea reports whether the detection resolved to a known Area.
func (d Detection) HasArea() bool { return d.AreaID != 0 }

// Area is one of the fixed rectangular zones of the airfield map.
type Area struct {
	ID   int
	Name string
	// Rect is expressed in normalized [0,1]^2 coordinates.
	X1, Y1, X2, Y2 float64
}

// Contains reports whether a normalized point falls inside the area's rectangle.
func (a Area) Contains(nx, ny float64) bool {
	return nx >= a.X1 && nx <= a.X2 && ny >= a.Y1 && ny <= a.Y2
}

// Calibration is the per-camera homography + scale used by the Coordinate
// Transformer. A zero-value Homography means "no calibration received yet"
// and callers fall back to identity projection.
type Calibration struct {
	CameraID   string
	Homography [3][3]float64
	Scale      float64
	ReceivedAt time.Time
}

// BirdRiskLevel mirrors the external bird-risk estimator's three levels.
type BirdRiskLevel int

const (
	BirdRiskLow BirdRiskLevel = iota + 1
	BirdRiskMedium
	BirdRiskHigh
)

func ParseBirdRiskLevel(s string) (BirdRiskLevel, bool) {
	switch s {
	case "BR_LOW":
		return BirdRiskLow, true
	case "BR_MEDIUM":
		return BirdRiskMedium, true
	case "BR_HIGH":
		return BirdRiskHigh, true
	default:
		return 0, false
	}
}

func (l BirdRiskLevel) WireCode() string {
	switch l {
	case BirdRiskLow:
		return "BR_LOW"
	case BirdRiskMedium:
		return "BR_MEDIUM"
	case BirdRiskHigh:
		return "BR_HIGH"
	default:
		return ""
	}
}

// BirdRiskLog is an append-only record of an observed level change.
type BirdRiskLog struct {
	ID        int64
	Prev      BirdRiskLevel
	Curr      BirdRiskLevel
	Timestamp time.Time
}

// FirstDetectionRecord is what gets persisted the first time an object-id
// is observed.
type FirstDetectionRecord struct {
	ObjectID    int64
	CameraID    string
	EventType   EventType
	Class       ObjectClass
	AreaID      int
	MapX, MapY  int
	Timestamp   time.Time
	ImagePath   string // empty if the crop/encode step failed
	RescueLevel int    // only meaningful for ClassPerson
}

// ClientRole identifies which of the four TCP protocols a session speaks.
type ClientRole string

const (
	RoleInference ClientRole = "inference"
	RoleBirdRisk  ClientRole = "bird"
	RoleController ClientRole = "controller"
	RolePilot     ClientRole = "pilot"
)

// InferenceState is the calibration lifecycle of the inference channel.
type InferenceState int

const (
	InferenceDisconnected InferenceState = iota
	InferenceConnected
	InferenceCalibratingA
	InferenceCalibratingB
	InferenceOperating
)

func (s InferenceState) String() string {
	switch s {
	case InferenceDisconnected:
		return "disconnected"
	case InferenceConnected:
		return "connected"
	case InferenceCalibratingA:
		return "calibrating_a"
	case InferenceCalibratingB:
		return "calibrating_b"
	case InferenceOperating:
		return "operating"
	default:
		return "unknown"
	}
}
