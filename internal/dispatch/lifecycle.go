package dispatch

import (
	"sync"

	"github.com/technosupport/airfield-guard/internal/metrics"
	"github.com/technosupport/airfield-guard/internal/model"
)

// InferenceLifecycle tracks the Disconnected -> Connected -> CalibratingA
// -> CalibratingB -> Operating state machine from spec.md §4.8. Writes are
// rare (calibration events, connect/disconnect) so a plain mutex with a
// short critical section is used, per the allowance spec.md §5 gives the
// Calibration map.
type InferenceLifecycle struct {
	mu       sync.Mutex
	state    model.InferenceState
	calibA   bool
	calibB   bool
}

// NewInferenceLifecycle starts in Disconnected.
func NewInferenceLifecycle() *InferenceLifecycle {
	l := &InferenceLifecycle{state: model.InferenceDisconnected}
	metrics.SetInferenceState(int(l.state))
	return l
}

// State returns the current lifecycle state.
func (l *InferenceLifecycle) State() model.InferenceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnConnect moves Disconnected -> Connected, resetting any stale
// calibration flags; a reconnect always starts calibration over.
func (l *InferenceLifecycle) OnConnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = model.InferenceConnected
	l.calibA = false
	l.calibB = false
	metrics.SetInferenceState(int(l.state))
}

// OnDisconnect drops back to Disconnected from any state; per spec.md
// §4.10, any reconnect returns the worker to Calibrating.
func (l *InferenceLifecycle) OnDisconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = model.InferenceDisconnected
	l.calibA = false
	l.calibB = false
	metrics.SetInferenceState(int(l.state))
}

// OnCalibration records that cameraID has been calibrated and advances the
// state machine. Returns true whenever both cameras have been calibrated
// in this connection, including on every later recalibration of either
// camera (the caller then sends set_mode_object each time).
func (l *InferenceLifecycle) OnCalibration(cameraID string) (bothCalibrated bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch cameraID {
	case "A":
		l.calibA = true
	case "B":
		l.calibB = true
	}

	switch {
	case l.calibA && !l.calibB:
		l.state = model.InferenceCalibratingA
	case l.calibA && l.calibB:
		l.state = model.InferenceCalibratingB
	default:
		l.state = model.InferenceCalibratingA
	}
	metrics.SetInferenceState(int(l.state))

	return l.calibA && l.calibB
}

// OnModeObjectAcked moves CalibratingB -> Operating once the worker
// confirms set_mode_object succeeded.
func (l *InferenceLifecycle) OnModeObjectAcked() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = model.InferenceOperating
	metrics.SetInferenceState(int(l.state))
}

// Operating reports whether object_detected events should be acted on.
func (l *InferenceLifecycle) Operating() bool {
	return l.State() == model.InferenceOperating
}
