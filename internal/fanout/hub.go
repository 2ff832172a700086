package fanout

import (
	"sync"

	"github.com/technosupport/airfield-guard/internal/bus"
	"github.com/technosupport/airfield-guard/internal/model"
)

// debugTap is satisfied by internal/opsapi.DebugTap. Defined here instead
// of imported so internal/fanout does not depend on internal/opsapi.
type debugTap interface {
	Broadcast(msg []byte)
}

// Hub is the registry of connected controller and pilot sessions. It
// broadcasts wire-encoded events to every session of the relevant role(s)
// and tracks per-camera subscription demand for the Video Relay, mirroring
// the overlay-demand counter idiom the live-view service uses for its
// active-viewer bookkeeping.
type Hub struct {
	mu          sync.RWMutex
	controllers map[string]*Session
	pilots      map[string]*Session

	demandMu sync.Mutex
	demandA  int
	demandB  int

	mirror *bus.Publisher
	tap    debugTap
}

// SetMirror points future mirrored broadcasts (BroadcastAll,
// BroadcastControllersAndMirror) at an external NATS mirror
// (optional; nil disables mirroring, the Hub's zero-value behaviour).
func (h *Hub) SetMirror(p *bus.Publisher) {
	h.mirror = p
}

// SetDebugTap points future mirrored broadcasts (BroadcastAll,
// BroadcastControllersAndMirror) at the ops websocket tap
// (optional; nil disables it, the Hub's zero-value behaviour).
func (h *Hub) SetDebugTap(t debugTap) {
	h.tap = t
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		controllers: make(map[string]*Session),
		pilots:      make(map[string]*Session),
	}
}

// Register adds s to the hub under its role. It does not change
// camera-subscription demand.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	switch s.Role {
	case model.RoleController:
		h.controllers[s.ID] = s
	case model.RolePilot:
		h.pilots[s.ID] = s
	}
	h.mu.Unlock()
}

// Unregister removes s and releases any camera demand it was holding.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	delete(h.controllers, s.ID)
	delete(h.pilots, s.ID)
	h.mu.Unlock()

	cameraA, cameraB := s.Subscription()
	if cameraA || cameraB {
		s.SetSubscription(false, false)
		h.adjustDemand(cameraA, cameraB, -1)
	}
}

// UpdateSubscription changes s's camera subscription and adjusts the
// hub-wide demand counters by the delta.
func (h *Hub) UpdateSubscription(s *Session, cameraA, cameraB bool) {
	prevA, prevB := s.Subscription()
	s.SetSubscription(cameraA, cameraB)

	if prevA != cameraA {
		delta := 1
		if !cameraA {
			delta = -1
		}
		h.adjustDemand(true, false, delta)
	}
	if prevB != cameraB {
		delta := 1
		if !cameraB {
			delta = -1
		}
		h.adjustDemand(false, true, delta)
	}
}

func (h *Hub) adjustDemand(cameraA, cameraB bool, delta int) {
	h.demandMu.Lock()
	defer h.demandMu.Unlock()
	if cameraA {
		h.demandA += delta
	}
	if cameraB {
		h.demandB += delta
	}
}

// CameraDemand reports whether any controller currently wants camera A's
// and/or camera B's relay feed, gating whether the Video Relay bothers
// reading frames for that camera at all.
func (h *Hub) CameraDemand() (cameraA, cameraB bool) {
	h.demandMu.Lock()
	defer h.demandMu.Unlock()
	return h.demandA > 0, h.demandB > 0
}

// BroadcastControllers sends msg to every connected controller session.
func (h *Hub) BroadcastControllers(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.controllers {
		s.Enqueue(msg)
	}
}

// BroadcastPilots sends msg to every connected pilot session.
func (h *Hub) BroadcastPilots(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.pilots {
		s.Enqueue(msg)
	}
}

// BroadcastAll sends msg to every connected controller and pilot session,
// used for ME_RA/ME_RB/ME_BR which both channels receive per spec.md §4.6.
// Also mirrors msg onto the external bus, if one is configured.
func (h *Hub) BroadcastAll(msg []byte) {
	h.BroadcastControllers(msg)
	h.BroadcastPilots(msg)
	h.mirrorAndTap(msg)
}

// BroadcastControllersAndMirror sends msg only to connected controller
// sessions, for ME_MC/ME_OD/ME_FD which pilots never receive per
// spec.md §4.6/§4.8 — pilots speak a JSON-only protocol and cannot parse
// these lines. Still mirrors onto the external bus/debug tap, matching
// SPEC_FULL.md §3's promise that ME_OD/ME_FD traffic is mirrored
// regardless of which channel(s) it was sent over.
func (h *Hub) BroadcastControllersAndMirror(msg []byte) {
	h.BroadcastControllers(msg)
	h.mirrorAndTap(msg)
}

func (h *Hub) mirrorAndTap(msg []byte) {
	if h.mirror != nil {
		h.mirror.Publish(msg)
	}
	if h.tap != nil {
		h.tap.Broadcast(msg)
	}
}

// ControllerCount reports the number of connected controller sessions.
func (h *Hub) ControllerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.controllers)
}

// PilotCount reports the number of connected pilot sessions.
func (h *Hub) PilotCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pilots)
}

// ControllerSessionsWanting returns the controller sessions currently
// subscribed to the given camera, for the Video Relay to address directly
// instead of broadcasting frames to every controller regardless of demand.
func (h *Hub) ControllerSessionsWanting(cameraA bool) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Session
	for _, s := range h.controllers {
		subA, subB := s.Subscription()
		if (cameraA && subA) || (!cameraA && subB) {
			out = append(out, s)
		}
	}
	return out
}
