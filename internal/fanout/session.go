// Package fanout implements the Event Fan-out component: per-client
// sessions for the controller and pilot TCP channels, wire encoding of
// ME_OD/ME_FD/ME_RA/ME_RB/ME_BR/ME_MC, and subscription bookkeeping for
// the Video Relay.
package fanout

import (
	"net"
	"sync"

	"github.com/technosupport/airfield-guard/internal/metrics"
	"github.com/technosupport/airfield-guard/internal/model"
)

const outboundQueueSize = 256

// Session is one connected controller or pilot TCP client. Writes happen
// only on its own writer goroutine, draining Out; everything else may
// enqueue onto Out from any goroutine.
type Session struct {
	ID   string
	Role model.ClientRole
	conn net.Conn

	Out chan []byte

	mu       sync.Mutex
	subCCTVA bool
	subCCTVB bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps conn for role.
func NewSession(id string, role model.ClientRole, conn net.Conn) *Session {
	return &Session{
		ID:   id,
		Role: role,
		conn: conn,
		Out:  make(chan []byte, outboundQueueSize),
		done: make(chan struct{}),
	}
}

// Enqueue drops the message if the outbound queue is full rather than
// blocking the caller; a slow client should not stall the fan-out path
// for every other session.
func (s *Session) Enqueue(msg []byte) {
	select {
	case s.Out <- msg:
	default:
		metrics.RecordFanoutDropped(string(s.Role))
	}
}

// RunWriter drains Out and writes each message to the connection until
// the session is closed or a write fails.
func (s *Session) RunWriter() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.Out:
			if _, err := s.conn.Write(msg); err != nil {
				s.Close()
				return
			}
		}
	}
}

// Close shuts down the session's writer and underlying connection. Safe
// to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// SetSubscription records which camera feed (if any) this controller
// session wants from the Video Relay. MC_CA/MC_CB toggle the other off.
func (s *Session) SetSubscription(cameraA, cameraB bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subCCTVA = cameraA
	s.subCCTVB = cameraB
}

// Subscription returns the current camera A/B subscription flags.
func (s *Session) Subscription() (cameraA, cameraB bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subCCTVA, s.subCCTVB
}
