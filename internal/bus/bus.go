// Package bus mirrors the Event Fan-out component's broadcast traffic
// onto an external NATS subject for downstream consumers (dashboards,
// audit siphons) that should not have to speak the controller/pilot
// wire protocol. NATS is optional: when unconfigured, or when a publish
// exhausts its retries, messages fall back to an in-process channel so
// the mirror never blocks or drops the caller's own fan-out path.
package bus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher mirrors wire-encoded fan-out messages onto a NATS subject,
// retrying with a short linear backoff before giving up and routing the
// message to Fallback instead.
type Publisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int

	// Fallback receives a message whenever NATS is unconfigured or every
	// retry failed. Buffered so Publish never blocks on a slow consumer;
	// a full buffer silently drops, matching the fan-out Session's own
	// drop-on-full policy for a misbehaving downstream.
	Fallback chan []byte
}

const fallbackQueueSize = 256

// Connect dials url and returns a Publisher for subject. If url is
// empty, NATS is left unconfigured and every Publish call routes
// straight to Fallback.
func Connect(url, subject string, maxRetries int) (*Publisher, error) {
	p := &Publisher{subject: subject, maxRetries: maxRetries, Fallback: make(chan []byte, fallbackQueueSize)}
	if url == "" {
		return p, nil
	}

	conn, err := nats.Connect(url, nats.Name("airfield-guard-main-server"))
	if err != nil {
		return nil, fmt.Errorf("bus: connect %s: %w", url, err)
	}
	p.conn = conn
	return p, nil
}

// Close closes the underlying NATS connection, if any, without draining it.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Publish mirrors msg onto the configured subject, retrying with a
// 100ms*attempt linear backoff. On persistent failure, or when NATS was
// never configured, msg is routed to Fallback instead of returning an
// error: the fan-out path this mirrors already delivered msg to its real
// TCP sessions, so a mirror failure must never surface as a pipeline
// error.
func (p *Publisher) Publish(msg []byte) {
	if p.conn == nil {
		p.enqueueFallback(msg)
		return
	}

	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err = p.conn.Publish(p.subject, msg); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	p.enqueueFallback(msg)
}

func (p *Publisher) enqueueFallback(msg []byte) {
	select {
	case p.Fallback <- msg:
	default:
	}
}
