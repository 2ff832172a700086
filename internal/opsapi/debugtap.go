package opsapi

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const tapWriteTimeout = 2 * time.Second

func writeDeadline() time.Time { return time.Now().Add(tapWriteTimeout) }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// DebugTap mirrors every fan-out broadcast to connected browser consoles,
// independent of the controller/pilot TCP protocol. It is purely
// observational: nothing read from a tap client is acted on.
type DebugTap struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewDebugTap() *DebugTap {
	return &DebugTap{clients: make(map[*websocket.Conn]struct{})}
}

// Broadcast fans msg out to every connected tap client. A client whose
// write fails or blocks is dropped rather than allowed to stall the tap
// for everyone else.
func (t *DebugTap) Broadcast(msg []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.clients {
		c.SetWriteDeadline(writeDeadline())
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.Close()
			delete(t.clients, c)
		}
	}
}

func (t *DebugTap) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("opsapi: debug tap upgrade failed: %v", err)
		return
	}

	t.mu.Lock()
	t.clients[conn] = struct{}{}
	t.mu.Unlock()

	// The tap is write-only from the server's perspective; this read loop
	// exists only to notice the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				t.mu.Lock()
				delete(t.clients, conn)
				t.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}
