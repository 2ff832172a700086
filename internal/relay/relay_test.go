package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/airfield-guard/internal/fanout"
	"github.com/technosupport/airfield-guard/internal/framebus"
	"github.com/technosupport/airfield-guard/internal/model"
)

func newTestRelay(t *testing.T) (*Relay, *framebus.Bus, *fanout.Hub) {
	t.Helper()
	frames := framebus.New(10, time.Minute)
	hub := fanout.NewHub()
	r, err := New("127.0.0.1:0", frames, hub)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, frames, hub
}

func registerSession(t *testing.T, r *Relay, sessionID string) *net.UDPConn {
	t.Helper()
	client, err := net.DialUDP("udp", nil, r.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = client.Write([]byte(sessionID))
	require.NoError(t, err)
	// give the registration loop a moment to record the address.
	time.Sleep(20 * time.Millisecond)
	return client
}

func newSubscribedControllerSession(id string, hub *fanout.Hub, cameraA, cameraB bool) *fanout.Session {
	serverConn, _ := net.Pipe()
	s := fanout.NewSession(id, model.RoleController, serverConn)
	hub.Register(s)
	hub.UpdateSubscription(s, cameraA, cameraB)
	return s
}

func TestRelayDeliversLatestFrameToSubscribedSession(t *testing.T) {
	r, frames, hub := newTestRelay(t)
	newSubscribedControllerSession("ctrl-1", hub, true, false)
	client := registerSession(t, r, "ctrl-1")

	frames.Put(model.Frame{CameraID: "A", FrameID: 1, JPEG: []byte("jpeg-bytes")})

	stop := make(chan struct{})
	go r.RunCamera("A", true, stop)
	defer close(stop)

	buf := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "A:jpeg-bytes", string(buf[:n]))
}

func TestRelaySendsNothingWhenUnsubscribed(t *testing.T) {
	r, frames, hub := newTestRelay(t)
	newSubscribedControllerSession("ctrl-2", hub, false, false)
	client := registerSession(t, r, "ctrl-2")

	frames.Put(model.Frame{CameraID: "A", FrameID: 1, JPEG: []byte("jpeg-bytes")})

	stop := make(chan struct{})
	go r.RunCamera("A", true, stop)
	defer close(stop)

	client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 256)
	_, err := client.Read(buf)
	assert.Error(t, err, "unsubscribed session must receive nothing")
}

func TestRelayOnlySendsCameraItSubscribedTo(t *testing.T) {
	r, frames, hub := newTestRelay(t)
	newSubscribedControllerSession("ctrl-3", hub, false, true)
	client := registerSession(t, r, "ctrl-3")

	frames.Put(model.Frame{CameraID: "A", FrameID: 1, JPEG: []byte("from-a")})
	frames.Put(model.Frame{CameraID: "B", FrameID: 1, JPEG: []byte("from-b")})

	stopA := make(chan struct{})
	stopB := make(chan struct{})
	go r.RunCamera("A", true, stopA)
	go r.RunCamera("B", false, stopB)
	defer close(stopA)
	defer close(stopB)

	buf := make([]byte, 256)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "B:from-b", string(buf[:n]))
}

func TestSessionQueueDropsOldestOnOverflow(t *testing.T) {
	q := &sessionQueue{pending: make(chan []byte, queueDepth), done: make(chan struct{})}
	defer q.stop()

	for i := 0; i < queueDepth+3; i++ {
		q.enqueue([]byte{byte(i)})
	}
	assert.Len(t, q.pending, queueDepth, "queue must stay bounded at queueDepth")
}
