package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnconfiguredPublisherRoutesToFallback(t *testing.T) {
	p, err := Connect("", "events.fanout", 2)
	require.NoError(t, err)
	defer p.Close()

	p.Publish([]byte("ME_OD:1001,FOD,100,200,TWY_A\n"))

	select {
	case msg := <-p.Fallback:
		assert.Equal(t, "ME_OD:1001,FOD,100,200,TWY_A\n", string(msg))
	case <-time.After(time.Second):
		t.Fatal("expected fallback delivery")
	}
}

func TestFallbackDropsWhenFull(t *testing.T) {
	p, err := Connect("", "events.fanout", 0)
	require.NoError(t, err)
	defer p.Close()

	for i := 0; i < fallbackQueueSize+5; i++ {
		p.Publish([]byte{byte(i)})
	}
	assert.Len(t, p.Fallback, fallbackQueueSize, "fallback queue must stay bounded")
}

func TestCloseOnUnconfiguredPublisherIsSafe(t *testing.T) {
	p, err := Connect("", "events.fanout", 1)
	require.NoError(t, err)
	assert.NotPanics(t, func() { p.Close() })
}
