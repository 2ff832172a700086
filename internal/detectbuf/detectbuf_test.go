package detectbuf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/technosupport/airfield-guard/internal/model"
)

func det(id int64) []model.Detection {
	return []model.Detection{{ObjectID: id, Class: model.ClassFOD}}
}

func TestExactMatch(t *testing.T) {
	b := New(200 * time.Millisecond)
	b.Put("A", 1000, det(1))
	got := b.Lookup("A", 1000)
	assert.Equal(t, det(1), got)
}

func TestNearestPriorWithinWindow(t *testing.T) {
	b := New(200 * time.Millisecond)
	b.Put("A", 1_000_000_000, det(1))

	got := b.Lookup("A", 1_000_000_000+150_000_000) // +150ms, no entry of its own
	assert.Equal(t, det(1), got)
}

func TestBoundaryExactly200msReturnsPrior(t *testing.T) {
	b := New(200 * time.Millisecond)
	b.Put("A", 1_000_000_000, det(1))

	got := b.Lookup("A", 1_000_000_000+200_000_000)
	assert.Equal(t, det(1), got)
}

func TestBoundary200msPlus1nsReturnsEmpty(t *testing.T) {
	b := New(200 * time.Millisecond)
	b.Put("A", 1_000_000_000, det(1))

	got := b.Lookup("A", 1_000_000_000+200_000_001)
	assert.Empty(t, got)
}

func TestNoPriorReturnsEmpty(t *testing.T) {
	b := New(200 * time.Millisecond)
	got := b.Lookup("A", 500)
	assert.Empty(t, got)
}

func TestCamerasAreIndependent(t *testing.T) {
	b := New(200 * time.Millisecond)
	b.Put("A", 1000, det(1))
	b.Put("B", 1000, det(2))

	assert.Equal(t, det(1), b.Lookup("A", 1000))
	assert.Equal(t, det(2), b.Lookup("B", 1000))
}

func TestPutOutOfOrderStillIndexedCorrectly(t *testing.T) {
	b := New(200 * time.Millisecond)
	b.Put("A", 2000, det(2))
	b.Put("A", 1000, det(1))
	b.Put("A", 3000, det(3))

	assert.Equal(t, det(1), b.Lookup("A", 1000))
	assert.Equal(t, det(2), b.Lookup("A", 2000))
	assert.Equal(t, det(3), b.Lookup("A", 3000))
}
