// Package detectbuf aligns 5 fps inference results to 30 fps video by
// buffering the detections reported for each camera+frame-id and serving
// a "nearest prior, within window" lookup for frame-ids that have no
// detections of their own.
package detectbuf

import (
	"sort"
	"sync"
	"time"

	"github.com/technosupport/airfield-guard/internal/model"
)

// Buffer holds, per camera, a time-ordered list of (frame_id, detections)
// entries trimmed to the configured window.
type Buffer struct {
	window time.Duration // e.g. 200ms, expressed in frame-id units (nanoseconds)

	mu      sync.RWMutex
	cameras map[string]*cameraEntries
}

type cameraEntries struct {
	mu  sync.RWMutex
	ids []int64 // sorted ascending
	byID map[int64][]model.Detection
}

// New creates a Buffer whose nearest-prior lookup window is window
// (spec.md default: 200ms).
func New(window time.Duration) *Buffer {
	return &Buffer{
		window:  window,
		cameras: make(map[string]*cameraEntries),
	}
}

func (b *Buffer) entriesFor(cameraID string) *cameraEntries {
	b.mu.RLock()
	e, ok := b.cameras[cameraID]
	b.mu.RUnlock()
	if ok {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok = b.cameras[cameraID]; ok {
		return e
	}
	e = &cameraEntries{byID: make(map[int64][]model.Detection)}
	b.cameras[cameraID] = e
	return e
}

// Put records the detections reported for cameraID at frameID, then trims
// entries older than the lookup window relative to frameID.
func (b *Buffer) Put(cameraID string, frameID int64, detections []model.Detection) {
	e := b.entriesFor(cameraID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.byID[frameID]; !exists {
		i := sort.Search(len(e.ids), func(i int) bool { return e.ids[i] >= frameID })
		e.ids = append(e.ids, 0)
		copy(e.ids[i+1:], e.ids[i:])
		e.ids[i] = frameID
	}
	e.byID[frameID] = detections

	b.trimLocked(e, frameID)
}

// trimLocked drops entries older than window relative to asOf. Caller
// holds e.mu.
func (b *Buffer) trimLocked(e *cameraEntries, asOf int64) {
	cutoff := asOf - int64(b.window)
	i := 0
	for i < len(e.ids) && e.ids[i] < cutoff {
		delete(e.byID, e.ids[i])
		i++
	}
	if i > 0 {
		e.ids = e.ids[i:]
	}
}

// Lookup returns the detections for an exact frame-id match, or else the
// detections of the largest buffered frame-id strictly less than query,
// provided it is within the configured window. Returns an empty slice
// when nothing qualifies.
func (b *Buffer) Lookup(cameraID string, frameID int64) []model.Detection {
	e := b.entriesFor(cameraID)
	e.mu.RLock()
	defer e.mu.RUnlock()

	if dets, ok := e.byID[frameID]; ok {
		return dets
	}

	// largest id strictly less than frameID
	i := sort.Search(len(e.ids), func(i int) bool { return e.ids[i] >= frameID })
	if i == 0 {
		return nil
	}
	priorID := e.ids[i-1]
	if frameID-priorID > int64(b.window) {
		return nil
	}
	return e.byID[priorID]
}
