package zones

import "time"

// timerItem is a pending clear-hysteresis deadline for one area. generation
// must match the area's current generation when the timer fires, or the
// firing is stale (a newer qualifying detection re-armed the zone since).
type timerItem struct {
	deadline   time.Time
	areaID     int
	generation int
}

// timerHeap is a container/heap min-heap ordered by deadline.
type timerHeap []timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerItem)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
