// Package zones maintains one NORMAL/HAZARD state machine per Area,
// driven by a single priority-queue timer wheel rather than one timer
// goroutine per zone, per the design note in spec.md §9.
package zones

import (
	"container/heap"
	"sync"
	"time"

	"github.com/technosupport/airfield-guard/internal/metrics"
	"github.com/technosupport/airfield-guard/internal/model"
)

// Transition is emitted every time a zone's status changes.
type Transition struct {
	AreaID int
	Status model.ZoneStatus
}

type zoneState struct {
	status       model.ZoneStatus
	generation   int
	lastObserved time.Time
}

// Engine owns all zone state and the clear-timer wheel. It must only be
// driven through Observe and Start/Stop; there is no external lock because
// every mutation happens on the single run() goroutine.
type Engine struct {
	clearDelay time.Duration
	areaNames  map[int]string

	zones map[int]*zoneState
	pq    timerHeap

	observeCh   chan int
	statusCh    chan statusQuery
	transitions chan Transition
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

type statusQuery struct {
	areaID int
	resp   chan model.ZoneStatus
}

// New creates an Engine. areaNames maps area-id to its display name, used
// only for metrics labels.
func New(clearDelay time.Duration, areaNames map[int]string) *Engine {
	return &Engine{
		clearDelay:  clearDelay,
		areaNames:   areaNames,
		zones:       make(map[int]*zoneState),
		observeCh:   make(chan int, 256),
		statusCh:    make(chan statusQuery),
		transitions: make(chan Transition, 256),
		stopCh:      make(chan struct{}),
	}
}

// Transitions returns the channel of zone status changes. Callers must
// keep draining it; it is never closed except implicitly by process exit.
func (e *Engine) Transitions() <-chan Transition {
	return e.transitions
}

// Start launches the single goroutine that owns all zone state.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
}

// Stop signals the run loop to exit and waits for it.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// Observe records a qualifying detection for areaID: NORMAL->HAZARD fires
// an ME_RA/RB:1 transition; HAZARD stays HAZARD but the clear timer is
// re-armed (any pending timer for the old generation becomes stale).
func (e *Engine) Observe(areaID int) {
	e.observeCh <- areaID
}

func (e *Engine) run() {
	defer e.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	armTimer := func() {
		if len(e.pq) == 0 {
			timer.Reset(time.Hour)
			return
		}
		d := time.Until(e.pq[0].deadline)
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
	}

	for {
		select {
		case <-e.stopCh:
			return

		case areaID := <-e.observeCh:
			e.handleObserve(areaID)
			armTimer()

		case q := <-e.statusCh:
			if z, ok := e.zones[q.areaID]; ok {
				q.resp <- z.status
			} else {
				q.resp <- model.ZoneNormal
			}

		case <-timer.C:
			e.handleTimerFire()
			armTimer()
		}
	}
}

func (e *Engine) handleObserve(areaID int) {
	z, ok := e.zones[areaID]
	if !ok {
		z = &zoneState{status: model.ZoneNormal}
		e.zones[areaID] = z
	}

	z.lastObserved = time.Now()
	z.generation++

	if z.status == model.ZoneNormal {
		z.status = model.ZoneHazard
		e.emit(areaID, model.ZoneHazard)
	}

	heap.Push(&e.pq, timerItem{
		deadline:   z.lastObserved.Add(e.clearDelay),
		areaID:     areaID,
		generation: z.generation,
	})
}

func (e *Engine) handleTimerFire() {
	now := time.Now()
	for len(e.pq) > 0 && !e.pq[0].deadline.After(now) {
		item := heap.Pop(&e.pq).(timerItem)

		z, ok := e.zones[item.areaID]
		if !ok || item.generation != z.generation {
			continue // stale: zone re-armed or removed since this timer was queued
		}

		z.status = model.ZoneNormal
		e.emit(item.areaID, model.ZoneNormal)
	}
}

func (e *Engine) emit(areaID int, status model.ZoneStatus) {
	metrics.RecordZoneTransition(e.areaNames[areaID], status.String())
	select {
	case e.transitions <- Transition{AreaID: areaID, Status: status}:
	default:
		// transitions channel full: drop rather than block the single
		// zone-state goroutine; a slow consumer should not stall hazard
		// processing.
	}
}

// Status returns the current status of an area, defaulting to NORMAL for
// an area never observed. Read by the pilot channel's runway queries
// (dispatch.PilotServer), not by pipeline decisions. Routed
// through the run loop so it never races with a concurrent transition.
func (e *Engine) Status(areaID int) model.ZoneStatus {
	resp := make(chan model.ZoneStatus, 1)
	e.statusCh <- statusQuery{areaID: areaID, resp: resp}
	return <-resp
}
