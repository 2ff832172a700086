// Package access implements the Access Controller: stateless
// classification of coordinate-transformed detections against the
// current authority-level cache.
package access

import (
	"sync"

	"github.com/technosupport/airfield-guard/internal/model"
)

var hazardClasses = map[model.ObjectClass]bool{
	model.ClassBird:   true,
	model.ClassFOD:    true,
	model.ClassAnimal: true,
}

var exemptFromAuthOnly = map[model.ObjectClass]bool{
	model.ClassWorkPerson:  true,
	model.ClassWorkVehicle: true,
}

// Cache is the read-mostly AccessCondition store: area-id -> authority
// level. Writes happen only through Set (the AC_UA handler); reads never
// block on a writer for longer than a short critical section.
type Cache struct {
	mu     sync.RWMutex
	levels map[int]model.AuthorityLevel
}

// NewCache creates an empty cache; Get defaults to AUTH_ONLY on miss, per
// spec.md §4.5.
func NewCache() *Cache {
	return &Cache{levels: make(map[int]model.AuthorityLevel)}
}

func (c *Cache) Get(areaID int) model.AuthorityLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	level, ok := c.levels[areaID]
	if !ok {
		return model.AuthorityAuthOnly
	}
	return level
}

// Set replaces the entire cache atomically (AC_UA is all-or-nothing over
// all 8 zones).
func (c *Cache) Set(levels map[int]model.AuthorityLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels = levels
}

// Snapshot returns a copy of the current area-id -> level map, e.g. for
// serving AC_AC.
func (c *Cache) Snapshot() map[int]model.AuthorityLevel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]model.AuthorityLevel, len(c.levels))
	for k, v := range c.levels {
		out[k] = v
	}
	return out
}

// Evaluate applies spec.md §4.5's classification rules to each detection,
// returning the subset that should fan out as ME_OD and be considered for
// first-detection/zone-state processing.
func Evaluate(detections []model.Detection, cache *Cache) []model.Detection {
	out := make([]model.Detection, 0, len(detections))

	for _, d := range detections {
		switch {
		case d.Class == model.ClassAirplane || d.Class == model.ClassAircraft:
			continue // never alerted, fanned out, or persisted

		case hazardClasses[d.Class]:
			d.EventType = model.EventHazard

		default:
			if !classify(&d, cache) {
				continue
			}
		}

		if d.Class == model.ClassPerson {
			if d.Pose == model.PoseFallen {
				d.RescueLevel = 1
			} else {
				d.RescueLevel = 0
			}
		}

		out = append(out, d)
	}

	return out
}

// classify handles the "access subject" branch of §4.5 (anything not a
// hazard class and not an airplane/aircraft). Returns false if the
// detection should be dropped.
func classify(d *model.Detection, cache *Cache) bool {
	if !d.HasArea() {
		d.EventType = model.EventUnauth
		return true // unknown zone is a violation
	}

	switch cache.Get(d.AreaID) {
	case model.AuthorityOpen:
		return false

	case model.AuthorityAuthOnly:
		if exemptFromAuthOnly[d.Class] {
			return false
		}
		d.EventType = model.EventUnauth
		return true

	case model.AuthorityNoEntry:
		d.EventType = model.EventUnauth
		return true

	default:
		return false
	}
}
