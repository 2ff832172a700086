package dispatch

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/airfield-guard/internal/model"
)

// detailCacheSize bounds memory for the MC_OD detail lookup: the
// controller channel only ever asks about objects an operator is
// currently looking at, so a modest LRU keeps repeat lookups off the
// full QueryHistory scan without growing unbounded over a long server
// uptime.
const detailCacheSize = 4096

// DetailCache holds the most recently first-detected objects so
// ControllerServer.handleDetail can answer MC_OD without a full history
// scan for an object the pipeline already emitted this session.
type DetailCache struct {
	cache *lru.Cache[int64, model.FirstDetectionRecord]
}

// NewDetailCache builds a DetailCache with capacity detailCacheSize.
func NewDetailCache() *DetailCache {
	c, err := lru.New[int64, model.FirstDetectionRecord](detailCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size.
		panic(err)
	}
	return &DetailCache{cache: c}
}

// Put records rec for later MC_OD lookup by ObjectID.
func (d *DetailCache) Put(rec model.FirstDetectionRecord) {
	d.cache.Add(rec.ObjectID, rec)
}

// Get returns the cached record for oid, if present.
func (d *DetailCache) Get(oid int64) (model.FirstDetectionRecord, bool) {
	return d.cache.Get(oid)
}
