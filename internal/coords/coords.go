// Package coords implements the Coordinate Transformer: per-camera
// homography projection from pixel space to the physical runway plane,
// normalization, and area lookup.
package coords

import (
	"log"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/technosupport/airfield-guard/internal/model"
)

// Transformer owns the per-camera calibration map and the static Area
// table, and turns a raw bbox centroid into normalized/map/area fields.
type Transformer struct {
	mu     sync.RWMutex
	calibs map[string]model.Calibration

	areas []model.Area

	mapWidth, mapHeight           int
	realMapWidth, realMapHeight   float64
}

// New creates a Transformer for the given logical/physical plane sizes
// (spec.md defaults: 960x720 logical, 1800x1350mm physical).
func New(mapWidth, mapHeight int, realMapWidth, realMapHeight float64) *Transformer {
	return &Transformer{
		calibs:        make(map[string]model.Calibration),
		mapWidth:      mapWidth,
		mapHeight:     mapHeight,
		realMapWidth:  realMapWidth,
		realMapHeight: realMapHeight,
	}
}

// SetCalibration installs or replaces a camera's homography + scale.
func (t *Transformer) SetCalibration(c model.Calibration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calibs[c.CameraID] = c
}

// HasCalibration reports whether cameraID has a stored calibration.
func (t *Transformer) HasCalibration(cameraID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.calibs[cameraID]
	return ok
}

// SetAreas installs the static Area table (8 rows, loaded once at startup
// and on hot-reload of config/areas.yaml).
func (t *Transformer) SetAreas(areas []model.Area) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.areas = areas
}

// Transform fills in Detection.NormX/NormY/MapX/MapY/AreaID from the
// detection's bbox and the owning frame's pixel dimensions.
func (t *Transformer) Transform(d *model.Detection, frameWidth, frameHeight int) {
	cx, cy := d.BBox.Centroid()

	t.mu.RLock()
	calib, ok := t.calibs[d.CameraID]
	areas := t.areas
	t.mu.RUnlock()

	var nx, ny float64
	if ok {
		wx, wy, singular := project(calib.Homography, cx, cy)
		if singular {
			log.Printf("[coords] singular calibration matrix for camera %s, falling back to identity", d.CameraID)
			nx, ny = cx/float64(frameWidth), cy/float64(frameHeight)
		} else {
			nx, ny = wx/t.realMapWidth, wy/t.realMapHeight
		}
	} else {
		nx, ny = cx/float64(frameWidth), cy/float64(frameHeight)
	}

	d.NormX, d.NormY = nx, ny
	d.MapX = int(nx * float64(t.mapWidth))
	d.MapY = int(ny * float64(t.mapHeight))
	d.AreaID = locateArea(areas, nx, ny)
}

// project applies the 3x3 homography to (cx,cy) via perspective divide,
// returning world coordinates in millimetres. singular is true when the
// matrix could not be used (near-zero homogeneous denominator).
func project(h [3][3]float64, cx, cy float64) (wx, wy float64, singular bool) {
	m := mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
	p := mat.NewVecDense(3, []float64{cx, cy, 1})

	var out mat.VecDense
	out.MulVec(m, p)

	w := out.AtVec(2)
	const epsilon = 1e-9
	if w > -epsilon && w < epsilon {
		return 0, 0, true
	}
	return out.AtVec(0) / w, out.AtVec(1) / w, false
}

// locateArea returns the id of the first Area (in table order) whose
// rectangle contains (nx,ny), or 0 if none matches. Multiple matches log
// a warning and use the first, per spec.md §4.3.
func locateArea(areas []model.Area, nx, ny float64) int {
	matchID := 0
	matches := 0
	for _, a := range areas {
		if a.Contains(nx, ny) {
			matches++
			if matchID == 0 {
				matchID = a.ID
			}
		}
	}
	if matches > 1 {
		log.Printf("[coords] point (%.4f,%.4f) matched %d areas, using area %d", nx, ny, matches, matchID)
	}
	return matchID
}
