package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/airfield-guard/internal/model"
)

func twyA() model.Area {
	return model.Area{ID: 1, Name: "TWY_A", X1: 0, Y1: 0.4, X2: 0.3, Y2: 0.6}
}

func TestIdentityFallbackWhenNoCalibration(t *testing.T) {
	tr := New(960, 720, 1800, 1350)
	tr.SetAreas([]model.Area{twyA()})

	d := model.Detection{CameraID: "A", BBox: model.BBox{X1: 180, Y1: 200, X2: 220, Y2: 240}}
	tr.Transform(&d, 1000, 1000)

	assert.InDelta(t, 0.2, d.NormX, 1e-9)
	assert.InDelta(t, 0.22, d.NormY, 1e-9)
	assert.Equal(t, 192, d.MapX)
	assert.Equal(t, 158, d.MapY)
	assert.Equal(t, 0, d.AreaID, "0.2,0.22 is outside TWY_A's y-range")
}

func TestAreaLookupMatch(t *testing.T) {
	tr := New(960, 720, 1800, 1350)
	tr.SetAreas([]model.Area{twyA()})

	d := model.Detection{CameraID: "A", BBox: model.BBox{X1: 90, Y1: 450, X2: 110, Y2: 470}}
	tr.Transform(&d, 1000, 1000)

	assert.Equal(t, 1, d.AreaID)
}

func TestIdentityHomographyRoundTrips(t *testing.T) {
	tr := New(960, 720, 1800, 1350)
	tr.SetCalibration(model.Calibration{
		CameraID: "A",
		Homography: [3][3]float64{
			{1800.0 / 1000, 0, 0},
			{0, 1350.0 / 1000, 0},
			{0, 0, 1},
		},
	})

	d := model.Detection{CameraID: "A", BBox: model.BBox{X1: 400, Y1: 300, X2: 440, Y2: 340}}
	tr.Transform(&d, 1000, 1000)

	// centroid is (420,320) in a 1000x1000 frame scaled onto the 1800x1350
	// plane by this homography, which is equivalent to plain pixel/frame
	// normalization here.
	assert.InDelta(t, 0.42, d.NormX, 1e-9)
	assert.InDelta(t, 0.32, d.NormY, 1e-9)
}

func TestSingularMatrixFallsBackToIdentity(t *testing.T) {
	tr := New(960, 720, 1800, 1350)
	tr.SetCalibration(model.Calibration{
		CameraID:   "A",
		Homography: [3][3]float64{}, // all-zero -> singular denominator
	})

	d := model.Detection{CameraID: "A", BBox: model.BBox{X1: 100, Y1: 100, X2: 300, Y2: 300}}
	tr.Transform(&d, 1000, 1000)

	assert.InDelta(t, 0.2, d.NormX, 1e-9)
	assert.InDelta(t, 0.2, d.NormY, 1e-9)
}

func TestMultipleAreaMatchesUsesFirstInOrder(t *testing.T) {
	tr := New(960, 720, 1800, 1350)
	tr.SetAreas([]model.Area{
		{ID: 1, Name: "TWY_A", X1: 0, Y1: 0, X2: 1, Y2: 1},
		{ID: 2, Name: "TWY_B", X1: 0, Y1: 0, X2: 0.5, Y2: 0.5},
	})

	d := model.Detection{CameraID: "A", BBox: model.BBox{X1: 100, Y1: 100, X2: 100, Y2: 100}}
	tr.Transform(&d, 1000, 1000)

	require.Equal(t, 1, d.AreaID)
}
