package fanout

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/airfield-guard/internal/model"
)

func makeTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestCropDetectionProducesValidJPEG(t *testing.T) {
	frame := makeTestJPEG(t, 640, 480)
	d := model.Detection{BBox: model.BBox{X1: 10, Y1: 10, X2: 110, Y2: 110}}

	out, err := CropDetection(frame, d)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestCropDetectionClampsToFrameBounds(t *testing.T) {
	frame := makeTestJPEG(t, 100, 100)
	d := model.Detection{BBox: model.BBox{X1: 80, Y1: 80, X2: 200, Y2: 200}}

	out, err := CropDetection(frame, d)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 20, img.Bounds().Dy())
}

func TestCropDetectionOutsideFrameErrors(t *testing.T) {
	frame := makeTestJPEG(t, 50, 50)
	d := model.Detection{BBox: model.BBox{X1: 100, Y1: 100, X2: 200, Y2: 200}}

	_, err := CropDetection(frame, d)
	assert.Error(t, err)
}

func TestCropDetectionLargeRegionStaysUnderBudget(t *testing.T) {
	frame := makeTestJPEG(t, 1920, 1080)
	d := model.Detection{BBox: model.BBox{X1: 0, Y1: 0, X2: 1920, Y2: 1080}}

	out, err := CropDetection(frame, d)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), maxCropBytes*4, "even a re-encode at quality 60 should stay bounded for a busy image")
}

func TestCropDetectionMalformedFrameErrors(t *testing.T) {
	_, err := CropDetection([]byte("not a jpeg"), model.Detection{BBox: model.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10}})
	assert.Error(t, err)
}
