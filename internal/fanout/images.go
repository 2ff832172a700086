package fanout

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/technosupport/airfield-guard/internal/model"
)

// maxCropBytes is the ME_FD crop size spec.md §4.6 expects clients to
// budget for; crops over this are re-encoded at a lower quality.
const maxCropBytes = 4096

// CropDetection decodes frameJPEG, crops to d's bounding box (clamped to
// the frame bounds) and re-encodes as JPEG. If the first encode exceeds
// maxCropBytes it is retried once at a lower quality, matching the
// "quality 85, drop to 60 if still too large" policy.
func CropDetection(frameJPEG []byte, d model.Detection) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(frameJPEG))
	if err != nil {
		return nil, fmt.Errorf("fanout: decode frame: %w", err)
	}

	bounds := img.Bounds()
	rect := clampRect(bounds, d.BBox)
	if rect.Empty() {
		return nil, fmt.Errorf("fanout: detection bbox outside frame bounds")
	}

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw(cropped, rect, img)

	out, err := encodeAtQuality(cropped, 85)
	if err != nil {
		return nil, err
	}
	if len(out) > maxCropBytes {
		out, err = encodeAtQuality(cropped, 60)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func clampRect(bounds image.Rectangle, b model.BBox) image.Rectangle {
	x1, y1, x2, y2 := int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)
	r := image.Rect(x1, y1, x2, y2).Intersect(bounds)
	return r
}

// draw copies src's pixels within srcRect into dst starting at (0,0),
// avoiding a dependency on golang.org/x/image/draw for a single-use copy.
func draw(dst *image.RGBA, srcRect image.Rectangle, src image.Image) {
	for y := srcRect.Min.Y; y < srcRect.Max.Y; y++ {
		for x := srcRect.Min.X; x < srcRect.Max.X; x++ {
			dst.Set(x-srcRect.Min.X, y-srcRect.Min.Y, src.At(x, y))
		}
	}
}

func encodeAtQuality(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("fanout: encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
