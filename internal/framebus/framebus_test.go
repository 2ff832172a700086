package framebus

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/airfield-guard/internal/model"
)

func TestParseDatagram(t *testing.T) {
	cameraID, frameID, jpeg, err := ParseDatagram([]byte("A:1700000000123456789:\xFF\xD8\xFF:trailing"))
	require.NoError(t, err)
	assert.Equal(t, "A", cameraID)
	assert.Equal(t, int64(1700000000123456789), frameID)
	assert.Equal(t, []byte("\xFF\xD8\xFF:trailing"), jpeg)
}

func TestParseDatagramMalformed(t *testing.T) {
	cases := [][]byte{
		[]byte("noseparators"),
		[]byte("A:onlyoneseparator"),
		[]byte("A:notanumber:jpeg"),
	}
	for _, c := range cases {
		_, _, _, err := ParseDatagram(c)
		assert.Error(t, err)
	}
}

func TestPutAndLatest(t *testing.T) {
	b := New(60, 2*time.Second)
	b.Put(model.Frame{CameraID: "A", FrameID: 1, JPEG: []byte("one"), Received: time.Now()})
	b.Put(model.Frame{CameraID: "A", FrameID: 2, JPEG: []byte("two"), Received: time.Now()})

	f, ok := b.Latest("A")
	require.True(t, ok)
	assert.Equal(t, int64(2), f.FrameID)

	_, ok = b.Latest("B")
	assert.False(t, ok)
}

func TestGetExactFrame(t *testing.T) {
	b := New(60, 2*time.Second)
	b.Put(model.Frame{CameraID: "A", FrameID: 100, JPEG: []byte("x"), Received: time.Now()})

	f, ok := b.Get("A", 100)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), f.JPEG)

	_, ok = b.Get("A", 999)
	assert.False(t, ok)
}

func TestEvictsOldestOnOverflow(t *testing.T) {
	b := New(3, time.Hour)
	for i := int64(1); i <= 5; i++ {
		b.Put(model.Frame{CameraID: "A", FrameID: i, Received: time.Now()})
	}

	_, ok := b.Get("A", 1)
	assert.False(t, ok, "frame 1 should have been evicted")
	_, ok = b.Get("A", 2)
	assert.False(t, ok, "frame 2 should have been evicted")

	f, ok := b.Get("A", 5)
	require.True(t, ok)
	assert.Equal(t, int64(5), f.FrameID)
}

func TestAgeOutEvictsAtExactly2sBoundary(t *testing.T) {
	b := New(60, 2*time.Second)
	base := time.Now()

	b.Put(model.Frame{CameraID: "A", FrameID: 1, Received: base})
	b.Put(model.Frame{CameraID: "A", FrameID: 2, Received: base.Add(3 * time.Second)})

	// frame 1 is exactly 2s old at this cutoff -> evicted per spec's
	// "frame_age = 2s exactly -> evicted" boundary rule.
	b.AgeOut(base.Add(2 * time.Second))

	_, ok := b.Get("A", 1)
	assert.False(t, ok)
	_, ok = b.Get("A", 2)
	assert.True(t, ok)
}

func TestDecodeDimensionsReadsJPEGHeader(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	img.Set(0, 0, color.Gray{Y: 128})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	width, height := decodeDimensions(buf.Bytes())
	assert.Equal(t, 64, width)
	assert.Equal(t, 48, height)
}

func TestDecodeDimensionsMalformedReturnsZero(t *testing.T) {
	width, height := decodeDimensions([]byte("not a jpeg"))
	assert.Equal(t, 0, width)
	assert.Equal(t, 0, height)
}

func TestDuplicateFrameIDIgnored(t *testing.T) {
	b := New(60, time.Hour)
	b.Put(model.Frame{CameraID: "A", FrameID: 1, JPEG: []byte("first"), Received: time.Now()})
	b.Put(model.Frame{CameraID: "A", FrameID: 1, JPEG: []byte("second"), Received: time.Now()})

	f, ok := b.Get("A", 1)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), f.JPEG)
}
