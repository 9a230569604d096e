package export

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palayguard/palayguard-go/internal/conf"
	"github.com/palayguard/palayguard-go/internal/frame"
)

func exportSettings(dir string) *conf.Settings {
	settings := &conf.Settings{}
	settings.Realtime.Export.Enabled = true
	settings.Realtime.Export.Debug = true
	settings.Realtime.Export.Path = dir
	return settings
}

func encodeTestImage(t *testing.T, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, encode(&buf, img))
	return buf.Bytes()
}

func pngFrame(t *testing.T) *frame.Frame {
	t.Helper()
	data := encodeTestImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return png.Encode(buf, img)
	})
	frm, err := frame.NewFrame(data, "test:camera")
	require.NoError(t, err)
	return frm
}

func jpegFrame(t *testing.T) *frame.Frame {
	t.Helper()
	data := encodeTestImage(t, func(buf *bytes.Buffer, img image.Image) error {
		return jpeg.Encode(buf, img, nil)
	})
	frm, err := frame.NewFrame(data, "test:camera")
	require.NoError(t, err)
	return frm
}

func TestGenerateClipName(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	got := GenerateClipName("clips", "Rice Black Bug", 93, ts, ".jpg")

	want := filepath.Join("clips", "2026", "03", "rice_black_bug_93p_20260314T092653Z.jpg")
	assert.Equal(t, want, got)
}

func TestGenerateClipNameNormalizesToUTC(t *testing.T) {
	manila := time.FixedZone("PST", 8*60*60)
	ts := time.Date(2026, 1, 1, 5, 0, 0, 0, manila)

	got := GenerateClipName("clips", "Stem Borer", 88, ts, ".png")

	// 05:00 +08:00 is 21:00 UTC the previous day.
	want := filepath.Join("clips", "2025", "12", "stem_borer_88p_20251231T210000Z.png")
	assert.Equal(t, want, got)
}

func TestSaveSnapshotWritesPNG(t *testing.T) {
	dir := t.TempDir()
	frm := pngFrame(t)
	defer frm.Close()

	path, err := SaveSnapshot(exportSettings(dir), frm, "Golden Apple Snail", 87)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(path, dir))
	assert.Equal(t, ".png", filepath.Ext(path))
	assert.Contains(t, filepath.Base(path), "golden_apple_snail_87p_")

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, frm.Data(), written)
}

func TestSaveSnapshotWritesJPEGWithJpgExt(t *testing.T) {
	dir := t.TempDir()
	frm := jpegFrame(t)
	defer frm.Close()

	path, err := SaveSnapshot(exportSettings(dir), frm, "Rice Black Bug", 93)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(path))
	assert.FileExists(t, path)
}

func TestSaveSnapshotCreatesMonthDirectories(t *testing.T) {
	dir := t.TempDir()
	frm := pngFrame(t)
	defer frm.Close()

	path, err := SaveSnapshot(exportSettings(dir), frm, "Rice Bug", 90)
	require.NoError(t, err)

	utc := frm.Timestamp.UTC()
	assert.Equal(t, filepath.Join(dir, utc.Format("2006"), utc.Format("01")), filepath.Dir(path))
}

func TestSaveSnapshotClosedFrame(t *testing.T) {
	frm := pngFrame(t)
	frm.Close()

	_, err := SaveSnapshot(exportSettings(t.TempDir()), frm, "Rice Bug", 90)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed frame")
}

func TestSaveSnapshotLeavesFrameOpen(t *testing.T) {
	dir := t.TempDir()
	frm := pngFrame(t)
	defer frm.Close()

	_, err := SaveSnapshot(exportSettings(dir), frm, "Rice Bug", 90)
	require.NoError(t, err)
	assert.False(t, frm.Closed())
	assert.NotEmpty(t, frm.Data())
}
