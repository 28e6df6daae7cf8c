package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/wingscope/backend/apperrors"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 200, 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("encoding test png failed: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encoding test jpeg failed: %v", err)
	}
	return buf.Bytes()
}

func TestProbeDimensions(t *testing.T) {
	w, h, err := ProbeDimensions(pngBytes(t, 320, 200))
	if err != nil {
		t.Fatalf("ProbeDimensions failed: %v", err)
	}
	if w != 320 || h != 200 {
		t.Errorf("Expected 320x200, got %dx%d", w, h)
	}
}

func TestProbeDimensionsRejectsGarbage(t *testing.T) {
	_, _, err := ProbeDimensions([]byte("not an image at all"))
	if err == nil {
		t.Fatal("Expected error for undecodable input")
	}
	if !apperrors.IsKind(err, apperrors.KindDecode) {
		t.Errorf("Expected decode error kind, got %v", err)
	}
}

func TestTranscodeToPNG(t *testing.T) {
	out, err := TranscodeToPNG(jpegBytes(t, 64, 48))
	if err != nil {
		t.Fatalf("TranscodeToPNG failed: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a decodable png: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("Expected 64x48, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestTranscodeToPNGRejectsGarbage(t *testing.T) {
	_, err := TranscodeToPNG([]byte{0xde, 0xad, 0xbe, 0xef})
	if !apperrors.IsKind(err, apperrors.KindDecode) {
		t.Errorf("Expected decode error kind, got %v", err)
	}
}

func TestResizeForUploadPassthrough(t *testing.T) {
	src := pngBytes(t, 200, 100)
	out, err := ResizeForUpload(src, 200, 100, 256)
	if err != nil {
		t.Fatalf("ResizeForUpload failed: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Error("Expected input returned unchanged when within maxEdge")
	}
}

func TestResizeForUploadLongestEdge(t *testing.T) {
	src := pngBytes(t, 4000, 2000)
	out, err := ResizeForUpload(src, 4000, 2000, 256)
	if err != nil {
		t.Fatalf("ResizeForUpload failed: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a decodable png: %v", err)
	}
	if cfg.Width != 256 || cfg.Height != 128 {
		t.Errorf("Expected 256x128, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestResizeForUploadPortrait(t *testing.T) {
	src := pngBytes(t, 300, 600)
	out, err := ResizeForUpload(src, 300, 600, 256)
	if err != nil {
		t.Fatalf("ResizeForUpload failed: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a decodable png: %v", err)
	}
	if cfg.Height != 256 || cfg.Width != 128 {
		t.Errorf("Expected 128x256, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCaptureTimeWithoutExif(t *testing.T) {
	if got := CaptureTime(pngBytes(t, 8, 8)); got != nil {
		t.Errorf("Expected nil capture time for exif-less image, got %d", *got)
	}
}
