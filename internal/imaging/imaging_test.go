package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func testPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{0, 128, 255, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestProcessJPEG(t *testing.T) {
	result, err := Process(bytes.NewReader(testJPEG(100, 100)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", result.MIME)
	}
	if len(result.Data) == 0 {
		t.Error("expected non-empty photo data")
	}
}

func TestProcessPNGConvertsToJPEG(t *testing.T) {
	result, err := Process(bytes.NewReader(testPNG(50, 50)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.MIME != "image/jpeg" {
		t.Errorf("expected PNG to be re-encoded as JPEG, got %s", result.MIME)
	}
}

func TestProcessDownscales(t *testing.T) {
	result, err := Process(bytes.NewReader(testJPEG(2048, 1024)))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(result.Data))
	if err != nil {
		t.Fatalf("decoding processed photo: %v", err)
	}
	if img.Bounds().Dx() > MaxDimension || img.Bounds().Dy() > MaxDimension {
		t.Errorf("expected dimensions within %d, got %dx%d",
			MaxDimension, img.Bounds().Dx(), img.Bounds().Dy())
	}
	// Aspect ratio 2:1 should be preserved.
	if img.Bounds().Dx() != 1024 || img.Bounds().Dy() != 512 {
		t.Errorf("expected 1024x512, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestProcessRejectsNonImage(t *testing.T) {
	_, err := Process(bytes.NewReader([]byte("not a photo at all")))
	if err == nil {
		t.Error("expected error for non-image data")
	}
}
