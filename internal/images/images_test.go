package images

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emoseum/journey/internal/models"
)

func encodeTestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	img, err := Decode(encodeTestPNG(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Bounds().Dx() != 2 {
		t.Errorf("unexpected bounds: %v", img.Bounds())
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := Decode([]byte("not an image")); !errors.Is(err, models.ErrUndecodableImage) {
		t.Errorf("expected ErrUndecodableImage, got %v", err)
	}
	if _, err := Decode(nil); !errors.Is(err, models.ErrEmptyImageData) {
		t.Errorf("expected ErrEmptyImageData, got %v", err)
	}
}

func TestNewWriterRequiresDir(t *testing.T) {
	t.Setenv("JOURNEY_IMAGES_DIR", "")
	if _, err := NewWriter(); err == nil {
		t.Error("expected error when base directory not set")
	}
}

func TestSaveReflection(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WithBaseDir(dir))
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	img, err := Decode(encodeTestPNG(t))
	if err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	path, err := w.SaveReflection("u1", img, createdAt)
	if err != nil {
		t.Fatalf("SaveReflection failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved image not found: %v", err)
	}

	name := filepath.Base(path)
	if !strings.HasPrefix(name, "u1_20250601_120000_") {
		t.Errorf("unexpected filename prefix: %s", name)
	}
	if !strings.HasSuffix(name, "_reflection.png") {
		t.Errorf("unexpected filename suffix: %s", name)
	}

	// Saved file must decode back as PNG.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved image: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("saved file is not a valid PNG: %v", err)
	}
}

func TestSaveReflectionSameSecondNoCollision(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WithBaseDir(dir))
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	img, _ := Decode(encodeTestPNG(t))

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	first, err := w.SaveReflection("u1", img, createdAt)
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second, err := w.SaveReflection("u1", img, createdAt)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	if first == second {
		t.Error("two saves in the same second produced the same path")
	}
}
