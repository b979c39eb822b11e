// Package images persists reflection images for journey records.
//
// It validates that creation-time image bytes decode to a real image and
// writes them under a deterministic, collision-resistant filename derived
// from the owner and creation timestamp.
package images

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/emoseum/journey/internal/models"
	"github.com/emoseum/journey/internal/util"
)

// Constants for image storage configuration
const (
	// DefaultDirPermissions defines the default permissions for image directories
	DefaultDirPermissions = 0755
	// reflectionSubdir is the subdirectory for reflection images
	reflectionSubdir = "reflection"
	// filenameTimestampLayout gives second resolution; the random suffix
	// keeps names unique within the same second.
	filenameTimestampLayout = "20060102_150405"
)

// Opts holds configuration options for the image writer.
type Opts struct {
	BaseDir string
}

// Option defines a configuration option for the image writer.
type Option func(*Opts)

// WithBaseDir sets the base directory for stored images.
func WithBaseDir(dir string) Option {
	return func(o *Opts) { o.BaseDir = dir }
}

// Writer saves decoded images to durable storage.
type Writer struct {
	baseDir string
}

// NewWriter creates an image writer rooted at the configured base directory,
// creating the directory tree if needed. Falls back to the
// JOURNEY_IMAGES_DIR environment variable when no option is given.
func NewWriter(opts ...Option) (*Writer, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = os.Getenv("JOURNEY_IMAGES_DIR")
	}
	if cfg.BaseDir == "" {
		slog.Error("Image writer base directory not set")
		return nil, fmt.Errorf("image base directory not set")
	}

	dir := filepath.Join(cfg.BaseDir, reflectionSubdir)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create image directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	slog.Debug("Image writer initialized", "baseDir", cfg.BaseDir)

	return &Writer{baseDir: cfg.BaseDir}, nil
}

// Decode validates raw image bytes and returns the decoded image.
// Returns models.ErrUndecodableImage when the bytes are not a known format.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, models.ErrEmptyImageData
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Debug("Image decode failed", "error", err)
		return nil, fmt.Errorf("%w: %v", models.ErrUndecodableImage, err)
	}
	slog.Debug("Image decoded", "format", format)
	return img, nil
}

// SaveReflection writes the decoded image as PNG and returns the stored path.
// The filename is "<owner>_<timestamp>_<suffix>_reflection.png"; the random
// suffix avoids collisions when an owner creates multiple records within
// the timestamp's one-second resolution.
func (w *Writer) SaveReflection(ownerID string, img image.Image, createdAt time.Time) (string, error) {
	name := fmt.Sprintf("%s_%s_%s_reflection.png",
		ownerID, createdAt.Format(filenameTimestampLayout), util.GenerateFileSuffix())
	path := filepath.Join(w.baseDir, reflectionSubdir, name)

	f, err := os.Create(path)
	if err != nil {
		slog.Error("Writer.SaveReflection: create failed", "error", err, "path", path)
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		slog.Error("Writer.SaveReflection: encode failed", "error", err, "path", path)
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	slog.Debug("Writer.SaveReflection: image saved", "path", path)
	return path, nil
}
