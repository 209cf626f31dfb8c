package preview

import (
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"example.com/snapevent/internal/storage"
)

// MaxDimension bounds the longer edge of generated previews
const MaxDimension = 640

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
}

// IsImage reports whether a stored file can get a downscaled preview.
// Videos are served as-is; browsers handle their own poster frames.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Generator produces downscaled preview images next to the originals
type Generator struct {
	files storage.FileStore
}

// NewGenerator creates a preview generator over the given store
func NewGenerator(files storage.FileStore) *Generator {
	return &Generator{files: files}
}

// Generate renders a preview for the image at path and returns the preview's
// storage path. Non-image files are skipped with an empty path.
func (g *Generator) Generate(path string) (string, error) {
	if !IsImage(path) {
		return "", nil
	}

	abs, err := g.files.Abs(path)
	if err != nil {
		return "", err
	}

	img, err := imaging.Open(abs, imaging.AutoOrientation(true))
	if err != nil {
		return "", errors.Wrapf(err, "failed to open image %s", path)
	}

	thumb := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)

	previewPath := PreviewPath(path)
	previewAbs, err := g.files.Abs(previewPath)
	if err != nil {
		return "", err
	}
	if err := g.files.EnsureDir(filepath.Dir(previewPath)); err != nil {
		return "", err
	}
	if err := imaging.Save(thumb, previewAbs, imaging.JPEGQuality(80)); err != nil {
		return "", errors.Wrapf(err, "failed to save preview for %s", path)
	}
	return previewPath, nil
}

// PreviewPath derives the preview location from an original's storage path
func PreviewPath(original string) string {
	dir := filepath.ToSlash(filepath.Dir(original))
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	return dir + "/previews/" + base + ".jpg"
}
