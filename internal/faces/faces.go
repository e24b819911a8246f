// Package faces lists and loads board-face images from a folder.
package faces

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/defectctl/internal/logs"
	"github.com/danmuck/defectctl/internal/protocol"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
)

var (
	ErrInvalidKey  = errors.New("faces: invalid face key")
	ErrNotAFolder  = errors.New("faces: not a folder")
	ErrEmptyFolder = errors.New("faces: empty folder path")
)

// Config controls which files count as faces and how keys are derived.
type Config struct {
	Extension string
	// Narrow is the default IsNarrow for every key.
	Narrow bool
	// NarrowSuffix, when set, marks keys whose prefix ends with it as narrow
	// and all others as wide.
	NarrowSuffix string
}

func DefaultConfig() Config {
	return Config{Extension: "tiff"}
}

// Store reads faces from the local filesystem. It holds no per-folder state
// and is safe for concurrent use.
type Store struct {
	cfg Config
}

func NewStore(cfg Config) *Store {
	cfg.Extension = strings.TrimPrefix(strings.TrimSpace(cfg.Extension), ".")
	if cfg.Extension == "" {
		cfg.Extension = DefaultConfig().Extension
	}
	return &Store{cfg: cfg}
}

// List returns the keys of every face file directly inside root, in
// directory order.
func (s *Store) List(ctx context.Context, root string) ([]protocol.FaceKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(root) == "" {
		return nil, ErrEmptyFolder
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("faces: list %q: %w", root, err)
	}
	suffix := "." + s.cfg.Extension
	keys := make([]protocol.FaceKey, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		prefix, ok := strings.CutSuffix(entry.Name(), suffix)
		if !ok || prefix == "" {
			continue
		}
		keys = append(keys, s.key(prefix))
	}
	logs.Debugf("faces.List root=%q entries=%d keys=%d", root, len(entries), len(keys))
	return keys, nil
}

func (s *Store) key(prefix string) protocol.FaceKey {
	narrow := s.cfg.Narrow
	if s.cfg.NarrowSuffix != "" {
		narrow = strings.HasSuffix(prefix, s.cfg.NarrowSuffix)
	}
	return protocol.FaceKey{Prefix: prefix, IsNarrow: narrow}
}

// Resolve returns the file path for key inside root. The prefix must be a
// single path element other than "." or "..".
func (s *Store) Resolve(root string, key protocol.FaceKey) (string, error) {
	prefix := key.Prefix
	switch {
	case prefix == "", prefix == ".", prefix == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, prefix)
	case strings.ContainsAny(prefix, `/\`):
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, prefix)
	case strings.ContainsRune(prefix, 0):
		return "", fmt.Errorf("%w: nul byte", ErrInvalidKey)
	}
	return filepath.Join(root, key.FileName(s.cfg.Extension)), nil
}

// Load decodes the face for key into an RGB raster.
func (s *Store) Load(ctx context.Context, root string, key protocol.FaceKey) (protocol.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return protocol.ImageData{}, err
	}
	path, err := s.Resolve(root, key)
	if err != nil {
		return protocol.ImageData{}, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return protocol.ImageData{}, fmt.Errorf("faces: load %q: %w", path, err)
	}
	if !info.IsDir() {
		return protocol.ImageData{}, fmt.Errorf("%w: %q", ErrNotAFolder, root)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return protocol.ImageData{}, fmt.Errorf("faces: load %q: %w", path, err)
	}
	data := ToRGB(img)
	logs.Debugf("faces.Load path=%q size=%dx%d", path, data.Width, data.Height)
	return data, nil
}

// ToRGB flattens img into a tightly packed RGB raster.
func ToRGB(img image.Image) protocol.ImageData {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	pixels := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			pixels = append(pixels, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return protocol.ImageData{Width: uint32(w), Height: uint32(h), Pixels: pixels}
}

// ToNRGBA expands an RGB raster into an opaque image.
func ToNRGBA(data protocol.ImageData) (*image.NRGBA, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	w, h := int(data.Width), int(data.Height)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i < len(data.Pixels); i, j = i+3, j+4 {
		img.Pix[j] = data.Pixels[i]
		img.Pix[j+1] = data.Pixels[i+1]
		img.Pix[j+2] = data.Pixels[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
