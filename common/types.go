// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// ImportedTexture represents texture data to be decoded for upload.
// For in-memory textures the Data field contains raw image bytes.
// For textures on disk the Path field contains the file path.
type ImportedTexture struct {
	// Name is an identifier for this texture (e.g., "diffuse", "normal").
	Name string

	// Path is the file path for textures on disk (empty for in-memory data).
	Path string

	// Data contains raw encoded image bytes (PNG/JPEG/BMP/TIFF/GIF).
	Data []byte

	// MaxSize, when non-zero, downsizes the decoded image so neither side exceeds it.
	MaxSize int
}

// Decode decodes the texture to RGBA staging data.
// Uses either the Data bytes or loads from Path on disk, honoring EXIF orientation.
//
// Returns:
//   - TextureStagingData: RGBA pixel data (4 bytes per pixel, row-major order) and dimensions
//   - error: error if decoding fails
func (t *ImportedTexture) Decode() (TextureStagingData, error) {
	if t == nil {
		return TextureStagingData{}, fmt.Errorf("texture is nil")
	}

	var img image.Image
	var err error

	switch {
	case len(t.Data) > 0:
		img, err = imaging.Decode(bytes.NewReader(t.Data), imaging.AutoOrientation(true))
		if err != nil {
			return TextureStagingData{}, fmt.Errorf("failed to decode embedded image %s: %w", t.Name, err)
		}
	case t.Path != "":
		img, err = imaging.Open(t.Path, imaging.AutoOrientation(true))
		if err != nil {
			return TextureStagingData{}, fmt.Errorf("failed to decode texture file %s: %w", t.Path, err)
		}
	default:
		return TextureStagingData{}, fmt.Errorf("texture has neither data nor path")
	}

	if t.MaxSize > 0 {
		b := img.Bounds()
		if b.Dx() > t.MaxSize || b.Dy() > t.MaxSize {
			img = imaging.Fit(img, t.MaxSize, t.MaxSize, imaging.Lanczos)
		}
	}

	// Clone converts any source image into a tightly packed NRGBA buffer.
	rgba := imaging.Clone(img)
	bounds := rgba.Bounds()

	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}, nil
}
