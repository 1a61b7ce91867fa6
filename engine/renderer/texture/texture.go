// Package texture loads image files into device textures and hands out stable handles.
package texture

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Carmen-Shannon/adria-go/common"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/device"
	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
)

// Handle identifies a loaded texture. Handles start at 1 and are never reused.
type Handle uint32

// InvalidHandle is never returned for a successful load.
const InvalidHandle Handle = 0

// Manager deduplicates texture loads by path. Textures are kept until Destroy.
type Manager interface {
	// LoadTexture decodes the image at path and creates a texture, or returns the handle of
	// an earlier load of the same path.
	//
	// Parameters:
	//   - path: the image file, relative paths are resolved against the working directory
	//
	// Returns:
	//   - Handle: the texture handle
	//   - error: a decode or device error; no handle is consumed on failure
	LoadTexture(path string) (Handle, error)

	// LoadTextureData decodes encoded image bytes. Loads are deduplicated by name.
	//
	// Parameters:
	//   - name: a unique name for the image
	//   - data: PNG, JPEG, BMP, TIFF or GIF bytes
	//
	// Returns:
	//   - Handle: the texture handle
	//   - error: a decode or device error
	LoadTextureData(name string, data []byte) (Handle, error)

	// Texture returns the device texture for h, or nil if h is unknown.
	Texture(h Handle) *device.Texture

	// Lookup returns the handle of an earlier load of path.
	Lookup(path string) (Handle, bool)

	// Len returns the number of loaded textures.
	Len() int

	// Destroy releases every texture.
	Destroy()
}

type manager struct {
	device  device.Device
	logger  *slog.Logger
	format  dxgi.Format
	maxSize int

	mu       sync.Mutex
	next     Handle
	byKey    map[string]Handle
	textures map[Handle]*device.Texture
}

var _ Manager = &manager{}

// NewManager creates a texture manager on dev.
//
// Parameters:
//   - dev: the device textures are created on
//   - opts: optional configuration
//
// Returns:
//   - Manager: the texture manager
func NewManager(dev device.Device, opts ...ManagerBuilderOption) Manager {
	m := &manager{
		device:   dev,
		logger:   slog.Default(),
		next:     1,
		byKey:    make(map[string]Handle),
		textures: make(map[Handle]*device.Texture),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.format = common.Coalesce(m.format, dxgi.FormatR8G8B8A8UnormSRGB)
	return m
}

func (m *manager) LoadTexture(path string) (Handle, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return InvalidHandle, fmt.Errorf("texture: failed to resolve %q: %w", path, err)
	}
	return m.load(filepath.Clean(key), &common.ImportedTexture{Name: filepath.Base(key), Path: key, MaxSize: m.maxSize})
}

func (m *manager) LoadTextureData(name string, data []byte) (Handle, error) {
	return m.load("data:"+name, &common.ImportedTexture{Name: name, Data: data, MaxSize: m.maxSize})
}

// load runs under the lock so concurrent loads of one key create a single texture.
func (m *manager) load(key string, src *common.ImportedTexture) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.byKey[key]; ok {
		return h, nil
	}

	staging, err := src.Decode()
	if err != nil {
		return InvalidHandle, fmt.Errorf("texture: %w", err)
	}
	tex, err := m.device.CreateTexture(&device.TextureDesc{
		Label:  src.Name,
		Width:  staging.Width,
		Height: staging.Height,
		Format: m.format,
		Pixels: staging.Pixels,
	})
	if err != nil {
		return InvalidHandle, fmt.Errorf("texture: %w", err)
	}

	h := m.next
	m.next++
	m.byKey[key] = h
	m.textures[h] = tex
	m.logger.Debug("loaded texture", "name", src.Name, "handle", uint32(h), "width", staging.Width, "height", staging.Height)
	return h, nil
}

func (m *manager) Texture(h Handle) *device.Texture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textures[h]
}

func (m *manager) Lookup(path string) (Handle, bool) {
	key, err := filepath.Abs(path)
	if err != nil {
		return InvalidHandle, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byKey[filepath.Clean(key)]
	return h, ok
}

func (m *manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.textures)
}

func (m *manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, tex := range m.textures {
		m.device.Release(tex)
		delete(m.textures, h)
	}
	m.byKey = make(map[string]Handle)
}
