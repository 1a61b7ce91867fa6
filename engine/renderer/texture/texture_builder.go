package texture

import (
	"log/slog"

	"github.com/Carmen-Shannon/adria-go/engine/renderer/dxgi"
)

// ManagerBuilderOption is a functional option used to configure a Manager during construction.
type ManagerBuilderOption func(*manager)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ManagerBuilderOption {
	return func(m *manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMaxSize downsizes decoded images so neither side exceeds size. Zero keeps the source size.
//
// Parameters:
//   - size: the maximum width and height in pixels
//
// Returns:
//   - ManagerBuilderOption: a function that sets the maximum size
func WithMaxSize(size int) ManagerBuilderOption {
	return func(m *manager) {
		m.maxSize = max(size, 0)
	}
}

// WithFormat sets the texture format. It must be a 4-byte RGBA format since decoded pixels are
// 8-bit RGBA. Defaults to R8G8B8A8_UNORM_SRGB.
func WithFormat(f dxgi.Format) ManagerBuilderOption {
	return func(m *manager) {
		m.format = f
	}
}
