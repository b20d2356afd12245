//go:build !windows

package intercept

import (
	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/compositor"
	"github.com/xrmirror/layer/internal/gpu"
	"github.com/xrmirror/layer/internal/xrtypes"
)

// DefaultDeps on non-windows platforms fails at channel creation, which
// disables mirroring the same way a mapping failure would on windows.
func DefaultDeps() Deps {
	return Deps{
		NewBackend: func(xrtypes.GraphicsBinding) (gpu.Backend, error) {
			return nil, gpu.ErrUnsupportedBinding
		},
		NewRenderer: func() (compositor.Renderer, error) {
			return nil, channel.ErrUnsupported
		},
		OpenChannel: channel.Create,
	}
}
