//go:build windows

package intercept

import (
	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/compositor"
	"github.com/xrmirror/layer/internal/gpu"
)

// DefaultDeps wires the production constructors: real backends over the
// application's device, a dedicated D3D11 render device, and a named file
// mapping for the channel.
func DefaultDeps() Deps {
	return Deps{
		NewBackend: gpu.FromBinding,
		NewRenderer: func() (compositor.Renderer, error) {
			return compositor.NewRenderer()
		},
		OpenChannel: channel.Create,
	}
}
