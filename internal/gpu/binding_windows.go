//go:build windows

package gpu

import (
	"github.com/xrmirror/layer/internal/xrtypes"
)

// FromBinding builds the backend matching a session's decoded graphics
// binding. Unknown bindings return ErrUnsupportedBinding and the session is
// left alone.
func FromBinding(binding xrtypes.GraphicsBinding) (Backend, error) {
	switch b := binding.(type) {
	case xrtypes.GraphicsBindingD3D11:
		return NewD3D11Backend(b.Device)
	case xrtypes.GraphicsBindingD3D12:
		return NewD3D12Backend(b.Device, b.Queue)
	default:
		return nil, ErrUnsupportedBinding
	}
}
