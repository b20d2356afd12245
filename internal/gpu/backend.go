// Package gpu abstracts the graphics API a VR session renders with. A
// Backend is built from the session's decoded graphics binding and owns the
// per-swapchain shareable clone textures: at image release time the
// application's rendered image is copied into the clone, and the clone's
// shared handle is what the compositor device opens on its side.
package gpu

import (
	"errors"

	"github.com/xrmirror/layer/internal/formats"
)

// API identifies the graphics API behind a Backend.
type API int

const (
	APIUnknown API = iota
	APID3D11
	APID3D12
)

func (a API) String() string {
	switch a {
	case APID3D11:
		return "d3d11"
	case APID3D12:
		return "d3d12"
	default:
		return "unknown"
	}
}

// TextureDesc is the subset of a texture description the mirror pipeline
// cares about. Clones are always single-sample, single-mip, single-layer.
type TextureDesc struct {
	Width  uint32
	Height uint32
	Format formats.Format
}

// SwapchainMirror owns the shareable clone texture for one swapchain plus
// whatever per-image machinery the API needs to copy into it.
type SwapchainMirror interface {
	// Handle returns the shared handle another device can open the clone
	// through. For D3D11 this is a legacy DXGI handle, for D3D12 an NT
	// handle.
	Handle() uint64

	// Desc returns the clone's dimensions and format.
	Desc() TextureDesc

	// CopyFrom copies the indexed swapchain image into the clone and makes
	// the copy visible to other devices before returning.
	CopyFrom(imageIndex int) error

	// Release frees the clone and per-image resources. The shared handle is
	// invalid afterwards.
	Release()
}

// Backend is the per-session graphics capability. Implementations wrap the
// application's own device; they never create a device of their own.
type Backend interface {
	API() API

	// NewSwapchainMirror builds the clone and copy machinery for one
	// swapchain. images are the native resource pointers enumerated from
	// the runtime, in index order; the backend borrows them and must not
	// outlive the swapchain.
	NewSwapchainMirror(desc TextureDesc, images []uintptr) (SwapchainMirror, error)

	// Close releases anything the backend acquired from the application
	// device. The device itself is borrowed and stays alive.
	Close() error
}

// ErrUnsupportedBinding is returned for graphics bindings the mirror cannot
// serve (OpenGL, Vulkan). Sessions with such bindings pass through.
var ErrUnsupportedBinding = errors.New("graphics binding not supported for mirroring")

// ErrFenceTimeout is reported when a copy fence fails to signal within the
// bounded wait. The frame is skipped rather than stalling the render loop.
var ErrFenceTimeout = errors.New("copy fence wait timed out")
