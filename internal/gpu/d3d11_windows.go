//go:build windows

package gpu

import (
	"fmt"
	"unsafe"
)

// d3d11Backend wraps the application's ID3D11Device. Copies run on the
// immediate context; legacy shared handles need no explicit sync because
// the runtime flushes the context before the compositor device sees them.
type d3d11Backend struct {
	device  uintptr // ID3D11Device, borrowed
	context uintptr // ID3D11DeviceContext, owned reference
}

// NewD3D11Backend builds a backend over the application's ID3D11Device
// taken from its session graphics binding.
func NewD3D11Backend(device uintptr) (Backend, error) {
	if device == 0 {
		return nil, fmt.Errorf("d3d11 backend: nil device")
	}
	var context uintptr
	comCallNoHR(device, vtblD3D11DeviceGetImmediateContext, uintptr(unsafe.Pointer(&context)))
	if context == 0 {
		return nil, fmt.Errorf("d3d11 backend: GetImmediateContext returned nil")
	}
	return &d3d11Backend{device: device, context: context}, nil
}

func (b *d3d11Backend) API() API { return APID3D11 }

func (b *d3d11Backend) NewSwapchainMirror(desc TextureDesc, images []uintptr) (SwapchainMirror, error) {
	texDesc := d3d11Texture2DDesc{
		Width:       desc.Width,
		Height:      desc.Height,
		MipLevels:   1,
		ArraySize:   1,
		Format:      uint32(desc.Format),
		SampleCount: 1,
		Usage:       d3d11UsageDefault,
		BindFlags:   d3d11BindShaderResource,
		MiscFlags:   d3d11ResourceMiscShared,
	}
	var clone uintptr
	if _, err := comCall(b.device, vtblD3D11DeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&texDesc)), 0, uintptr(unsafe.Pointer(&clone))); err != nil {
		return nil, fmt.Errorf("d3d11 clone %dx%d format %d: %w", desc.Width, desc.Height, desc.Format, err)
	}

	dxgiRes, err := comQueryInterface(clone, &iidIDXGIResource)
	if err != nil {
		comRelease(clone)
		return nil, fmt.Errorf("d3d11 clone IDXGIResource: %w", err)
	}
	var shared uintptr
	_, err = comCall(dxgiRes, vtblDXGIResourceGetSharedHandle, uintptr(unsafe.Pointer(&shared)))
	comRelease(dxgiRes)
	if err != nil {
		comRelease(clone)
		return nil, fmt.Errorf("d3d11 clone GetSharedHandle: %w", err)
	}

	return &d3d11Mirror{
		backend: b,
		desc:    desc,
		clone:   clone,
		shared:  uint64(shared),
		images:  append([]uintptr(nil), images...),
	}, nil
}

func (b *d3d11Backend) Close() error {
	comRelease(b.context)
	b.context = 0
	return nil
}

type d3d11Mirror struct {
	backend *d3d11Backend
	desc    TextureDesc
	clone   uintptr // ID3D11Texture2D, owned
	shared  uint64
	images  []uintptr // ID3D11Texture2D, borrowed
}

func (m *d3d11Mirror) Handle() uint64    { return m.shared }
func (m *d3d11Mirror) Desc() TextureDesc { return m.desc }

func (m *d3d11Mirror) CopyFrom(imageIndex int) error {
	if imageIndex < 0 || imageIndex >= len(m.images) {
		return fmt.Errorf("d3d11 copy: image index %d of %d", imageIndex, len(m.images))
	}
	if m.clone == 0 {
		return fmt.Errorf("d3d11 copy: mirror released")
	}
	comCallNoHR(m.backend.context, vtblD3D11CtxCopyResource, m.clone, m.images[imageIndex])
	return nil
}

func (m *d3d11Mirror) Release() {
	comRelease(m.clone)
	m.clone = 0
	m.images = nil
}
