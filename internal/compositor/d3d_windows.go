//go:build windows

package compositor

import (
	"fmt"
	"syscall"
	"unsafe"
)

// D3D11 ABI surface for the renderer: DLL procs, constants, vtable indices
// and struct mirrors. The compositor runs on its own device, separate from
// the application's, so nothing here touches gpu package state.

var (
	d3d11DLL       = syscall.NewLazyDLL("d3d11.dll")
	d3dcompilerDLL = syscall.NewLazyDLL("d3dcompiler_47.dll")

	procD3D11CreateDevice = d3d11DLL.NewProc("D3D11CreateDevice")
	procD3DCompile        = d3dcompilerDLL.NewProc("D3DCompile")
)

const (
	d3dDriverTypeHardware = 1
	d3dFeatureLevel11_0   = 0xb000
	d3dFeatureLevel11_1   = 0xb100
	d3d11SDKVersion       = 7

	d3d11CreateDeviceBGRASupport = 0x20

	d3d11UsageDefault = 0
	d3d11UsageDynamic = 2

	d3d11BindVertexBuffer   = 0x1
	d3d11BindIndexBuffer    = 0x2
	d3d11BindConstantBuffer = 0x4
	d3d11BindShaderResource = 0x8
	d3d11BindRenderTarget   = 0x20

	d3d11CPUAccessWrite  = 0x10000
	d3d11MapWriteDiscard = 4

	d3d11ResourceMiscShared = 0x2

	d3d11FilterMinMagMipLinear = 0x15
	d3d11TextureAddressClamp   = 3
	d3d11ComparisonNever       = 1

	d3d11BlendZero        = 1
	d3d11BlendOne         = 2
	d3d11BlendSrcAlpha    = 6
	d3d11BlendInvSrcAlpha = 7
	d3d11BlendOpAdd       = 1
	d3d11WriteEnableAll   = 0xF

	d3d11TopologyTriangleList = 4

	d3d11InputPerVertexData   = 0
	d3d11AppendAlignedElement = 0xFFFFFFFF

	d3d11SRVDimensionTexture2D = 4
	d3d11RTVDimensionTexture2D = 4

	dxgiFormatR32G32B32A32Float = 2
	dxgiFormatR32G32Float       = 16
	dxgiFormatR16Uint           = 57

	// D3DCOMPILE flags
	d3dcompilePackMatrixColumnMajor = 0x8
	d3dcompileEnableStrictness      = 0x800
	d3dcompileOptimizationLevel3    = 0x8000
	d3dcompileWarningsAreErrors     = 0x40000

	// ID3D11Device
	vtblDeviceCreateBuffer             = 3
	vtblDeviceCreateTexture2D          = 5
	vtblDeviceCreateShaderResourceView = 7
	vtblDeviceCreateRenderTargetView   = 9
	vtblDeviceCreateInputLayout        = 11
	vtblDeviceCreateVertexShader       = 12
	vtblDeviceCreatePixelShader        = 15
	vtblDeviceCreateBlendState         = 20
	vtblDeviceCreateSamplerState       = 23
	vtblDeviceOpenSharedResource       = 28
	vtblDeviceGetImmediateContext      = 40

	// ID3D11Device1
	vtblDevice1OpenSharedResource1 = 48

	// ID3D11DeviceContext
	vtblCtxVSSetConstantBuffers   = 7
	vtblCtxPSSetShaderResources   = 8
	vtblCtxPSSetShader            = 9
	vtblCtxPSSetSamplers          = 10
	vtblCtxVSSetShader            = 11
	vtblCtxDrawIndexed            = 12
	vtblCtxMap                    = 14
	vtblCtxUnmap                  = 15
	vtblCtxIASetInputLayout       = 17
	vtblCtxIASetVertexBuffers     = 18
	vtblCtxIASetIndexBuffer       = 19
	vtblCtxIASetPrimitiveTopology = 24
	vtblCtxOMSetRenderTargets     = 33
	vtblCtxOMSetBlendState        = 35
	vtblCtxRSSetViewports         = 44
	vtblCtxRSSetScissorRects      = 45
	vtblCtxCopySubresourceRegion  = 46
	vtblCtxCopyResource           = 47
	vtblCtxUpdateSubresource      = 48
	vtblCtxClearRenderTargetView  = 50
	vtblCtxFlush                  = 111

	// ID3D11Texture2D
	vtblTexture2DGetDesc = 10

	// IDXGIResource
	vtblDXGIResourceGetSharedHandle = 8

	// ID3DBlob
	vtblBlobGetBufferPointer = 3
	vtblBlobGetBufferSize    = 4
)

var (
	iidID3D11Texture2D = comGUID{0x6f15aaf2, 0xd208, 0x4e89, [8]byte{0x9a, 0xb4, 0x48, 0x95, 0x35, 0xd3, 0x4f, 0x9c}}
	iidID3D11Device1   = comGUID{0xa04bfb29, 0x08ef, 0x43d6, [8]byte{0xa4, 0x9c, 0xa9, 0xbd, 0xbd, 0xcb, 0xe6, 0x86}}
	iidIDXGIResource   = comGUID{0x035f3ab4, 0x482e, 0x4e50, [8]byte{0xb4, 0x1f, 0x8a, 0x7f, 0x8b, 0xd8, 0x96, 0x0b}}
)

// comGUID is a COM GUID (128-bit).
type comGUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// comCall invokes a COM vtable method at the given index.
func comCall(obj uintptr, vtableIdx int, args ...uintptr) (uintptr, error) {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	fnPtr := *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(vtableIdx)*unsafe.Sizeof(uintptr(0))))
	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(fnPtr, allArgs...)
	if int32(ret) < 0 {
		return ret, fmt.Errorf("COM vtable[%d] HRESULT 0x%08X", vtableIdx, uint32(ret))
	}
	return ret, nil
}

// comCallNoHR invokes a void or non-HRESULT vtable method.
func comCallNoHR(obj uintptr, vtableIdx int, args ...uintptr) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	fnPtr := *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(vtableIdx)*unsafe.Sizeof(uintptr(0))))
	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(fnPtr, allArgs...)
	return ret
}

// comQueryInterface calls IUnknown::QueryInterface (vtable index 0).
func comQueryInterface(obj uintptr, iid *comGUID) (uintptr, error) {
	var out uintptr
	_, err := comCall(obj, 0, uintptr(unsafe.Pointer(iid)), uintptr(unsafe.Pointer(&out)))
	if err != nil {
		return 0, err
	}
	return out, nil
}

// comRelease calls IUnknown::Release (vtable index 2).
func comRelease(obj uintptr) {
	if obj != 0 {
		vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
		fnPtr := *(*uintptr)(unsafe.Pointer(vtablePtr + 2*unsafe.Sizeof(uintptr(0))))
		syscall.SyscallN(fnPtr, obj)
	}
}

// d3d11Texture2DDesc matches D3D11_TEXTURE2D_DESC (44 bytes).
type d3d11Texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32 // DXGI_SAMPLE_DESC.Count
	SampleQuality  uint32 // DXGI_SAMPLE_DESC.Quality
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

// d3d11BufferDesc matches D3D11_BUFFER_DESC.
type d3d11BufferDesc struct {
	ByteWidth           uint32
	Usage               uint32
	BindFlags           uint32
	CPUAccessFlags      uint32
	MiscFlags           uint32
	StructureByteStride uint32
}

// d3d11SubresourceData matches D3D11_SUBRESOURCE_DATA.
type d3d11SubresourceData struct {
	PSysMem          uintptr
	SysMemPitch      uint32
	SysMemSlicePitch uint32
}

// d3d11MappedSubresource matches D3D11_MAPPED_SUBRESOURCE.
type d3d11MappedSubresource struct {
	PData      uintptr
	RowPitch   uint32
	DepthPitch uint32
}

// d3d11InputElementDesc matches D3D11_INPUT_ELEMENT_DESC.
type d3d11InputElementDesc struct {
	SemanticName         *byte
	SemanticIndex        uint32
	Format               uint32
	InputSlot            uint32
	AlignedByteOffset    uint32
	InputSlotClass       uint32
	InstanceDataStepRate uint32
}

// d3d11SamplerDesc matches D3D11_SAMPLER_DESC.
type d3d11SamplerDesc struct {
	Filter         uint32
	AddressU       uint32
	AddressV       uint32
	AddressW       uint32
	MipLODBias     float32
	MaxAnisotropy  uint32
	ComparisonFunc uint32
	BorderColor    [4]float32
	MinLOD         float32
	MaxLOD         float32
}

// d3d11RenderTargetBlendDesc matches D3D11_RENDER_TARGET_BLEND_DESC.
type d3d11RenderTargetBlendDesc struct {
	BlendEnable           int32
	SrcBlend              uint32
	DestBlend             uint32
	BlendOp               uint32
	SrcBlendAlpha         uint32
	DestBlendAlpha        uint32
	BlendOpAlpha          uint32
	RenderTargetWriteMask uint8
	_                     [3]byte
}

// d3d11BlendDesc matches D3D11_BLEND_DESC.
type d3d11BlendDesc struct {
	AlphaToCoverageEnable  int32
	IndependentBlendEnable int32
	RenderTarget           [8]d3d11RenderTargetBlendDesc
}

// d3d11SRVDesc matches D3D11_SHADER_RESOURCE_VIEW_DESC with the Texture2D
// union member active.
type d3d11SRVDesc struct {
	Format          uint32
	ViewDimension   uint32
	MostDetailedMip uint32
	MipLevels       uint32
	_               [2]uint32 // union padding
}

// d3d11RTVDesc matches D3D11_RENDER_TARGET_VIEW_DESC with the Texture2D
// union member active.
type d3d11RTVDesc struct {
	Format        uint32
	ViewDimension uint32
	MipSlice      uint32
	_             [2]uint32 // union padding
}

// d3d11Viewport matches D3D11_VIEWPORT.
type d3d11Viewport struct {
	TopLeftX float32
	TopLeftY float32
	Width    float32
	Height   float32
	MinDepth float32
	MaxDepth float32
}

// d3d11Box matches D3D11_BOX.
type d3d11Box struct {
	Left   uint32
	Top    uint32
	Front  uint32
	Right  uint32
	Bottom uint32
	Back   uint32
}

// d3d11Rect matches D3D11_RECT.
type d3d11Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}
