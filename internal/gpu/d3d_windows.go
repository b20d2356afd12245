//go:build windows

package gpu

// D3D11/D3D12 ABI constants and struct mirrors used by the backends.

const (
	// D3D11_TEXTURE2D_DESC fields
	d3d11UsageDefault          = 0
	d3d11BindShaderResource    = 0x8
	d3d11ResourceMiscShared    = 0x2

	// D3D12_RESOURCE_DESC / heap fields
	d3d12ResourceDimensionTexture2D = 3
	d3d12TextureLayoutUnknown       = 0
	d3d12HeapTypeDefault            = 1
	d3d12HeapFlagShared             = 0x1
	d3d12ResourceStateCommon        = 0
	d3d12ResourceFlagAllowRT        = 0x1
	d3d12ResourceFlagSimultaneous   = 0x20
	d3d12CommandListTypeDirect      = 0
	d3d12FenceFlagNone              = 0

	genericAll = 0x10000000

	// Bounded wait for copy fences. A runtime that never signals must not
	// hang the application's render thread.
	fenceWaitMillis = 1000

	// ID3D11Device
	vtblD3D11DeviceCreateTexture2D     = 5
	vtblD3D11DeviceGetImmediateContext = 40

	// ID3D11DeviceContext
	vtblD3D11CtxCopyResource = 47

	// IDXGIResource
	vtblDXGIResourceGetSharedHandle = 8

	// ID3D12Device
	vtblD3D12DeviceCreateCommandAllocator  = 9
	vtblD3D12DeviceCreateCommandList       = 12
	vtblD3D12DeviceCreateCommittedResource = 27
	vtblD3D12DeviceCreateSharedHandle      = 31
	vtblD3D12DeviceCreateFence             = 36

	// ID3D12CommandQueue
	vtblD3D12QueueExecuteCommandLists = 10
	vtblD3D12QueueSignal              = 14

	// ID3D12Fence
	vtblD3D12FenceGetCompletedValue    = 8
	vtblD3D12FenceSetEventOnCompletion = 9

	// ID3D12CommandAllocator
	vtblD3D12AllocatorReset = 8

	// ID3D12GraphicsCommandList
	vtblD3D12ListClose        = 9
	vtblD3D12ListReset        = 10
	vtblD3D12ListCopyResource = 17
)

var (
	iidIDXGIResource = comGUID{0x035f3ab4, 0x482e, 0x4e50, [8]byte{0xb4, 0x1f, 0x8a, 0x7f, 0x8b, 0xd8, 0x96, 0x0b}}

	iidID3D12Resource            = comGUID{0x696442be, 0xa72e, 0x4059, [8]byte{0xbc, 0x79, 0x5b, 0x5c, 0x98, 0x04, 0x0f, 0xad}}
	iidID3D12Fence               = comGUID{0x0a753dcf, 0xc4d8, 0x4b91, [8]byte{0xad, 0xf6, 0xbe, 0x5a, 0x60, 0xd9, 0x5a, 0x76}}
	iidID3D12CommandAllocator    = comGUID{0x6102dee4, 0xaf59, 0x4b09, [8]byte{0xb9, 0x99, 0xb4, 0x4d, 0x73, 0xf0, 0x9b, 0x24}}
	iidID3D12GraphicsCommandList = comGUID{0x5b160d0f, 0xac1b, 0x4185, [8]byte{0x8b, 0xa8, 0xb3, 0xae, 0x42, 0xa5, 0xa4, 0x55}}
)

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

// d3d12HeapProperties matches D3D12_HEAP_PROPERTIES.
type d3d12HeapProperties struct {
	Type                 uint32
	CPUPageProperty      uint32
	MemoryPoolPreference uint32
	CreationNodeMask     uint32
	VisibleNodeMask      uint32
}

// d3d12ResourceDesc matches D3D12_RESOURCE_DESC.
type d3d12ResourceDesc struct {
	Dimension        uint32
	Alignment        uint64
	Width            uint64
	Height           uint32
	DepthOrArraySize uint16
	MipLevels        uint16
	Format           uint32
	SampleCount      uint32 // DXGI_SAMPLE_DESC.Count
	SampleQuality    uint32 // DXGI_SAMPLE_DESC.Quality
	Layout           uint32
	Flags            uint32
}

// d3d12ClearValue matches D3D12_CLEAR_VALUE for a color format.
type d3d12ClearValue struct {
	Format uint32
	Color  [4]float32
}
