package xrtypes

// ApplicationInfo identifies the application creating an instance.
type ApplicationInfo struct {
	ApplicationName    string
	ApplicationVersion uint32
	EngineName         string
	EngineVersion      uint32
	APIVersion         uint64
}

// InstanceCreateInfo is the decoded XrInstanceCreateInfo subset.
type InstanceCreateInfo struct {
	Type            StructureType
	ApplicationInfo ApplicationInfo
	EnabledLayers   []string
	EnabledExts     []string
}

// SessionCreateInfo is the decoded XrSessionCreateInfo: the next-chain has
// already been walked once at the boundary and reduced to a GraphicsBinding
// variant, so nothing downstream reinterprets raw pointers by tag.
type SessionCreateInfo struct {
	Type     StructureType
	SystemID uint64
	Binding  GraphicsBinding
}

// SwapchainCreateInfo is the decoded XrSwapchainCreateInfo.
type SwapchainCreateInfo struct {
	Type        StructureType
	CreateFlags uint64
	UsageFlags  uint64
	Format      int64 // native (DXGI) format value
	SampleCount uint32
	Width       uint32
	Height      uint32
	FaceCount   uint32
	ArraySize   uint32
	MipCount    uint32
}

// SwapchainImage is one enumerated swapchain image. Texture is the native
// resource pointer (ID3D11Texture2D* or ID3D12Resource*), owned by the
// runtime; the layer only reads from it.
type SwapchainImage struct {
	Type    StructureType
	Texture uintptr
}

// ReferenceSpaceCreateInfo is the decoded XrReferenceSpaceCreateInfo.
type ReferenceSpaceCreateInfo struct {
	Type                 StructureType
	ReferenceSpaceType   ReferenceSpaceType
	PoseInReferenceSpace Posef
}

// CompositionLayer is the decoded variant of one composition layer
// submitted at frame end. The two variants the layer composites are
// projection (stereo eyes) and quad (flat overlay); everything else is
// ignored and passed through.
type CompositionLayer interface {
	LayerType() StructureType
}

// CompositionLayerProjectionView is one eye of a projection layer.
type CompositionLayerProjectionView struct {
	Type     StructureType
	Pose     Posef
	Fov      Fovf
	SubImage SwapchainSubImage
}

// CompositionLayerProjection is a stereo projection layer.
type CompositionLayerProjection struct {
	Type  StructureType
	Space Space
	Views []CompositionLayerProjectionView
}

func (l *CompositionLayerProjection) LayerType() StructureType {
	return TypeCompositionLayerProjection
}

// CompositionLayerQuad is a flat textured quad positioned in a space.
type CompositionLayerQuad struct {
	Type     StructureType
	Space    Space
	SubImage SwapchainSubImage
	Pose     Posef
	Size     Extent2Df
}

func (l *CompositionLayerQuad) LayerType() StructureType {
	return TypeCompositionLayerQuad
}

// FrameEndInfo is the decoded XrFrameEndInfo.
type FrameEndInfo struct {
	Type        StructureType
	DisplayTime int64
	Layers      []CompositionLayer
}

// GraphicsBinding is the decoded graphics-binding variant from a session's
// create-info next chain: D3D11, D3D12, or unknown. Decoding happens once;
// the variant is immutable afterwards.
type GraphicsBinding interface {
	BindingType() StructureType
}

// GraphicsBindingD3D11 carries the application's ID3D11Device.
type GraphicsBindingD3D11 struct {
	Device uintptr
}

func (GraphicsBindingD3D11) BindingType() StructureType { return TypeGraphicsBindingD3D11 }

// GraphicsBindingD3D12 carries the application's ID3D12Device and the
// command queue its rendering work is submitted on.
type GraphicsBindingD3D12 struct {
	Device uintptr
	Queue  uintptr
}

func (GraphicsBindingD3D12) BindingType() StructureType { return TypeGraphicsBindingD3D12 }

// UnknownBinding marks a graphics API the layer does not mirror
// (OpenGL, Vulkan). Sessions bound to it pass through untouched.
type UnknownBinding struct {
	Type StructureType
}

func (b UnknownBinding) BindingType() StructureType { return b.Type }

// DecodeBinding reduces a raw next-chain entry to its GraphicsBinding
// variant. device and queue are the pointer-sized payload fields of the
// native structure; queue is ignored for D3D11.
func DecodeBinding(structType StructureType, device, queue uintptr) GraphicsBinding {
	switch structType {
	case TypeGraphicsBindingD3D11:
		return GraphicsBindingD3D11{Device: device}
	case TypeGraphicsBindingD3D12:
		return GraphicsBindingD3D12{Device: device, Queue: queue}
	default:
		return UnknownBinding{Type: structType}
	}
}
