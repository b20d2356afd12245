// Package xrtypes holds the OpenXR protocol types the mirror layer consumes
// at its boundary. Opaque runtime handles stay opaque (uintptr-sized IDs);
// input structures carry their OpenXR structure-type tag so calls with a
// mismatched tag can be rejected before any processing.
package xrtypes

import "errors"

// Instance, Session, Swapchain and Space are opaque OpenXR handles. The
// layer never dereferences them; they key the tracked-state registries.
type (
	Instance  uintptr
	Session   uintptr
	Swapchain uintptr
	Space     uintptr
)

// StructureType mirrors XrStructureType for the subset of structures the
// layer inspects.
type StructureType uint32

const (
	TypeUnknown                        StructureType = 0
	TypeInstanceCreateInfo             StructureType = 3
	TypeViewLocateInfo                 StructureType = 6
	TypeView                           StructureType = 7
	TypeSessionCreateInfo              StructureType = 8
	TypeSwapchainCreateInfo            StructureType = 9
	TypeViewState                      StructureType = 11
	TypeFrameEndInfo                   StructureType = 12
	TypeCompositionLayerProjection     StructureType = 35
	TypeCompositionLayerQuad           StructureType = 36
	TypeReferenceSpaceCreateInfo       StructureType = 37
	TypeViewConfigurationView          StructureType = 41
	TypeFrameBeginInfo                 StructureType = 46
	TypeCompositionLayerProjectionView StructureType = 48
	TypeSwapchainImageAcquireInfo      StructureType = 55
	TypeSwapchainImageReleaseInfo      StructureType = 57
	TypeGraphicsBindingD3D11           StructureType = 1000027000
	TypeSwapchainImageD3D11            StructureType = 1000027001
	TypeGraphicsBindingD3D12           StructureType = 1000028000
	TypeSwapchainImageD3D12            StructureType = 1000028001
)

// ErrValidationFailure is returned when an input structure carries the
// wrong structure-type tag (XR_ERROR_VALIDATION_FAILURE). The call is
// rejected with no partial processing.
var ErrValidationFailure = errors.New("structure type validation failure")

// ReferenceSpaceType mirrors XrReferenceSpaceType.
type ReferenceSpaceType uint32

const (
	ReferenceSpaceView  ReferenceSpaceType = 1
	ReferenceSpaceLocal ReferenceSpaceType = 2
	ReferenceSpaceStage ReferenceSpaceType = 3
)

// Swapchain usage flag bits (XrSwapchainUsageFlags).
const (
	SwapchainUsageColorAttachment uint64 = 0x1
	SwapchainUsageDepthStencil    uint64 = 0x2
	SwapchainUsageTransferSrc     uint64 = 0x8
	SwapchainUsageTransferDst     uint64 = 0x10
	SwapchainUsageSampled         uint64 = 0x20
)

// View state validity bits (XrViewStateFlags).
const (
	ViewStateOrientationValid uint64 = 0x1
	ViewStatePositionValid    uint64 = 0x2
)

// Vector3f is a position in meters.
type Vector3f struct {
	X, Y, Z float32
}

// Quaternionf is an orientation (x, y, z, w).
type Quaternionf struct {
	X, Y, Z, W float32
}

// Posef is an orientation plus position.
type Posef struct {
	Orientation Quaternionf
	Position    Vector3f
}

// IdentityPose has the identity orientation at the origin.
func IdentityPose() Posef {
	return Posef{Orientation: Quaternionf{W: 1}}
}

// IsIdentityOrientation reports whether the orientation is exactly the
// identity quaternion (0,0,0,1).
func (p Posef) IsIdentityOrientation() bool {
	o := p.Orientation
	return o.X == 0 && o.Y == 0 && o.Z == 0 && o.W == 1
}

// Fovf holds the four half-angles of a view frustum in radians. Left and
// down are typically negative.
type Fovf struct {
	AngleLeft  float32
	AngleRight float32
	AngleUp    float32
	AngleDown  float32
}

// Offset2Di / Extent2Di / Rect2Di are integer texel rectangles.
type Offset2Di struct {
	X, Y int32
}

type Extent2Di struct {
	Width, Height int32
}

type Rect2Di struct {
	Offset Offset2Di
	Extent Extent2Di
}

// Extent2Df is a size in meters (quad layers).
type Extent2Df struct {
	Width, Height float32
}

// SwapchainSubImage selects a region of one swapchain image.
type SwapchainSubImage struct {
	Swapchain       Swapchain
	ImageRect       Rect2Di
	ImageArrayIndex uint32
}

// View is one located eye view (pose + fov) for a predicted display time.
type View struct {
	Type StructureType
	Pose Posef
	Fov  Fovf
}

// ViewState carries the validity flags reported alongside located views.
type ViewState struct {
	Type  StructureType
	Flags uint64
}

// ViewConfigurationView carries the runtime's recommended render extent
// for one view of the stereo configuration.
type ViewConfigurationView struct {
	Type                       StructureType
	RecommendedImageRectWidth  uint32
	RecommendedImageRectHeight uint32
	MaxImageRectWidth          uint32
	MaxImageRectHeight         uint32
}
