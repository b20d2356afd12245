// Package compositor turns released swapchain clones into the published
// mirror output: a lazily sized render target plus buffered shareable
// copies, filled by either a direct region copy or shader passes for
// perspective-corrected quads and side-by-side dual-eye layout.
package compositor

import (
	"math"

	"github.com/xrmirror/layer/internal/xrtypes"
)

// All percentage parameters arrive as 0..100 floats and are normalized to
// 0..1 fractions at the point of use. Texture-space coordinates are
// computed in floating point against source width/height, never integer
// pixel arithmetic, to avoid seams at non-integer scales.

// OutputExtent computes the published surface size for one eye extent.
// Side-by-side mode inflates the width by the overlap percentage, rounded
// up to even so video consumers with chroma subsampling stay happy.
func OutputExtent(eyeWidth, eyeHeight uint32, dualEye bool, overlapPct float32) (uint32, uint32) {
	if !dualEye {
		return eyeWidth, eyeHeight
	}
	w := float64(eyeWidth) * (1 + float64(overlapPct)/100)
	return ceilEven(w), eyeHeight
}

// SecondEyeOffsetX is the right eye's viewport x offset in side-by-side
// mode: the overlap fraction of one eye width, exact, unrounded.
func SecondEyeOffsetX(eyeWidth uint32, overlapPct float32) float32 {
	return float32(eyeWidth) * overlapPct / 100
}

func ceilEven(v float64) uint32 {
	n := uint32(math.Ceil(v))
	if n%2 == 1 {
		n++
	}
	return n
}

// UVRect maps a sub-image rectangle to normalized texture coordinates
// against the full source extent.
type UVRect struct {
	U0, V0 float32 // top left
	U1, V1 float32 // bottom right
}

// UVForRect computes the normalized UV rectangle selecting rect out of a
// texWidth x texHeight source.
func UVForRect(rect xrtypes.Rect2Di, texWidth, texHeight uint32) UVRect {
	w := float32(texWidth)
	h := float32(texHeight)
	return UVRect{
		U0: float32(rect.Offset.X) / w,
		V0: float32(rect.Offset.Y) / h,
		U1: float32(rect.Offset.X+rect.Extent.Width) / w,
		V1: float32(rect.Offset.Y+rect.Extent.Height) / h,
	}
}

// BlendBand is the horizontal crossfade ramp for side-by-side output,
// normalized to the output width. Pixels left of Start take the first eye,
// pixels right of End take the second, and the band between them fades
// with a smoothstep ramp. Start == End disables the fade.
type BlendBand struct {
	Start float32
	End   float32
}

// BandFor positions the crossfade inside the overlap region. The overlap
// region spans from the second eye's x offset to the end of the first eye;
// blendPos places the band center within it and blendWidth sizes the band,
// both as percentages of the region.
func BandFor(eyeWidth, outputWidth uint32, overlapPct, blendPct, blendPosPct float32) BlendBand {
	w := float32(eyeWidth)
	offset := SecondEyeOffsetX(eyeWidth, overlapPct)
	region := w - offset
	if region <= 0 || outputWidth == 0 {
		return BlendBand{}
	}
	center := offset + region*blendPosPct/100
	half := region * blendPct / 100 / 2
	out := float32(outputWidth)
	return BlendBand{
		Start: clamp01((center - half) / out),
		End:   clamp01((center + half) / out),
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FovScale is the per-axis orthographic extent correction between a view's
// actual frustum and the reference frustum the layout was computed for.
type FovScale struct {
	X float32
	Y float32
}

// ScaleCache memoizes the tangent-ratio computation. Frustums are stable
// for the life of a session on most runtimes, so the trigonometry runs
// once, not per frame.
type ScaleCache struct {
	view  xrtypes.Fovf
	ref   xrtypes.Fovf
	scale FovScale
	valid bool
}

// Scale returns the extent correction for view relative to ref,
// recomputing only when either frustum changed.
func (c *ScaleCache) Scale(view, ref xrtypes.Fovf) FovScale {
	if c.valid && view == c.view && ref == c.ref {
		return c.scale
	}
	c.view = view
	c.ref = ref
	c.scale = FovScale{
		X: tanSpan(view.AngleLeft, view.AngleRight) / tanSpan(ref.AngleLeft, ref.AngleRight),
		Y: tanSpan(view.AngleDown, view.AngleUp) / tanSpan(ref.AngleDown, ref.AngleUp),
	}
	c.valid = true
	return c.scale
}

func tanSpan(lo, hi float32) float32 {
	return float32(math.Tan(float64(hi)) - math.Tan(float64(lo)))
}
