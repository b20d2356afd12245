package compositor

import (
	"log/slog"

	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/formats"
	"github.com/xrmirror/layer/internal/logging"
	"github.com/xrmirror/layer/internal/xrmath"
	"github.com/xrmirror/layer/internal/xrtypes"
)

// OutputDesc is the allocation key for the published surface. Two descs
// comparing equal means the current target can be reused as-is.
type OutputDesc struct {
	Width  uint32
	Height uint32
	Format formats.Format
}

// ViewportF is a render viewport in floating point output pixels.
// Fractional offsets are intentional: side-by-side placement is computed
// against source width, not snapped to integers.
type ViewportF struct {
	X, Y          float32
	Width, Height float32
}

// DrawParams is one textured quad pass: the unit quad transformed by World
// then ViewProj, sampling the source through UV, faded by Band.
type DrawParams struct {
	UV       UVRect
	World    xrmath.Mat4
	ViewProj xrmath.Mat4
	Viewport ViewportF
	Band     BlendBand
}

// Renderer is the GPU half of the compositor. The real implementation owns
// a dedicated D3D11 device; tests substitute a recorder.
type Renderer interface {
	// EnsureOutput (re)allocates the render target and its buffered
	// shareable copies, returning the copies' shared handles in slot order.
	EnsureOutput(desc OutputDesc) ([channel.HandleSlots]uint64, error)

	// OpenSource opens a swapchain clone's shared handle and keeps it
	// addressable under key. ntHandle selects the D3D12-style NT handle
	// open path.
	OpenSource(key, sharedHandle uint64, ntHandle bool) error

	// CloseSource releases the opened source for key.
	CloseSource(key uint64)

	// CopyDirect copies src region from the keyed source into the target
	// at the origin.
	CopyDirect(key uint64, src xrtypes.Rect2Di) error

	// DrawTextured runs one textured quad pass from the keyed source.
	DrawTextured(key uint64, p DrawParams) error

	// CopyToPublished copies the finished target into buffered copy slot.
	CopyToPublished(slot int) error

	// ClearAndFlush flushes submitted work and clears the target for the
	// next frame.
	ClearAndFlush() error

	Release()
}

// Compositor drives a Renderer from decoded frame-end layers and publishes
// results through the shared surface channel.
type Compositor struct {
	producer *channel.Producer
	renderer Renderer
	log      *slog.Logger
	gpuErrs  *logging.CappedLogger

	out         OutputDesc
	allocations int
	slot        int
	scaleCache  ScaleCache
}

// New builds a compositor publishing through producer and rendering with
// renderer.
func New(producer *channel.Producer, renderer Renderer) *Compositor {
	log := logging.L("compositor")
	return &Compositor{
		producer: producer,
		renderer: renderer,
		log:      log,
		gpuErrs:  logging.NewCapped(log, logging.DefaultErrorCap),
	}
}

// CheckLiveness advances the producer frame counter, observes the consumer
// counter, and reports whether composite work should run this frame. Call
// once per frame before any other compositor method.
func (c *Compositor) CheckLiveness() bool {
	return c.producer.Advance()
}

// Active reports the verdict of the last CheckLiveness.
func (c *Compositor) Active() bool {
	return c.producer.ConsumerActive()
}

// Allocations returns how many times the output surface has been
// (re)allocated. Stable input dimensions must keep this stable.
func (c *Compositor) Allocations() int {
	return c.allocations
}

// EnsureOutputSurface sizes the published surface for one eye extent,
// reallocating only when dimensions or the linear-equivalent format
// changed. On reallocation the old handles are retracted before the
// backing textures go away, then the new handles are published.
func (c *Compositor) EnsureOutputSurface(eyeWidth, eyeHeight uint32, format formats.Format) error {
	if !c.Active() {
		return nil
	}
	outFormat := format
	if info, ok := formats.Resolve(format); ok {
		outFormat = info.Linear
	}
	block := c.producer.Block()
	dual := c.dualEye()
	w, h := OutputExtent(eyeWidth, eyeHeight, dual, block.Overlap())
	desc := OutputDesc{Width: w, Height: h, Format: outFormat}
	if c.allocations > 0 && desc == c.out {
		return nil
	}

	c.producer.Retract()
	handles, err := c.renderer.EnsureOutput(desc)
	if err != nil {
		return err
	}
	for slot, handle := range handles {
		c.producer.Publish(slot, handle)
	}
	c.out = desc
	c.allocations++
	c.slot = 0
	c.log.Info("output surface allocated",
		"width", desc.Width, "height", desc.Height, "format", uint32(desc.Format), "dual_eye", dual)
	return nil
}

// RegisterSource opens a swapchain clone handle with the renderer.
func (c *Compositor) RegisterSource(key, sharedHandle uint64, ntHandle bool) error {
	return c.renderer.OpenSource(key, sharedHandle, ntHandle)
}

// UnregisterSource drops a swapchain clone from the renderer.
func (c *Compositor) UnregisterSource(key uint64) {
	c.renderer.CloseSource(key)
}

// Source identifies one registered swapchain clone and its full extent.
type Source struct {
	Key       uint64
	TexWidth  uint32
	TexHeight uint32
}

// CompositeProjection renders the projection layer's eye views into the
// output. locatedFovs are the per-eye frustums from view location this
// frame, the reference the direct-copy decision is made against.
func (c *Compositor) CompositeProjection(
	views []xrtypes.CompositionLayerProjectionView,
	locatedFovs []xrtypes.Fovf,
	srcs []Source,
) error {
	if !c.Active() || len(views) == 0 || len(srcs) == 0 {
		return nil
	}
	if c.dualEye() && len(views) > 1 {
		return c.compositeDualEye(views, locatedFovs, srcs)
	}

	eye := int(c.producer.Block().EyeIndex())
	if eye >= len(views) {
		eye = 0
	}
	view := views[eye]
	src := srcs[min(eye, len(srcs)-1)]
	if eye < len(locatedFovs) && xrmath.FovApproxEqual(view.Fov, locatedFovs[eye]) {
		return c.renderer.CopyDirect(src.Key, view.SubImage.ImageRect)
	}
	return c.blendReprojected(view, locatedFovs, eye, src, ViewportF{
		Width:  float32(c.out.Width),
		Height: float32(c.out.Height),
	}, BlendBand{})
}

// compositeDualEye lays both eyes side by side: the first at the origin,
// the second offset by the overlap fraction and crossfaded over the
// overlap region. Placement offsets are fractional, so both eyes go
// through the shader path.
func (c *Compositor) compositeDualEye(
	views []xrtypes.CompositionLayerProjectionView,
	locatedFovs []xrtypes.Fovf,
	srcs []Source,
) error {
	block := c.producer.Block()
	eyeW := uint32(views[0].SubImage.ImageRect.Extent.Width)
	offset := SecondEyeOffsetX(eyeW, block.Overlap())
	band := BandFor(eyeW, c.out.Width, block.Overlap(), block.Blend(), block.BlendPos())

	vp := ViewportF{
		Width:  float32(views[0].SubImage.ImageRect.Extent.Width),
		Height: float32(views[0].SubImage.ImageRect.Extent.Height),
	}
	if err := c.blendReprojected(views[0], locatedFovs, 0, srcs[0], vp, BlendBand{}); err != nil {
		return err
	}

	vp1 := ViewportF{
		X:      offset,
		Width:  float32(views[1].SubImage.ImageRect.Extent.Width),
		Height: float32(views[1].SubImage.ImageRect.Extent.Height),
	}
	src1 := srcs[min(1, len(srcs)-1)]
	return c.blendReprojected(views[1], locatedFovs, 1, src1, vp1, band)
}

// blendReprojected draws one eye as a screen-aligned quad, rescaled by the
// tangent ratio between the submitted and located frustums.
func (c *Compositor) blendReprojected(
	view xrtypes.CompositionLayerProjectionView,
	locatedFovs []xrtypes.Fovf,
	eye int,
	src Source,
	vp ViewportF,
	band BlendBand,
) error {
	scale := FovScale{X: 1, Y: 1}
	if eye < len(locatedFovs) {
		scale = c.scaleCache.Scale(view.Fov, locatedFovs[eye])
	}
	// The unit quad spans 0.5 in each direction; scale 2x fills clip space.
	world := xrmath.AffineTransform(
		xrtypes.Vector3f{X: 2 * scale.X, Y: 2 * scale.Y, Z: 1},
		xrtypes.Quaternionf{W: 1},
		xrtypes.Vector3f{},
	)
	return c.renderer.DrawTextured(src.Key, DrawParams{
		UV:       UVForRect(view.SubImage.ImageRect, src.TexWidth, src.TexHeight),
		World:    world,
		ViewProj: xrmath.Identity(),
		Viewport: vp,
		Band:     band,
	})
}

// CompositeQuad blends a quad layer over the eye view, projected with the
// view's own pose and frustum. viewPose must already carry any view-space
// reference substitution and sanitization.
func (c *Compositor) CompositeQuad(
	view xrtypes.CompositionLayerProjectionView,
	quad xrtypes.CompositionLayerQuad,
	viewPose xrtypes.Posef,
	src Source,
) error {
	if !c.Active() {
		return nil
	}

	pose := quad.Pose
	// Quads submitted with an exactly-identity orientation face away from
	// the default viewpoint; flip them to face the camera.
	if pose.IsIdentityOrientation() {
		pose.Orientation = xrtypes.Quaternionf{X: 1}
	}

	proj := xrmath.ProjectionFromFov(view.Fov, xrmath.ClipNear, xrmath.ClipFar)
	viewMat := xrmath.ViewFromPose(viewPose)
	world := xrmath.AffineTransform(
		xrtypes.Vector3f{X: quad.Size.Width, Y: -quad.Size.Height, Z: 1},
		pose.Orientation,
		pose.Position,
	)

	rect := view.SubImage.ImageRect
	return c.renderer.DrawTextured(src.Key, DrawParams{
		UV:       UVForRect(quad.SubImage.ImageRect, src.TexWidth, src.TexHeight),
		World:    world,
		ViewProj: xrmath.Mul(viewMat, proj),
		Viewport: ViewportF{
			X:      float32(rect.Offset.X),
			Y:      float32(rect.Offset.Y),
			Width:  float32(rect.Extent.Width),
			Height: float32(rect.Extent.Height),
		},
		Band: BlendBand{},
	})
}

// FlushAndPublish copies the finished frame into the current buffered slot,
// flushes, clears the target, and rotates to the next slot.
func (c *Compositor) FlushAndPublish() error {
	if !c.Active() {
		return nil
	}
	if err := c.renderer.CopyToPublished(c.slot); err != nil {
		return err
	}
	if err := c.renderer.ClearAndFlush(); err != nil {
		return err
	}
	c.slot = (c.slot + 1) % channel.HandleSlots
	return nil
}

// ReportGPUError routes a non-fatal GPU error through the capped logger so
// a renderer failing every frame cannot flood the log.
func (c *Compositor) ReportGPUError(msg string, err error) {
	c.gpuErrs.Error(msg, logging.KeyError, err)
}

// Close retracts published handles and releases the renderer. The producer
// channel itself is owned by the caller.
func (c *Compositor) Close() {
	c.producer.Retract()
	c.renderer.Release()
}

func (c *Compositor) dualEye() bool {
	eye := c.producer.Block().EyeIndex()
	return eye != 0 && eye != 1
}
