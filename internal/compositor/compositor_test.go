package compositor

import (
	"testing"

	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/formats"
	"github.com/xrmirror/layer/internal/xrtypes"
)

// fakeRenderer records calls instead of touching a GPU.
type fakeRenderer struct {
	ensures     []OutputDesc
	opened      map[uint64]uint64
	copies      []xrtypes.Rect2Di
	draws       []DrawParams
	publishes   []int
	clearFlush  int
	released    bool
	handleSeed  uint64
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{opened: make(map[uint64]uint64), handleSeed: 0x1000}
}

func (f *fakeRenderer) EnsureOutput(desc OutputDesc) ([channel.HandleSlots]uint64, error) {
	f.ensures = append(f.ensures, desc)
	var handles [channel.HandleSlots]uint64
	for i := range handles {
		f.handleSeed++
		handles[i] = f.handleSeed
	}
	return handles, nil
}

func (f *fakeRenderer) OpenSource(key, sharedHandle uint64, ntHandle bool) error {
	f.opened[key] = sharedHandle
	return nil
}

func (f *fakeRenderer) CloseSource(key uint64) { delete(f.opened, key) }

func (f *fakeRenderer) CopyDirect(key uint64, src xrtypes.Rect2Di) error {
	f.copies = append(f.copies, src)
	return nil
}

func (f *fakeRenderer) DrawTextured(key uint64, p DrawParams) error {
	f.draws = append(f.draws, p)
	return nil
}

func (f *fakeRenderer) CopyToPublished(slot int) error {
	f.publishes = append(f.publishes, slot)
	return nil
}

func (f *fakeRenderer) ClearAndFlush() error {
	f.clearFlush++
	return nil
}

func (f *fakeRenderer) Release() { f.released = true }

func newTestCompositor(t *testing.T) (*Compositor, *fakeRenderer, *channel.Producer) {
	t.Helper()
	p, err := channel.CreateOver("test-surface", make([]byte, channel.BlockSize))
	if err != nil {
		t.Fatalf("CreateOver: %v", err)
	}
	r := newFakeRenderer()
	return New(p, r), r, p
}

// keepAlive marks the consumer as attached so liveness never gates the
// operation under test.
func keepAlive(c *Compositor, p *channel.Producer) {
	p.Block().SetLastProcessed(p.Block().LastProcessed() + 1)
	c.CheckLiveness()
}

func eyeView(w, h int32, fov xrtypes.Fovf) xrtypes.CompositionLayerProjectionView {
	return xrtypes.CompositionLayerProjectionView{
		Fov: fov,
		SubImage: xrtypes.SwapchainSubImage{
			ImageRect: xrtypes.Rect2Di{Extent: xrtypes.Extent2Di{Width: w, Height: h}},
		},
	}
}

func TestEnsureOutputSurfaceIdempotent(t *testing.T) {
	c, r, p := newTestCompositor(t)
	keepAlive(c, p)

	for i := 0; i < 5; i++ {
		if err := c.EnsureOutputSurface(2064, 2272, formats.R8G8B8A8UnormSRGB); err != nil {
			t.Fatalf("EnsureOutputSurface: %v", err)
		}
	}
	if c.Allocations() != 1 {
		t.Fatalf("allocations = %d after stable dims, want 1", c.Allocations())
	}
	if len(r.ensures) != 1 {
		t.Fatalf("renderer EnsureOutput called %d times, want 1", len(r.ensures))
	}
	// sRGB input allocates the linear-equivalent output format.
	if got := r.ensures[0].Format; got != formats.R8G8B8A8Unorm {
		t.Errorf("output format = %d, want linear %d", got, formats.R8G8B8A8Unorm)
	}

	if err := c.EnsureOutputSurface(1832, 1920, formats.R8G8B8A8UnormSRGB); err != nil {
		t.Fatalf("EnsureOutputSurface resize: %v", err)
	}
	if c.Allocations() != 2 {
		t.Fatalf("allocations = %d after resize, want 2", c.Allocations())
	}
}

func TestEnsureOutputSurfacePublishesHandles(t *testing.T) {
	c, r, p := newTestCompositor(t)
	keepAlive(c, p)

	if err := c.EnsureOutputSurface(2064, 2272, formats.B8G8R8A8Unorm); err != nil {
		t.Fatalf("EnsureOutputSurface: %v", err)
	}
	_ = r
	for slot := 0; slot < channel.HandleSlots; slot++ {
		if p.Block().Handle(slot) == 0 {
			t.Errorf("slot %d handle not published", slot)
		}
	}
}

func TestPathSelectionBoundaries(t *testing.T) {
	located := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	src := []Source{{Key: 1, TexWidth: 2064, TexHeight: 2272}}

	// Within tolerance on every angle: direct copy.
	c, r, p := newTestCompositor(t)
	keepAlive(c, p)
	if err := c.EnsureOutputSurface(2064, 2272, formats.R8G8B8A8Unorm); err != nil {
		t.Fatal(err)
	}
	within := located
	within.AngleRight += 0.0009
	err := c.CompositeProjection(
		[]xrtypes.CompositionLayerProjectionView{eyeView(2064, 2272, within)},
		[]xrtypes.Fovf{located}, src)
	if err != nil {
		t.Fatalf("CompositeProjection: %v", err)
	}
	if len(r.copies) != 1 || len(r.draws) != 0 {
		t.Fatalf("matching fov: copies=%d draws=%d, want 1/0", len(r.copies), len(r.draws))
	}

	// One angle past tolerance: shader path.
	c, r, p = newTestCompositor(t)
	keepAlive(c, p)
	if err := c.EnsureOutputSurface(2064, 2272, formats.R8G8B8A8Unorm); err != nil {
		t.Fatal(err)
	}
	outside := located
	outside.AngleUp += 0.0011
	err = c.CompositeProjection(
		[]xrtypes.CompositionLayerProjectionView{eyeView(2064, 2272, outside)},
		[]xrtypes.Fovf{located}, src)
	if err != nil {
		t.Fatalf("CompositeProjection: %v", err)
	}
	if len(r.copies) != 0 || len(r.draws) != 1 {
		t.Fatalf("mismatched fov: copies=%d draws=%d, want 0/1", len(r.copies), len(r.draws))
	}
}

func TestDualEyeLayout(t *testing.T) {
	c, r, p := newTestCompositor(t)
	p.Block().SetEyeIndex(channel.DualEye)
	p.Block().SetBlendParams(50, 20, 50)
	keepAlive(c, p)

	if err := c.EnsureOutputSurface(1000, 1100, formats.R8G8B8A8Unorm); err != nil {
		t.Fatal(err)
	}
	if got := r.ensures[0].Width; got != 1500 {
		t.Fatalf("dual output width = %d, want 1500", got)
	}

	fov := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	views := []xrtypes.CompositionLayerProjectionView{
		eyeView(1000, 1100, fov),
		eyeView(1000, 1100, fov),
	}
	srcs := []Source{
		{Key: 1, TexWidth: 1000, TexHeight: 1100},
		{Key: 2, TexWidth: 1000, TexHeight: 1100},
	}
	if err := c.CompositeProjection(views, []xrtypes.Fovf{fov, fov}, srcs); err != nil {
		t.Fatalf("CompositeProjection: %v", err)
	}
	// Both eyes take the shader path even with matching frustums: the
	// second eye's placement is fractional.
	if len(r.draws) != 2 {
		t.Fatalf("draws = %d, want 2", len(r.draws))
	}
	if got := r.draws[0].Viewport.X; got != 0 {
		t.Errorf("first eye x = %v, want 0", got)
	}
	if got := r.draws[1].Viewport.X; got != 500 {
		t.Errorf("second eye x = %v, want 500", got)
	}
	// Only the second eye crossfades.
	if b := r.draws[0].Band; b.End > b.Start {
		t.Errorf("first eye has a blend band: %+v", b)
	}
	if b := r.draws[1].Band; b.End <= b.Start {
		t.Errorf("second eye band missing: %+v", b)
	}
}

func TestLivenessGatesCompositing(t *testing.T) {
	c, r, p := newTestCompositor(t)

	// Stall the consumer past the threshold.
	for i := 0; i < channel.DefaultLivenessThreshold+2; i++ {
		c.CheckLiveness()
	}
	if c.Active() {
		t.Fatal("compositor still active after stall")
	}

	fov := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	if err := c.EnsureOutputSurface(2064, 2272, formats.R8G8B8A8Unorm); err != nil {
		t.Fatal(err)
	}
	err := c.CompositeProjection(
		[]xrtypes.CompositionLayerProjectionView{eyeView(2064, 2272, fov)},
		[]xrtypes.Fovf{fov},
		[]Source{{Key: 1, TexWidth: 2064, TexHeight: 2272}})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.FlushAndPublish(); err != nil {
		t.Fatal(err)
	}
	if len(r.ensures) != 0 || len(r.copies) != 0 || len(r.draws) != 0 || len(r.publishes) != 0 {
		t.Fatal("renderer touched while consumer inactive")
	}

	// Consumer catches up: work resumes on the next frame.
	p.Block().SetLastProcessed(p.Block().FrameNumber())
	if !c.CheckLiveness() {
		t.Fatal("consumer caught up but compositor inactive")
	}
	if err := c.EnsureOutputSurface(2064, 2272, formats.R8G8B8A8Unorm); err != nil {
		t.Fatal(err)
	}
	if len(r.ensures) != 1 {
		t.Fatalf("ensures after recovery = %d, want 1", len(r.ensures))
	}
}

func TestFlushAndPublishRotatesSlots(t *testing.T) {
	c, r, p := newTestCompositor(t)

	for frame := 0; frame < 4; frame++ {
		keepAlive(c, p)
		if err := c.FlushAndPublish(); err != nil {
			t.Fatal(err)
		}
	}
	want := []int{0, 1, 2, 0}
	if len(r.publishes) != len(want) {
		t.Fatalf("publishes = %v, want %v", r.publishes, want)
	}
	for i, slot := range want {
		if r.publishes[i] != slot {
			t.Fatalf("publishes = %v, want %v", r.publishes, want)
		}
	}
	if r.clearFlush != 4 {
		t.Errorf("clear/flush count = %d, want 4", r.clearFlush)
	}
}

func TestCompositeQuadIdentityOrientationFixup(t *testing.T) {
	c, r, p := newTestCompositor(t)
	keepAlive(c, p)
	if err := c.EnsureOutputSurface(2064, 2272, formats.R8G8B8A8Unorm); err != nil {
		t.Fatal(err)
	}

	fov := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	view := eyeView(2064, 2272, fov)
	quad := xrtypes.CompositionLayerQuad{
		Pose: xrtypes.Posef{Orientation: xrtypes.Quaternionf{W: 1}},
		Size: xrtypes.Extent2Df{Width: 1.2, Height: 0.8},
		SubImage: xrtypes.SwapchainSubImage{
			ImageRect: xrtypes.Rect2Di{Extent: xrtypes.Extent2Di{Width: 800, Height: 600}},
		},
	}
	src := Source{Key: 7, TexWidth: 800, TexHeight: 600}
	if err := c.CompositeQuad(view, quad, xrtypes.IdentityPose(), src); err != nil {
		t.Fatalf("CompositeQuad: %v", err)
	}
	if len(r.draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(r.draws))
	}
	// Identity orientation is replaced by the x-axis half turn: the world
	// matrix must not be a plain scale. With (1,0,0,0) the rotation flips
	// Y and Z, and the world Y scale is already negated, so world[1][1]
	// ends up positive quad height.
	w := r.draws[0].World
	if w[1][1] != quad.Size.Height {
		t.Errorf("world[1][1] = %v, want %v after orientation fixup", w[1][1], quad.Size.Height)
	}
	// Full source rect spans unit UVs.
	uv := r.draws[0].UV
	if uv.U0 != 0 || uv.V0 != 0 || uv.U1 != 1 || uv.V1 != 1 {
		t.Errorf("UV = %+v, want unit square", uv)
	}
}
