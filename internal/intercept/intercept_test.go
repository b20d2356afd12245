package intercept

import (
	"errors"
	"testing"

	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/compositor"
	"github.com/xrmirror/layer/internal/formats"
	"github.com/xrmirror/layer/internal/gpu"
	"github.com/xrmirror/layer/internal/xrtypes"
)

type fakeMirror struct {
	desc     gpu.TextureDesc
	images   []uintptr
	handle   uint64
	copies   []int
	released bool
}

func (m *fakeMirror) Handle() uint64        { return m.handle }
func (m *fakeMirror) Desc() gpu.TextureDesc { return m.desc }
func (m *fakeMirror) CopyFrom(i int) error {
	m.copies = append(m.copies, i)
	return nil
}
func (m *fakeMirror) Release() { m.released = true }

type fakeBackend struct {
	api     gpu.API
	mirrors []*fakeMirror
	closed  bool
}

func (b *fakeBackend) API() gpu.API { return b.api }

func (b *fakeBackend) NewSwapchainMirror(desc gpu.TextureDesc, images []uintptr) (gpu.SwapchainMirror, error) {
	m := &fakeMirror{desc: desc, images: images, handle: uint64(0xAB00 + len(b.mirrors))}
	b.mirrors = append(b.mirrors, m)
	return m, nil
}

func (b *fakeBackend) Close() error {
	b.closed = true
	return nil
}

type stubRenderer struct {
	opened    map[uint64]uint64
	ntOpens   map[uint64]bool
	copies    []xrtypes.Rect2Di
	draws     []compositor.DrawParams
	publishes []int
	released  bool
}

func newStubRenderer() *stubRenderer {
	return &stubRenderer{opened: make(map[uint64]uint64), ntOpens: make(map[uint64]bool)}
}

func (r *stubRenderer) EnsureOutput(compositor.OutputDesc) ([channel.HandleSlots]uint64, error) {
	return [channel.HandleSlots]uint64{0xC1, 0xC2, 0xC3}, nil
}

func (r *stubRenderer) OpenSource(key, handle uint64, nt bool) error {
	r.opened[key] = handle
	r.ntOpens[key] = nt
	return nil
}

func (r *stubRenderer) CloseSource(key uint64) { delete(r.opened, key) }

func (r *stubRenderer) CopyDirect(key uint64, src xrtypes.Rect2Di) error {
	r.copies = append(r.copies, src)
	return nil
}

func (r *stubRenderer) DrawTextured(key uint64, p compositor.DrawParams) error {
	r.draws = append(r.draws, p)
	return nil
}

func (r *stubRenderer) CopyToPublished(slot int) error {
	r.publishes = append(r.publishes, slot)
	return nil
}

func (r *stubRenderer) ClearAndFlush() error { return nil }
func (r *stubRenderer) Release()             { r.released = true }

type testRig struct {
	layer    *Layer
	backend  *fakeBackend
	renderer *stubRenderer
}

func newTestRig(t *testing.T, opts Options) *testRig {
	t.Helper()
	rig := &testRig{
		backend:  &fakeBackend{api: gpu.APID3D11},
		renderer: newStubRenderer(),
	}
	deps := Deps{
		NewBackend: func(b xrtypes.GraphicsBinding) (gpu.Backend, error) {
			if _, ok := b.(xrtypes.UnknownBinding); ok {
				return nil, gpu.ErrUnsupportedBinding
			}
			return rig.backend, nil
		},
		NewRenderer: func() (compositor.Renderer, error) { return rig.renderer, nil },
		OpenChannel: func(name string) (*channel.Producer, error) {
			return channel.CreateOver(name, make([]byte, channel.BlockSize))
		},
	}
	layer, err := New(opts, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rig.layer = layer
	return rig
}

const (
	testSession   = xrtypes.Session(0x100)
	testSwapchain = xrtypes.Swapchain(0x200)
	quadSwapchain = xrtypes.Swapchain(0x300)
)

func (rig *testRig) startSession(t *testing.T) {
	t.Helper()
	err := rig.layer.CreateSession(testSession, xrtypes.SessionCreateInfo{
		Type:    xrtypes.TypeSessionCreateInfo,
		Binding: xrtypes.GraphicsBindingD3D11{Device: 0xD3D},
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
}

func colorSwapchainInfo(w, h uint32) xrtypes.SwapchainCreateInfo {
	return xrtypes.SwapchainCreateInfo{
		Type:        xrtypes.TypeSwapchainCreateInfo,
		UsageFlags:  xrtypes.SwapchainUsageColorAttachment | xrtypes.SwapchainUsageSampled,
		Format:      int64(formats.R8G8B8A8UnormSRGB),
		SampleCount: 1,
		Width:       w,
		Height:      h,
		FaceCount:   1,
		ArraySize:   1,
		MipCount:    1,
	}
}

func (rig *testRig) cloneSwapchain(t *testing.T, handle xrtypes.Swapchain, w, h uint32, images ...uintptr) {
	t.Helper()
	err := rig.layer.CreateSwapchain(testSession, handle, colorSwapchainInfo(w, h))
	if err != nil {
		t.Fatalf("CreateSwapchain: %v", err)
	}
	enum := make([]xrtypes.SwapchainImage, len(images))
	for i, tex := range images {
		enum[i] = xrtypes.SwapchainImage{Type: xrtypes.TypeSwapchainImageD3D11, Texture: tex}
	}
	if err := rig.layer.EnumerateSwapchainImages(handle, enum); err != nil {
		t.Fatalf("EnumerateSwapchainImages: %v", err)
	}
}

func projectionFrame(fov xrtypes.Fovf, w, h int32) xrtypes.FrameEndInfo {
	view := xrtypes.CompositionLayerProjectionView{
		Type: xrtypes.TypeCompositionLayerProjectionView,
		Fov:  fov,
		SubImage: xrtypes.SwapchainSubImage{
			Swapchain: testSwapchain,
			ImageRect: xrtypes.Rect2Di{Extent: xrtypes.Extent2Di{Width: w, Height: h}},
		},
	}
	return xrtypes.FrameEndInfo{
		Type: xrtypes.TypeFrameEndInfo,
		Layers: []xrtypes.CompositionLayer{
			&xrtypes.CompositionLayerProjection{
				Type:  xrtypes.TypeCompositionLayerProjection,
				Views: []xrtypes.CompositionLayerProjectionView{view, view},
			},
		},
	}
}

func (rig *testRig) locate(t *testing.T, fov xrtypes.Fovf) {
	t.Helper()
	view := xrtypes.View{
		Type: xrtypes.TypeView,
		Pose: xrtypes.IdentityPose(),
		Fov:  fov,
	}
	err := rig.layer.LocateViews(testSession,
		xrtypes.ViewState{
			Type:  xrtypes.TypeViewState,
			Flags: xrtypes.ViewStateOrientationValid | xrtypes.ViewStatePositionValid,
		},
		[]xrtypes.View{view, view})
	if err != nil {
		t.Fatalf("LocateViews: %v", err)
	}
}

func TestUnknownBindingPassesThrough(t *testing.T) {
	rig := newTestRig(t, Options{})
	err := rig.layer.CreateSession(testSession, xrtypes.SessionCreateInfo{
		Type:    xrtypes.TypeSessionCreateInfo,
		Binding: xrtypes.UnknownBinding{Type: 12345},
	})
	if err != nil {
		t.Fatalf("unknown binding must not error: %v", err)
	}
	if len(rig.layer.sessions) != 0 {
		t.Fatal("unknown-binding session was tracked")
	}
}

func TestStructureTagValidation(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.startSession(t)

	cases := []struct {
		name string
		call func() error
	}{
		{"instance", func() error {
			return rig.layer.CreateInstance(xrtypes.InstanceCreateInfo{Type: xrtypes.TypeViewState}, "", "")
		}},
		{"session", func() error {
			return rig.layer.CreateSession(xrtypes.Session(0x999), xrtypes.SessionCreateInfo{Type: xrtypes.TypeUnknown})
		}},
		{"swapchain", func() error {
			return rig.layer.CreateSwapchain(testSession, testSwapchain, xrtypes.SwapchainCreateInfo{Type: xrtypes.TypeFrameEndInfo})
		}},
		{"reference space", func() error {
			return rig.layer.CreateReferenceSpace(testSession, xrtypes.Space(1), xrtypes.ReferenceSpaceCreateInfo{Type: xrtypes.TypeUnknown})
		}},
		{"locate views", func() error {
			return rig.layer.LocateViews(testSession, xrtypes.ViewState{Type: xrtypes.TypeView}, nil)
		}},
		{"frame begin", func() error {
			return rig.layer.BeginFrame(testSession, xrtypes.TypeFrameEndInfo)
		}},
		{"frame end", func() error {
			return rig.layer.EndFrame(testSession, xrtypes.FrameEndInfo{Type: xrtypes.TypeFrameBeginInfo})
		}},
	}
	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, xrtypes.ErrValidationFailure) {
			t.Errorf("%s: err = %v, want ErrValidationFailure", tc.name, err)
		}
	}
	if len(rig.layer.sessions[testSession].swapchains) != 0 {
		t.Error("rejected swapchain create left state behind")
	}
}

func TestSwapchainEligibility(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*xrtypes.SwapchainCreateInfo)
		eligible bool
	}{
		{"color 8bpc", func(i *xrtypes.SwapchainCreateInfo) {}, true},
		{"10bpc", func(i *xrtypes.SwapchainCreateInfo) {
			i.Format = int64(formats.R10G10B10A2Unorm)
		}, true},
		{"depth usage", func(i *xrtypes.SwapchainCreateInfo) {
			i.UsageFlags = xrtypes.SwapchainUsageDepthStencil
		}, false},
		{"16bpc", func(i *xrtypes.SwapchainCreateInfo) {
			i.Format = int64(formats.R16G16B16A16Unorm)
		}, false},
		{"unknown format", func(i *xrtypes.SwapchainCreateInfo) {
			i.Format = 0x7FFF
		}, false},
		{"multisample", func(i *xrtypes.SwapchainCreateInfo) {
			i.SampleCount = 4
		}, false},
		{"cubemap", func(i *xrtypes.SwapchainCreateInfo) {
			i.FaceCount = 6
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := colorSwapchainInfo(2064, 2272)
			tc.mutate(&info)
			if got := mirrorEligible(info); got != tc.eligible {
				t.Errorf("mirrorEligible = %v, want %v", got, tc.eligible)
			}
		})
	}
}

func TestSwapchainLifecycle(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.startSession(t)
	rig.cloneSwapchain(t, testSwapchain, 2064, 2272, 0xA1, 0xA2, 0xA3)

	sc := rig.layer.findSwapchain(testSwapchain)
	if sc == nil || sc.phase != phaseCloned {
		t.Fatalf("phase = %v, want cloned", sc.phase)
	}
	if len(rig.backend.mirrors) != 1 {
		t.Fatalf("mirrors = %d, want 1", len(rig.backend.mirrors))
	}
	first := rig.backend.mirrors[0]
	if got := rig.renderer.opened[sc.key()]; got != first.handle {
		t.Fatalf("registered handle = %#x, want %#x", got, first.handle)
	}
	if rig.renderer.ntOpens[sc.key()] {
		t.Error("d3d11 clone registered as NT handle")
	}

	// Re-enumerating the same images is a no-op.
	same := []xrtypes.SwapchainImage{{Texture: 0xA1}, {Texture: 0xA2}, {Texture: 0xA3}}
	if err := rig.layer.EnumerateSwapchainImages(testSwapchain, same); err != nil {
		t.Fatal(err)
	}
	if len(rig.backend.mirrors) != 1 {
		t.Fatalf("stable re-enumeration rebuilt the clone")
	}

	// A different image set rebuilds the clone and releases the old one.
	drifted := []xrtypes.SwapchainImage{{Texture: 0xB1}, {Texture: 0xB2}}
	if err := rig.layer.EnumerateSwapchainImages(testSwapchain, drifted); err != nil {
		t.Fatal(err)
	}
	if !first.released {
		t.Error("drifted clone not released")
	}
	if len(rig.backend.mirrors) != 2 {
		t.Fatalf("mirrors = %d after drift, want 2", len(rig.backend.mirrors))
	}
	if sc.phase != phaseCloned {
		t.Fatalf("phase after rebuild = %v, want cloned", sc.phase)
	}

	rig.layer.DestroySwapchain(testSwapchain)
	if !rig.backend.mirrors[1].released {
		t.Error("destroy did not release the clone")
	}
	if _, open := rig.renderer.opened[uint64(testSwapchain)]; open {
		t.Error("destroy left the source registered")
	}
	if rig.layer.findSwapchain(testSwapchain) != nil {
		t.Error("destroyed swapchain still tracked")
	}
}

func TestReleaseCopyGatedByLiveness(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.startSession(t)
	rig.cloneSwapchain(t, testSwapchain, 2064, 2272, 0xA1, 0xA2)
	mirror := rig.backend.mirrors[0]

	rig.layer.AcquireSwapchainImage(testSwapchain, 1)
	rig.layer.ReleaseSwapchainImage(testSwapchain)
	if len(mirror.copies) != 1 || mirror.copies[0] != 1 {
		t.Fatalf("copies = %v, want [1]", mirror.copies)
	}

	// Stall the consumer; release copies stop.
	for i := 0; i < channel.DefaultLivenessThreshold+2; i++ {
		rig.layer.comp.CheckLiveness()
	}
	rig.layer.AcquireSwapchainImage(testSwapchain, 0)
	rig.layer.ReleaseSwapchainImage(testSwapchain)
	if len(mirror.copies) != 1 {
		t.Fatalf("copy performed while consumer inactive: %v", mirror.copies)
	}
}

func TestEndFrameComposites(t *testing.T) {
	rig := newTestRig(t, Options{EyeIndex: 0})
	rig.startSession(t)
	rig.cloneSwapchain(t, testSwapchain, 2064, 2272, 0xA1, 0xA2)

	fov := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	rig.locate(t, fov)
	rig.layer.AcquireSwapchainImage(testSwapchain, 0)
	rig.layer.ReleaseSwapchainImage(testSwapchain)

	block := rig.layer.producer.Block()
	before := block.FrameNumber()
	if err := rig.layer.EndFrame(testSession, projectionFrame(fov, 2064, 2272)); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if block.FrameNumber() != before+1 {
		t.Errorf("frame counter = %d, want %d", block.FrameNumber(), before+1)
	}
	// Matching frustums pick the direct copy.
	if len(rig.renderer.copies) != 1 || len(rig.renderer.draws) != 0 {
		t.Fatalf("copies=%d draws=%d, want 1/0", len(rig.renderer.copies), len(rig.renderer.draws))
	}
	if len(rig.renderer.publishes) != 1 {
		t.Fatalf("publishes = %v, want one slot", rig.renderer.publishes)
	}
	for slot := 0; slot < channel.HandleSlots; slot++ {
		if block.Handle(slot) == 0 {
			t.Errorf("slot %d handle not published", slot)
		}
	}
}

func TestEndFrameIgnoresUntrackedSession(t *testing.T) {
	rig := newTestRig(t, Options{})
	fov := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	err := rig.layer.EndFrame(xrtypes.Session(0xDEAD), projectionFrame(fov, 100, 100))
	if err != nil {
		t.Fatalf("untracked session errored: %v", err)
	}
	if len(rig.renderer.publishes) != 0 {
		t.Fatal("untracked session published a frame")
	}
}

func TestQuadStaleRefresh(t *testing.T) {
	rig := newTestRig(t, Options{EyeIndex: 0})
	rig.startSession(t)
	rig.cloneSwapchain(t, testSwapchain, 2064, 2272, 0xA1, 0xA2)
	rig.cloneSwapchain(t, quadSwapchain, 800, 600, 0xB1, 0xB2)

	err := rig.layer.CreateReferenceSpace(testSession, xrtypes.Space(0x40), xrtypes.ReferenceSpaceCreateInfo{
		Type:               xrtypes.TypeReferenceSpaceCreateInfo,
		ReferenceSpaceType: xrtypes.ReferenceSpaceView,
		PoseInReferenceSpace: xrtypes.Posef{
			Orientation: xrtypes.Quaternionf{W: 1},
			Position:    xrtypes.Vector3f{Z: -1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	fov := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	rig.locate(t, fov)

	// The quad swapchain is acquired but never released: the consumer was
	// not draining when the app rendered it.
	rig.layer.AcquireSwapchainImage(quadSwapchain, 1)
	rig.layer.AcquireSwapchainImage(testSwapchain, 0)
	rig.layer.ReleaseSwapchainImage(testSwapchain)

	quadMirror := rig.backend.mirrors[1]
	frame := projectionFrame(fov, 2064, 2272)
	frame.Layers = append(frame.Layers, &xrtypes.CompositionLayerQuad{
		Type:  xrtypes.TypeCompositionLayerQuad,
		Space: xrtypes.Space(0x40),
		Pose:  xrtypes.IdentityPose(),
		Size:  xrtypes.Extent2Df{Width: 1, Height: 0.75},
		SubImage: xrtypes.SwapchainSubImage{
			Swapchain: quadSwapchain,
			ImageRect: xrtypes.Rect2Di{Extent: xrtypes.Extent2Di{Width: 800, Height: 600}},
		},
	})

	// First frame: quad copied at most one frame ago, no refresh yet.
	if err := rig.layer.EndFrame(testSession, frame); err != nil {
		t.Fatal(err)
	}
	// Second frame with still no release: the clone is now older than one
	// produced frame and must be refreshed out-of-band.
	rig.layer.AcquireSwapchainImage(testSwapchain, 1)
	rig.layer.ReleaseSwapchainImage(testSwapchain)
	if err := rig.layer.EndFrame(testSession, frame); err != nil {
		t.Fatal(err)
	}
	if len(quadMirror.copies) == 0 {
		t.Fatal("stale quad clone never refreshed")
	}
	if got := quadMirror.copies[len(quadMirror.copies)-1]; got != 1 {
		t.Errorf("refresh copied index %d, want last acquired 1", got)
	}
	// One draw per frame for the quad overlay.
	if len(rig.renderer.draws) != 2 {
		t.Errorf("quad draws = %d, want 2", len(rig.renderer.draws))
	}
}

func TestLocateViewsSanitizesInvalidPoses(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.startSession(t)

	bad := xrtypes.View{Type: xrtypes.TypeView} // zero orientation, zero position
	err := rig.layer.LocateViews(testSession,
		xrtypes.ViewState{Type: xrtypes.TypeViewState, Flags: 0},
		[]xrtypes.View{bad})
	if err != nil {
		t.Fatal(err)
	}
	got := rig.layer.sessions[testSession].views[0].Pose
	if got.Orientation != (xrtypes.Quaternionf{W: 1}) {
		t.Errorf("orientation = %+v, want identity", got.Orientation)
	}
	if got.Position != (xrtypes.Vector3f{Y: 1.5}) {
		t.Errorf("position = %+v, want standing fallback", got.Position)
	}
}

func TestCloseZeroesPublishedHandles(t *testing.T) {
	rig := newTestRig(t, Options{})
	rig.startSession(t)
	rig.cloneSwapchain(t, testSwapchain, 2064, 2272, 0xA1)

	fov := xrtypes.Fovf{AngleLeft: -0.8, AngleRight: 0.8, AngleUp: 0.7, AngleDown: -0.7}
	rig.locate(t, fov)
	rig.layer.AcquireSwapchainImage(testSwapchain, 0)
	rig.layer.ReleaseSwapchainImage(testSwapchain)
	if err := rig.layer.EndFrame(testSession, projectionFrame(fov, 2064, 2272)); err != nil {
		t.Fatal(err)
	}

	block := rig.layer.producer.Block()
	if block.Handle(0) == 0 {
		t.Fatal("no handle published before close")
	}
	rig.layer.Close()
	for slot := 0; slot < channel.HandleSlots; slot++ {
		if block.Handle(slot) != 0 {
			t.Errorf("slot %d handle survived close", slot)
		}
	}
	if !rig.backend.closed {
		t.Error("backend not closed")
	}
	if !rig.renderer.released {
		t.Error("renderer not released")
	}
}
