package intercept

import (
	"log/slog"

	"github.com/xrmirror/layer/internal/formats"
	"github.com/xrmirror/layer/internal/gpu"
	"github.com/xrmirror/layer/internal/logging"
	"github.com/xrmirror/layer/internal/xrtypes"
)

// maxMirrorBitsPerChannel caps the bit depth the mirror captures. Deeper
// formats (16-bit float HDR) are skipped: the consumer side presents 8/10
// bit output and the copy cost is not worth it.
const maxMirrorBitsPerChannel = 10

// swapchainPhase is the mirror lifecycle of one tracked swapchain.
type swapchainPhase int

const (
	phaseUnbound swapchainPhase = iota
	phaseTracked
	phaseCloned
	phaseStale
	phaseDestroyed
)

func (p swapchainPhase) String() string {
	switch p {
	case phaseTracked:
		return "tracked"
	case phaseCloned:
		return "cloned"
	case phaseStale:
		return "stale"
	case phaseDestroyed:
		return "destroyed"
	default:
		return "unbound"
	}
}

// swapchainState tracks one eligible swapchain: its cached create-info, the
// shareable clone mirror, the enumerated image pointers, and the acquire
// cursor the release-time copy uses.
type swapchainState struct {
	handle  xrtypes.Swapchain
	session *sessionState
	phase   swapchainPhase
	info    xrtypes.SwapchainCreateInfo
	log     *slog.Logger

	mirror gpu.SwapchainMirror
	images []uintptr

	// acquired is the image index of the most recent acquire, -1 before the
	// first one. The release copy and stale-quad refresh both read it.
	acquired int

	// lastCopyFrame is the channel frame number current when the clone was
	// last refreshed. Compared against the live frame number to bound quad
	// staleness to one produced frame.
	lastCopyFrame uint32
}

// key addresses this swapchain's clone at the compositor.
func (sc *swapchainState) key() uint64 {
	return uint64(sc.handle)
}

func (sc *swapchainState) desc() gpu.TextureDesc {
	return gpu.TextureDesc{
		Width:  sc.info.Width,
		Height: sc.info.Height,
		Format: formats.Format(uint32(sc.info.Format)),
	}
}

func (sc *swapchainState) destroy() {
	if sc.mirror != nil {
		sc.mirror.Release()
		sc.mirror = nil
	}
	sc.images = nil
	sc.phase = phaseDestroyed
}

// mirrorEligible applies the tracking filter: the swapchain must be rendered
// to as a color attachment, single-sample, non-cubemap, and use a catalog
// format of at most 10 bits per channel.
func mirrorEligible(info xrtypes.SwapchainCreateInfo) bool {
	if info.UsageFlags&xrtypes.SwapchainUsageColorAttachment == 0 {
		return false
	}
	if info.SampleCount > 1 || info.FaceCount > 1 {
		return false
	}
	fi, ok := formats.Resolve(formats.Format(uint32(info.Format)))
	if !ok {
		return false
	}
	return fi.BitsPerChannel <= maxMirrorBitsPerChannel
}

// CreateSwapchain caches the create-info for eligible swapchains of the
// mirrored session and moves them to the tracked phase. No GPU allocation
// happens until images are enumerated.
func (l *Layer) CreateSwapchain(session xrtypes.Session, swapchain xrtypes.Swapchain, info xrtypes.SwapchainCreateInfo) error {
	if info.Type != xrtypes.TypeSwapchainCreateInfo {
		return xrtypes.ErrValidationFailure
	}
	s, ok := l.sessions[session]
	if !ok {
		return nil
	}
	if !mirrorEligible(info) {
		s.log.Debug("swapchain not eligible",
			logging.KeySwapchain, uintptr(swapchain),
			"format", info.Format,
			"usage", info.UsageFlags)
		return nil
	}
	sc := &swapchainState{
		handle:   swapchain,
		session:  s,
		phase:    phaseTracked,
		info:     info,
		acquired: -1,
	}
	sc.log = s.log.With(logging.KeySwapchain, uintptr(swapchain))
	s.swapchains[swapchain] = sc
	sc.log.Info("swapchain tracked",
		"width", info.Width,
		"height", info.Height,
		"format", info.Format,
		"array_size", info.ArraySize,
		"mip_count", info.MipCount)
	return nil
}

// EnumerateSwapchainImages builds the shareable clone on first enumeration
// and registers its handle with the compositor. A re-enumeration that shows
// a different image set marks the old clone stale and rebuilds it.
func (l *Layer) EnumerateSwapchainImages(swapchain xrtypes.Swapchain, images []xrtypes.SwapchainImage) error {
	sc := l.findSwapchain(swapchain)
	if sc == nil || len(images) == 0 {
		return nil
	}

	natives := make([]uintptr, len(images))
	for i, img := range images {
		natives[i] = img.Texture
	}
	if sc.phase == phaseCloned && sameImages(sc.images, natives) {
		return nil
	}
	if sc.mirror != nil {
		sc.phase = phaseStale
		l.dropClone(sc)
		sc.phase = phaseTracked
		sc.log.Info("swapchain images drifted, clone rebuilt")
	}
	return l.buildClone(sc, natives)
}

// buildClone allocates the mirror texture and hands its shared handle to the
// compositor. Failure is non-fatal: the swapchain stays tracked and the next
// enumeration retries.
func (l *Layer) buildClone(sc *swapchainState, natives []uintptr) error {
	comp := l.ensureCompositor()
	if comp == nil {
		return nil
	}
	mirror, err := sc.session.backend.NewSwapchainMirror(sc.desc(), natives)
	if err != nil {
		comp.ReportGPUError("swapchain clone allocation failed", err)
		return nil
	}
	nt := sc.session.backend.API() == gpu.APID3D12
	if err := comp.RegisterSource(sc.key(), mirror.Handle(), nt); err != nil {
		comp.ReportGPUError("shared clone open failed", err)
		mirror.Release()
		return nil
	}
	sc.mirror = mirror
	sc.images = natives
	sc.phase = phaseCloned
	sc.log.Info("swapchain cloned", "images", len(natives), "nt_handle", nt)
	return nil
}

// dropClone unregisters and releases the clone. Unregister first: the
// compositor holds the shared handle open.
func (l *Layer) dropClone(sc *swapchainState) {
	if l.comp != nil {
		l.comp.UnregisterSource(sc.key())
	}
	if sc.mirror != nil {
		sc.mirror.Release()
		sc.mirror = nil
	}
	sc.images = nil
}

// AcquireSwapchainImage records which image index the application will
// render into next. index comes from the runtime's acquire result.
func (l *Layer) AcquireSwapchainImage(swapchain xrtypes.Swapchain, index uint32) {
	if sc := l.findSwapchain(swapchain); sc != nil {
		sc.acquired = int(index)
	}
}

// ReleaseSwapchainImage copies the just-rendered image into the clone. The
// copy is skipped entirely while the consumer is inactive; that is the main
// backpressure path.
func (l *Layer) ReleaseSwapchainImage(swapchain xrtypes.Swapchain) {
	sc := l.findSwapchain(swapchain)
	if sc == nil || sc.phase != phaseCloned || sc.acquired < 0 {
		return
	}
	if l.comp == nil || !l.comp.Active() {
		return
	}
	l.refreshClone(sc)
}

// refreshClone performs the clone copy and stamps the frame number it
// happened at.
func (l *Layer) refreshClone(sc *swapchainState) {
	if err := sc.mirror.CopyFrom(sc.acquired); err != nil {
		l.comp.ReportGPUError("swapchain clone copy failed", err)
		return
	}
	sc.lastCopyFrame = l.producer.Block().FrameNumber()
}

// DestroySwapchain releases the clone and per-image resources and forgets
// the swapchain.
func (l *Layer) DestroySwapchain(swapchain xrtypes.Swapchain) {
	sc := l.findSwapchain(swapchain)
	if sc == nil {
		return
	}
	l.dropClone(sc)
	sc.destroy()
	delete(sc.session.swapchains, swapchain)
	sc.log.Info("swapchain destroyed")
}

func (l *Layer) findSwapchain(swapchain xrtypes.Swapchain) *swapchainState {
	for _, s := range l.sessions {
		if sc, ok := s.swapchains[swapchain]; ok {
			return sc
		}
	}
	return nil
}

func sameImages(a, b []uintptr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
