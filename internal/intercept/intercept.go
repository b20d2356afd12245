// Package intercept implements the mirror layer's view of the OpenXR
// session, swapchain and frame lifecycle. A dispatch trampoline forwards
// every call to the runtime first and then hands the decoded arguments to a
// Layer; the Layer tracks eligible swapchains, clones their rendered images
// into shareable textures, and drives the compositor at frame end. Sessions
// and swapchains the Layer does not track are left untouched.
package intercept

import (
	"fmt"
	"log/slog"

	"github.com/xrmirror/layer/internal/channel"
	"github.com/xrmirror/layer/internal/compositor"
	"github.com/xrmirror/layer/internal/gpu"
	"github.com/xrmirror/layer/internal/logging"
	"github.com/xrmirror/layer/internal/xrtypes"
)

// Options is the mirror configuration a Layer is constructed with. Blend
// percentages are clamped to [0,100] when written into the channel block.
type Options struct {
	// ChannelName names the shared surface mapping. Empty selects
	// channel.DefaultName.
	ChannelName string

	// EyeIndex selects the mirrored eye: 0 or 1 for a single eye, any
	// other value for side-by-side dual eye.
	EyeIndex uint32

	Overlap  float32
	Blend    float32
	BlendPos float32

	// LivenessThresholdFrames overrides the consumer stall threshold.
	// Zero keeps the channel default.
	LivenessThresholdFrames int
}

// Deps are the constructors the Layer builds its GPU and channel machinery
// from. Production wiring comes from DefaultDeps; tests substitute fakes.
type Deps struct {
	NewBackend  func(binding xrtypes.GraphicsBinding) (gpu.Backend, error)
	NewRenderer func() (compositor.Renderer, error)
	OpenChannel func(name string) (*channel.Producer, error)
}

// Layer is the process-wide intercept state: the one shared surface channel,
// the compositor, and the registries of tracked sessions. It replaces the
// free-standing statics a layer DLL would otherwise accumulate; the host
// constructs exactly one at initialization and tears it down at unload.
type Layer struct {
	opts Options
	deps Deps
	log  *slog.Logger

	producer *channel.Producer
	comp     *compositor.Compositor

	sessions map[xrtypes.Session]*sessionState
	// mirrored is the one session the channel serves. Later graphics
	// sessions pass through untracked.
	mirrored *sessionState
}

// New creates the layer and its shared surface channel. A channel mapping
// failure disables mirroring for the whole process but is not fatal to the
// host: the returned Layer passes every call through.
func New(opts Options, deps Deps) (*Layer, error) {
	if opts.ChannelName == "" {
		opts.ChannelName = channel.DefaultName
	}
	l := &Layer{
		opts:     opts,
		deps:     deps,
		log:      logging.L("intercept"),
		sessions: make(map[xrtypes.Session]*sessionState),
	}

	producer, err := deps.OpenChannel(opts.ChannelName)
	if err != nil {
		l.log.Error("shared surface channel unavailable, mirroring disabled",
			"channel", opts.ChannelName, logging.KeyError, err)
		return l, fmt.Errorf("create channel %q: %w", opts.ChannelName, err)
	}
	block := producer.Block()
	block.SetEyeIndex(opts.EyeIndex)
	block.SetBlendParams(opts.Overlap, opts.Blend, opts.BlendPos)
	if opts.LivenessThresholdFrames > 0 {
		producer.SetLivenessThreshold(opts.LivenessThresholdFrames)
	}
	l.producer = producer
	l.log.Info("shared surface channel created",
		"channel", opts.ChannelName, "eye_index", opts.EyeIndex)
	return l, nil
}

// Enabled reports whether the channel mapping exists. When false every
// lifecycle method is a passthrough no-op.
func (l *Layer) Enabled() bool {
	return l.producer != nil
}

// Close tears down the compositor, all tracked sessions, and finally the
// channel. Handles are zeroed before the mapping goes away so a consumer
// opening mid-teardown observes unpublished state.
func (l *Layer) Close() {
	for handle, s := range l.sessions {
		s.close()
		delete(l.sessions, handle)
	}
	l.mirrored = nil
	if l.comp != nil {
		l.comp.Close()
		l.comp = nil
	}
	if l.producer != nil {
		l.producer.Close()
		l.producer = nil
	}
}

// ensureCompositor builds the render device and compositor on first use.
// Creation failure is remembered as a nil compositor; callers skip work.
func (l *Layer) ensureCompositor() *compositor.Compositor {
	if l.comp != nil || l.producer == nil {
		return l.comp
	}
	renderer, err := l.deps.NewRenderer()
	if err != nil {
		l.log.Error("render device creation failed, mirroring disabled",
			logging.KeyError, err)
		l.producer.Close()
		l.producer = nil
		return nil
	}
	l.comp = compositor.New(l.producer, renderer)
	return l.comp
}
