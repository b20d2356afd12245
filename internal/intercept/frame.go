package intercept

import (
	"github.com/xrmirror/layer/internal/compositor"
	"github.com/xrmirror/layer/internal/xrmath"
	"github.com/xrmirror/layer/internal/xrtypes"
)

// BeginFrame validates the tag. The render target itself is cleared when the
// previous frame is published, so there is no per-begin GPU work.
func (l *Layer) BeginFrame(session xrtypes.Session, infoType xrtypes.StructureType) error {
	if infoType != xrtypes.TypeFrameBeginInfo {
		return xrtypes.ErrValidationFailure
	}
	return nil
}

// EndFrame mirrors the frame the application just submitted: the projection
// layer supplies the base eye image(s), quad layers blend on top, and the
// result is published through the channel. The liveness check runs first;
// with no consumer draining frames everything past it is skipped.
func (l *Layer) EndFrame(session xrtypes.Session, info xrtypes.FrameEndInfo) error {
	if info.Type != xrtypes.TypeFrameEndInfo {
		return xrtypes.ErrValidationFailure
	}
	s, ok := l.sessions[session]
	if !ok || s != l.mirrored {
		return nil
	}
	comp := l.ensureCompositor()
	if comp == nil {
		return nil
	}
	if !comp.CheckLiveness() {
		return nil
	}

	proj, quads := splitLayers(info.Layers)
	if proj == nil || len(proj.Views) == 0 {
		return nil
	}
	views := l.normalizeViews(s, proj.Views)

	srcs, ok := l.projectionSources(s, views)
	if !ok {
		return nil
	}

	base := views[0].SubImage.ImageRect.Extent
	format := s.swapchains[views[0].SubImage.Swapchain].desc().Format
	if err := comp.EnsureOutputSurface(uint32(base.Width), uint32(base.Height), format); err != nil {
		comp.ReportGPUError("output surface allocation failed", err)
		return nil
	}

	if err := comp.CompositeProjection(views, s.fovs, srcs); err != nil {
		comp.ReportGPUError("projection composite failed", err)
	}

	eye := l.mirrorEye(len(views))
	for _, quad := range quads {
		l.compositeQuad(s, views[eye], eye, quad)
	}

	if err := comp.FlushAndPublish(); err != nil {
		comp.ReportGPUError("publish failed", err)
	}
	return nil
}

// splitLayers picks the first projection layer as the base and collects quad
// layers. Other layer types are not mirrored.
func splitLayers(layers []xrtypes.CompositionLayer) (*xrtypes.CompositionLayerProjection, []*xrtypes.CompositionLayerQuad) {
	var proj *xrtypes.CompositionLayerProjection
	var quads []*xrtypes.CompositionLayerQuad
	for _, layer := range layers {
		switch v := layer.(type) {
		case *xrtypes.CompositionLayerProjection:
			if proj == nil {
				proj = v
			}
		case *xrtypes.CompositionLayerQuad:
			quads = append(quads, v)
		}
	}
	return proj, quads
}

// normalizeViews substitutes the runtime's recommended extent for views the
// app submitted without a sub-image rect.
func (l *Layer) normalizeViews(s *sessionState, in []xrtypes.CompositionLayerProjectionView) []xrtypes.CompositionLayerProjectionView {
	views := make([]xrtypes.CompositionLayerProjectionView, len(in))
	copy(views, in)
	for i := range views {
		ext := &views[i].SubImage.ImageRect.Extent
		if ext.Width == 0 || ext.Height == 0 {
			*ext = s.recommended
		}
	}
	return views
}

// projectionSources resolves each view's swapchain to its cloned mirror.
// A projection over an untracked or not-yet-cloned swapchain skips the
// frame; the next enumeration or copy catches up.
func (l *Layer) projectionSources(s *sessionState, views []xrtypes.CompositionLayerProjectionView) ([]compositor.Source, bool) {
	srcs := make([]compositor.Source, len(views))
	for i, v := range views {
		sc, ok := s.swapchains[v.SubImage.Swapchain]
		if !ok || sc.phase != phaseCloned {
			return nil, false
		}
		srcs[i] = compositor.Source{
			Key:       sc.key(),
			TexWidth:  sc.info.Width,
			TexHeight: sc.info.Height,
		}
	}
	return srcs, true
}

// mirrorEye is the eye whose frustum and pose anchor quad overlays: the
// configured eye in single-eye mode, the first eye in dual-eye mode.
func (l *Layer) mirrorEye(viewCount int) int {
	eye := int(l.opts.EyeIndex)
	if eye != 0 && eye != 1 {
		eye = 0
	}
	if eye >= viewCount {
		eye = 0
	}
	return eye
}

// compositeQuad blends one quad layer over the base view. A clone that was
// acquired this frame but never released (the app skipped the copy because
// the consumer lagged) is refreshed here so published pixels are never older
// than one produced frame.
func (l *Layer) compositeQuad(s *sessionState, view xrtypes.CompositionLayerProjectionView, eye int, quad *xrtypes.CompositionLayerQuad) {
	sc, ok := s.swapchains[quad.SubImage.Swapchain]
	if !ok || sc.phase != phaseCloned {
		return
	}
	frame := l.producer.Block().FrameNumber()
	if sc.acquired >= 0 && sc.lastCopyFrame+1 < frame {
		l.refreshClone(sc)
	}

	viewPose := xrtypes.IdentityPose()
	if eye < len(s.views) {
		viewPose = s.views[eye].Pose
	}
	// A quad declared in view space is head-locked: its offset from the
	// viewer is the space's own pose, not the tracked head pose.
	if record, ok := s.spaces[quad.Space]; ok && record.ReferenceSpaceType == xrtypes.ReferenceSpaceView {
		viewPose = xrmath.SanitizePose(record.PoseInReferenceSpace,
			xrtypes.ViewStateOrientationValid|xrtypes.ViewStatePositionValid)
	}

	src := compositor.Source{
		Key:       sc.key(),
		TexWidth:  sc.info.Width,
		TexHeight: sc.info.Height,
	}
	if err := l.comp.CompositeQuad(view, *quad, viewPose, src); err != nil {
		l.comp.ReportGPUError("quad composite failed", err)
	}
}
