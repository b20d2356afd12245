package intercept

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/xrmirror/layer/internal/gpu"
	"github.com/xrmirror/layer/internal/logging"
	"github.com/xrmirror/layer/internal/xrmath"
	"github.com/xrmirror/layer/internal/xrtypes"
)

// sessionState is the per-tracked-session registry: the graphics backend
// built from the session's binding, its swapchains and reference spaces, and
// the most recent located views the next frame end composites with.
type sessionState struct {
	handle  xrtypes.Session
	id      string
	log     *slog.Logger
	backend gpu.Backend

	swapchains map[xrtypes.Swapchain]*swapchainState
	spaces     map[xrtypes.Space]xrtypes.ReferenceSpaceCreateInfo

	// recommended is the runtime's suggested per-view render extent, used
	// when an app submits a projection view without a sub-image rect.
	recommended xrtypes.Extent2Di

	views []xrtypes.View
	fovs  []xrtypes.Fovf
}

func (s *sessionState) close() {
	for _, sc := range s.swapchains {
		sc.destroy()
	}
	s.swapchains = nil
	s.spaces = nil
	if s.backend != nil {
		s.backend.Close()
		s.backend = nil
	}
}

// CreateInstance records the application identity for the log. The instance
// handle itself is not tracked; sessions are.
func (l *Layer) CreateInstance(info xrtypes.InstanceCreateInfo, runtimeName string, runtimeVersion string) error {
	if info.Type != xrtypes.TypeInstanceCreateInfo {
		return xrtypes.ErrValidationFailure
	}
	l.log.Info("instance created",
		"application", info.ApplicationInfo.ApplicationName,
		"engine", info.ApplicationInfo.EngineName,
		"runtime", runtimeName,
		"runtime_version", runtimeVersion)
	return nil
}

// CreateSession inspects the session's decoded graphics binding and starts
// tracking when it is a mirrorable API. Unknown bindings and sessions beyond
// the first tracked one pass through untouched.
func (l *Layer) CreateSession(session xrtypes.Session, info xrtypes.SessionCreateInfo) error {
	if info.Type != xrtypes.TypeSessionCreateInfo {
		return xrtypes.ErrValidationFailure
	}
	if !l.Enabled() {
		return nil
	}
	if l.mirrored != nil {
		l.log.Warn("already mirroring a session, new session passed through",
			"session", uintptr(session))
		return nil
	}

	backend, err := l.deps.NewBackend(info.Binding)
	if err != nil {
		l.log.Info("session not mirrorable",
			"session", uintptr(session),
			"binding_type", uint32(info.Binding.BindingType()),
			logging.KeyError, err)
		return nil
	}

	s := &sessionState{
		handle:     session,
		id:         uuid.NewString(),
		backend:    backend,
		swapchains: make(map[xrtypes.Swapchain]*swapchainState),
		spaces:     make(map[xrtypes.Space]xrtypes.ReferenceSpaceCreateInfo),
	}
	s.log = logging.WithSession(l.log, s.id)
	l.sessions[session] = s
	l.mirrored = s
	s.log.Info("session tracked", "api", backend.API().String())
	return nil
}

// DestroySession drops a session and everything registered under it.
func (l *Layer) DestroySession(session xrtypes.Session) {
	s, ok := l.sessions[session]
	if !ok {
		return
	}
	for handle := range s.swapchains {
		l.DestroySwapchain(handle)
	}
	s.close()
	delete(l.sessions, session)
	if l.mirrored == s {
		l.mirrored = nil
	}
	s.log.Info("session untracked")
}

// RecordViewConfiguration caches the runtime's recommended render extent for
// the session's primary view. Apps that submit projection views without a
// sub-image rect get this extent substituted.
func (l *Layer) RecordViewConfiguration(session xrtypes.Session, views []xrtypes.ViewConfigurationView) error {
	s, ok := l.sessions[session]
	if !ok || len(views) == 0 {
		return nil
	}
	if views[0].Type != xrtypes.TypeViewConfigurationView {
		return xrtypes.ErrValidationFailure
	}
	s.recommended = xrtypes.Extent2Di{
		Width:  int32(views[0].RecommendedImageRectWidth),
		Height: int32(views[0].RecommendedImageRectHeight),
	}
	return nil
}

// CreateReferenceSpace captures the space's type and pose-in-reference so
// quad layers declared in it can be positioned at composite time.
func (l *Layer) CreateReferenceSpace(session xrtypes.Session, space xrtypes.Space, info xrtypes.ReferenceSpaceCreateInfo) error {
	if info.Type != xrtypes.TypeReferenceSpaceCreateInfo {
		return xrtypes.ErrValidationFailure
	}
	s, ok := l.sessions[session]
	if !ok {
		return nil
	}
	s.spaces[space] = info
	return nil
}

// DestroyReferenceSpace forgets a captured space record.
func (l *Layer) DestroyReferenceSpace(space xrtypes.Space) {
	for _, s := range l.sessions {
		delete(s.spaces, space)
	}
}

// LocateViews captures the per-frame eye poses and frustums. Poses the
// runtime flags invalid are sanitized: orientation falls back to identity,
// position to a standing height at the origin.
func (l *Layer) LocateViews(session xrtypes.Session, state xrtypes.ViewState, views []xrtypes.View) error {
	if state.Type != xrtypes.TypeViewState {
		return xrtypes.ErrValidationFailure
	}
	s, ok := l.sessions[session]
	if !ok {
		return nil
	}
	for _, v := range views {
		if v.Type != xrtypes.TypeView {
			return xrtypes.ErrValidationFailure
		}
	}
	s.views = s.views[:0]
	s.fovs = s.fovs[:0]
	for _, v := range views {
		v.Pose = xrmath.SanitizePose(v.Pose, state.Flags)
		s.views = append(s.views, v)
		s.fovs = append(s.fovs, v.Fov)
	}
	return nil
}
