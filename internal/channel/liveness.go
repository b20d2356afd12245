package channel

// DefaultLivenessThreshold is how many consecutive producer frames the
// consumer counter may sit unchanged before the consumer is presumed gone.
const DefaultLivenessThreshold = 10

// Liveness decides whether a consumer is attached by watching its counter.
// The consumer bumps lastProcessedIndex as it processes frames; if the value
// fails to change for more than the threshold number of producer frames the
// tracker reports inactive and the producer skips all composite work. The
// moment the counter moves again the tracker reports active, so a consumer
// that starts late or restarts picks the stream back up on its next frame.
type Liveness struct {
	threshold int
	primed    bool
	last      uint32
	stalled   int
}

// NewLiveness returns a tracker with the given stall threshold. A threshold
// of zero or less uses DefaultLivenessThreshold.
func NewLiveness(threshold int) *Liveness {
	if threshold <= 0 {
		threshold = DefaultLivenessThreshold
	}
	return &Liveness{threshold: threshold}
}

// Observe records the consumer counter for one producer frame and reports
// whether the consumer is considered active for that frame. Call it exactly
// once per frame, before any composite work.
func (l *Liveness) Observe(counter uint32) bool {
	if !l.primed {
		l.primed = true
		l.last = counter
		l.stalled = 0
		return true
	}
	if counter != l.last {
		l.last = counter
		l.stalled = 0
		return true
	}
	l.stalled++
	return l.stalled <= l.threshold
}

// Active reports the result of the most recent Observe.
func (l *Liveness) Active() bool {
	return l.primed && l.stalled <= l.threshold
}

// StalledFrames returns how many consecutive frames the counter has been
// unchanged. Diagnostic only.
func (l *Liveness) StalledFrames() int {
	return l.stalled
}
