package channel

import (
	"log/slog"

	"github.com/xrmirror/layer/internal/logging"
)

// Producer is the mirror layer's side of the channel. It owns every field
// of the block except the consumer counter.
type Producer struct {
	name    string
	block   *Block
	live    *Liveness
	active  bool
	log     *slog.Logger
	closeFn func() error
}

func newProducer(name string, block *Block, closeFn func() error) *Producer {
	return &Producer{
		name:    name,
		block:   block,
		live:    NewLiveness(DefaultLivenessThreshold),
		active:  true,
		log:     logging.L("channel"),
		closeFn: closeFn,
	}
}

// Name returns the mapping name the channel was created under.
func (p *Producer) Name() string { return p.name }

// Block exposes the raw block accessors. The compositor reads the blend
// parameters through this.
func (p *Producer) Block() *Block { return p.block }

// SetLivenessThreshold replaces the stall threshold. Call before the first
// Advance; frames of zero or less keep the default.
func (p *Producer) SetLivenessThreshold(frames int) {
	p.live = NewLiveness(frames)
}

// Publish stores the shareable handle for one buffer slot.
func (p *Producer) Publish(slot int, handle uint64) {
	p.block.SetHandle(slot, handle)
}

// Retract zeroes every published handle. Called before the textures behind
// them are released on a resize.
func (p *Producer) Retract() {
	p.block.ZeroHandles()
}

// Advance bumps the producer frame counter, observes the consumer counter,
// and reports whether mirror work should run for this frame. Call it once
// per frame, before any composite work.
func (p *Producer) Advance() bool {
	p.block.AdvanceFrame()
	now := p.live.Observe(p.block.LastProcessed())
	if now != p.active {
		if now {
			p.log.Info("consumer active", "frame", p.block.FrameNumber())
		} else {
			p.log.Info("consumer inactive", "stalled_frames", p.live.StalledFrames())
		}
		p.active = now
	}
	return now
}

// ConsumerActive reports the liveness verdict from the most recent Advance
// without observing a new frame.
func (p *Producer) ConsumerActive() bool {
	return p.active
}

// Close zeroes the published handles and releases the mapping, in that
// order.
func (p *Producer) Close() error {
	p.block.ZeroHandles()
	if p.closeFn != nil {
		err := p.closeFn()
		p.closeFn = nil
		return err
	}
	return nil
}

// CreateOver builds a producer over a caller-provided buffer instead of a
// named mapping. Used by the simulate tooling and tests.
func CreateOver(name string, buf []byte) (*Producer, error) {
	block, err := BlockOver(buf)
	if err != nil {
		return nil, err
	}
	return newProducer(name, block, nil), nil
}

// OpenOver builds a consumer over a caller-provided buffer.
func OpenOver(name string, buf []byte) (*Consumer, error) {
	block, err := BlockOver(buf)
	if err != nil {
		return nil, err
	}
	return newConsumer(name, block, nil), nil
}

// Consumer is the receiving side. The in-repo consumer exists for the
// status and watch tooling; the real consumer is an external capture
// plugin compiled against the same block layout.
type Consumer struct {
	name    string
	block   *Block
	closeFn func() error
}

func newConsumer(name string, block *Block, closeFn func() error) *Consumer {
	return &Consumer{name: name, block: block, closeFn: closeFn}
}

// Name returns the mapping name the channel was opened under.
func (c *Consumer) Name() string { return c.name }

// Block exposes the raw block accessors.
func (c *Consumer) Block() *Block { return c.block }

// FrameNumber returns the producer's frame counter.
func (c *Consumer) FrameNumber() uint32 { return c.block.FrameNumber() }

// Handle returns the published handle for one buffer slot, zero if none.
func (c *Consumer) Handle(slot int) uint64 { return c.block.Handle(slot) }

// MarkProcessed advances the consumer counter so the producer sees the
// consumer as alive. Watchers that only inspect the block must not call it.
func (c *Consumer) MarkProcessed() {
	c.block.SetLastProcessed(c.block.LastProcessed() + 1)
}

// Close releases the mapping. Consumer-side close never touches the
// producer-owned fields.
func (c *Consumer) Close() error {
	if c.closeFn != nil {
		err := c.closeFn()
		c.closeFn = nil
		return err
	}
	return nil
}
