// Package channel implements the shared surface channel: a fixed-layout
// block of named shared memory, plus up to three shareable GPU texture
// handles, that the producer (the mirror layer inside the VR application)
// and an independent consumer process use to hand frames off.
//
// There is no lock. The producer owns every field except lastProcessedIndex,
// which only the consumer writes. All accesses are single aligned word
// reads/writes; the handoff is best-effort and eventually consistent, not a
// queue. On teardown the handles are zeroed before the mapping is released
// so a consumer opening mid-shutdown observes zero rather than a dangling
// stale value.
package channel

import (
	"errors"
	"math"
	"sync/atomic"
	"unsafe"
)

// DefaultName is the well-known mapping name both processes agree on.
const DefaultName = "XRMirrorSurface"

// Field offsets within the block. These are the wire format: both processes
// compile them independently, so they must never change.
const (
	offLastProcessed = 0  // u32, consumer-owned
	offFrameNumber   = 4  // u32
	offEyeIndex      = 8  // u32; 0/1 single eye, anything else dual-eye
	offOverlap       = 12 // f32 percent
	offBlend         = 16 // f32 percent
	offBlendPos      = 20 // f32 percent
	offHandles       = 24 // 3 × u64 native handle values

	// HandleSlots is the number of buffered output textures published.
	HandleSlots = 3

	// BlockSize is the total mapping size in bytes.
	BlockSize = offHandles + HandleSlots*8
)

// EyeIndex values 0 and 1 select a single eye; DualEye (or any other
// value) selects composited side-by-side output.
const DualEye = ^uint32(0)

// ErrShortBuffer is returned when a backing buffer is smaller than BlockSize.
var ErrShortBuffer = errors.New("buffer smaller than surface block")

// Block is the accessor over the raw shared mapping. It replaces pointer
// arithmetic at call sites with named single-word atomic accessors.
type Block struct {
	base unsafe.Pointer
}

// BlockOver wraps a caller-provided buffer as a Block. Tests and the
// non-shared fallback use this; the real producer/consumer wrap the mapped
// view directly.
func BlockOver(buf []byte) (*Block, error) {
	if len(buf) < BlockSize {
		return nil, ErrShortBuffer
	}
	return &Block{base: unsafe.Pointer(&buf[0])}, nil
}

func blockAt(p unsafe.Pointer) *Block {
	return &Block{base: p}
}

func (b *Block) u32(off uintptr) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(b.base) + off))
}

func (b *Block) u64(off uintptr) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(b.base) + off))
}

// LastProcessed returns the consumer-advanced counter.
func (b *Block) LastProcessed() uint32 {
	return atomic.LoadUint32(b.u32(offLastProcessed))
}

// SetLastProcessed is the consumer's only write into the block.
func (b *Block) SetLastProcessed(n uint32) {
	atomic.StoreUint32(b.u32(offLastProcessed), n)
}

// FrameNumber returns the producer frame counter.
func (b *Block) FrameNumber() uint32 {
	return atomic.LoadUint32(b.u32(offFrameNumber))
}

// AdvanceFrame increments the producer frame counter and returns the new
// value. Wrap-around is fine; consumers compare for change, not order.
func (b *Block) AdvanceFrame() uint32 {
	return atomic.AddUint32(b.u32(offFrameNumber), 1)
}

// EyeIndex returns the configured eye selection.
func (b *Block) EyeIndex() uint32 {
	return atomic.LoadUint32(b.u32(offEyeIndex))
}

// SetEyeIndex configures eye selection (0, 1, or DualEye).
func (b *Block) SetEyeIndex(eye uint32) {
	atomic.StoreUint32(b.u32(offEyeIndex), eye)
}

// Overlap returns the side-by-side horizontal overlap percentage.
func (b *Block) Overlap() float32 { return b.percent(offOverlap) }

// Blend returns the crossfade band width percentage.
func (b *Block) Blend() float32 { return b.percent(offBlend) }

// BlendPos returns the crossfade band center percentage.
func (b *Block) BlendPos() float32 { return b.percent(offBlendPos) }

// SetBlendParams stores the blend parameters, clamping each to [0,100].
// The consumer UI writes these fields in the live system; clamping here as
// well keeps hostile or garbage values out of shader math.
func (b *Block) SetBlendParams(overlap, blend, blendPos float32) {
	atomic.StoreUint32(b.u32(offOverlap), math.Float32bits(ClampPercent(overlap)))
	atomic.StoreUint32(b.u32(offBlend), math.Float32bits(ClampPercent(blend)))
	atomic.StoreUint32(b.u32(offBlendPos), math.Float32bits(ClampPercent(blendPos)))
}

func (b *Block) percent(off uintptr) float32 {
	return ClampPercent(math.Float32frombits(atomic.LoadUint32(b.u32(off))))
}

// Handle returns the published native handle value for one buffer slot.
// Zero means nothing is published in that slot. Out-of-range slots read as
// zero: the index may come from the untrusted side.
func (b *Block) Handle(slot int) uint64 {
	if slot < 0 || slot >= HandleSlots {
		return 0
	}
	return atomic.LoadUint64(b.u64(offHandles + uintptr(slot)*8))
}

// SetHandle publishes a native handle value into one buffer slot.
func (b *Block) SetHandle(slot int, h uint64) {
	if slot < 0 || slot >= HandleSlots {
		return
	}
	atomic.StoreUint64(b.u64(offHandles+uintptr(slot)*8), h)
}

// ZeroHandles clears every published handle. Called before the mapping is
// released and before handles are replaced on a resize.
func (b *Block) ZeroHandles() {
	for i := 0; i < HandleSlots; i++ {
		b.SetHandle(i, 0)
	}
}

// ClampPercent clamps a percentage to [0,100]. NaN clamps to 0.
func ClampPercent(v float32) float32 {
	if v != v || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
