//go:build windows

package gpu

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// d3d12Backend wraps the application's ID3D12Device and the command queue
// its frames are submitted on. Copies are recorded into per-image command
// lists and fenced so the clone is complete before its handle is consumed.
type d3d12Backend struct {
	device uintptr // ID3D12Device, borrowed
	queue  uintptr // ID3D12CommandQueue, borrowed

	nextFenceValue uint64
}

// NewD3D12Backend builds a backend over the application's ID3D12Device and
// queue taken from its session graphics binding.
func NewD3D12Backend(device, queue uintptr) (Backend, error) {
	if device == 0 || queue == 0 {
		return nil, fmt.Errorf("d3d12 backend: nil device or queue")
	}
	return &d3d12Backend{device: device, queue: queue, nextFenceValue: 1}, nil
}

func (b *d3d12Backend) API() API { return APID3D12 }

// imageSync is the copy machinery for one swapchain image: a command
// allocator/list pair the copy is re-recorded into each frame, and a fence
// guarding reuse of the allocator while a previous copy is in flight.
type imageSync struct {
	image      uintptr // ID3D12Resource, borrowed
	allocator  uintptr // ID3D12CommandAllocator, owned
	list       uintptr // ID3D12GraphicsCommandList, owned
	fence      uintptr // ID3D12Fence, owned
	fenceValue uint64
	event      windows.Handle
}

func (b *d3d12Backend) NewSwapchainMirror(desc TextureDesc, images []uintptr) (SwapchainMirror, error) {
	m := &d3d12Mirror{backend: b, desc: desc}

	for _, img := range images {
		s := imageSync{image: img}

		ev, err := windows.CreateEvent(nil, 0, 0, nil)
		if err != nil {
			m.Release()
			return nil, fmt.Errorf("d3d12 mirror CreateEvent: %w", err)
		}
		s.event = ev

		if _, err := comCall(b.device, vtblD3D12DeviceCreateFence,
			0, d3d12FenceFlagNone,
			uintptr(unsafe.Pointer(&iidID3D12Fence)), uintptr(unsafe.Pointer(&s.fence))); err != nil {
			windows.CloseHandle(ev)
			m.Release()
			return nil, fmt.Errorf("d3d12 mirror CreateFence: %w", err)
		}
		if _, err := comCall(b.device, vtblD3D12DeviceCreateCommandAllocator,
			d3d12CommandListTypeDirect,
			uintptr(unsafe.Pointer(&iidID3D12CommandAllocator)), uintptr(unsafe.Pointer(&s.allocator))); err != nil {
			comRelease(s.fence)
			windows.CloseHandle(ev)
			m.Release()
			return nil, fmt.Errorf("d3d12 mirror CreateCommandAllocator: %w", err)
		}
		if _, err := comCall(b.device, vtblD3D12DeviceCreateCommandList,
			0, d3d12CommandListTypeDirect, s.allocator, 0,
			uintptr(unsafe.Pointer(&iidID3D12GraphicsCommandList)), uintptr(unsafe.Pointer(&s.list))); err != nil {
			comRelease(s.allocator)
			comRelease(s.fence)
			windows.CloseHandle(ev)
			m.Release()
			return nil, fmt.Errorf("d3d12 mirror CreateCommandList: %w", err)
		}
		// Lists are created open; park this one until its first copy.
		comCall(s.list, vtblD3D12ListClose)

		m.syncs = append(m.syncs, s)
	}

	if err := m.createClone(); err != nil {
		m.Release()
		return nil, err
	}
	return m, nil
}

func (b *d3d12Backend) Close() error {
	return nil
}

type d3d12Mirror struct {
	backend *d3d12Backend
	desc    TextureDesc
	clone   uintptr // ID3D12Resource, owned
	shared  windows.Handle
	syncs   []imageSync
}

func (m *d3d12Mirror) createClone() error {
	resDesc := d3d12ResourceDesc{
		Dimension:        d3d12ResourceDimensionTexture2D,
		Width:            uint64(m.desc.Width),
		Height:           m.desc.Height,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Format:           uint32(m.desc.Format),
		SampleCount:      1,
		Layout:           d3d12TextureLayoutUnknown,
		Flags:            d3d12ResourceFlagAllowRT | d3d12ResourceFlagSimultaneous,
	}
	heapProps := d3d12HeapProperties{Type: d3d12HeapTypeDefault}
	clearValue := d3d12ClearValue{Format: resDesc.Format}

	if _, err := comCall(m.backend.device, vtblD3D12DeviceCreateCommittedResource,
		uintptr(unsafe.Pointer(&heapProps)),
		d3d12HeapFlagShared,
		uintptr(unsafe.Pointer(&resDesc)),
		d3d12ResourceStateCommon,
		uintptr(unsafe.Pointer(&clearValue)),
		uintptr(unsafe.Pointer(&iidID3D12Resource)),
		uintptr(unsafe.Pointer(&m.clone))); err != nil {
		return fmt.Errorf("d3d12 clone %dx%d format %d: %w", m.desc.Width, m.desc.Height, m.desc.Format, err)
	}

	var shared windows.Handle
	if _, err := comCall(m.backend.device, vtblD3D12DeviceCreateSharedHandle,
		m.clone, 0, genericAll, 0, uintptr(unsafe.Pointer(&shared))); err != nil {
		return fmt.Errorf("d3d12 clone CreateSharedHandle: %w", err)
	}
	m.shared = shared
	return nil
}

func (m *d3d12Mirror) Handle() uint64    { return uint64(m.shared) }
func (m *d3d12Mirror) Desc() TextureDesc { return m.desc }

// CopyFrom waits out any in-flight copy on this image's allocator, records
// a fresh CopyResource into the clone, submits it on the application's
// queue, and fences the submission.
func (m *d3d12Mirror) CopyFrom(imageIndex int) error {
	if imageIndex < 0 || imageIndex >= len(m.syncs) {
		return fmt.Errorf("d3d12 copy: image index %d of %d", imageIndex, len(m.syncs))
	}
	if m.clone == 0 {
		return fmt.Errorf("d3d12 copy: mirror released")
	}
	s := &m.syncs[imageIndex]

	timedOut := waitForFence(s.fence, s.fenceValue, s.event)

	if _, err := comCall(s.allocator, vtblD3D12AllocatorReset); err != nil {
		return fmt.Errorf("d3d12 copy: allocator reset: %w", err)
	}
	if _, err := comCall(s.list, vtblD3D12ListReset, s.allocator, 0); err != nil {
		return fmt.Errorf("d3d12 copy: list reset: %w", err)
	}
	comCallNoHR(s.list, vtblD3D12ListCopyResource, m.clone, s.image)
	if _, err := comCall(s.list, vtblD3D12ListClose); err != nil {
		return fmt.Errorf("d3d12 copy: list close: %w", err)
	}

	lists := [1]uintptr{s.list}
	comCallNoHR(m.backend.queue, vtblD3D12QueueExecuteCommandLists, 1, uintptr(unsafe.Pointer(&lists[0])))

	value := m.backend.nextFenceValue
	m.backend.nextFenceValue++
	if _, err := comCall(m.backend.queue, vtblD3D12QueueSignal, s.fence, uintptr(value)); err != nil {
		return fmt.Errorf("d3d12 copy: queue signal: %w", err)
	}
	s.fenceValue = value

	if timedOut {
		return ErrFenceTimeout
	}
	return nil
}

func (m *d3d12Mirror) Release() {
	if m.shared != 0 {
		windows.CloseHandle(m.shared)
		m.shared = 0
	}
	comRelease(m.clone)
	m.clone = 0
	for i := range m.syncs {
		s := &m.syncs[i]
		comRelease(s.list)
		comRelease(s.allocator)
		comRelease(s.fence)
		if s.event != 0 {
			windows.CloseHandle(s.event)
		}
	}
	m.syncs = nil
}

// waitForFence blocks until the fence passes value, bounded at
// fenceWaitMillis. Reports whether the wait timed out.
func waitForFence(fence uintptr, value uint64, event windows.Handle) bool {
	completed := uint64(comCallNoHR(fence, vtblD3D12FenceGetCompletedValue))
	if completed >= value {
		return false
	}
	comCall(fence, vtblD3D12FenceSetEventOnCompletion, uintptr(value), uintptr(event))
	status, _ := windows.WaitForSingleObject(event, fenceWaitMillis)
	return status == uint32(windows.WAIT_TIMEOUT)
}
