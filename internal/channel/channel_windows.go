//go:build windows

package channel

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modKernel32          = syscall.NewLazyDLL("kernel32.dll")
	procOpenFileMappingW = modKernel32.NewProc("OpenFileMappingW")
)

// Create creates (or opens, if another producer instance raced us) the
// named mapping and returns the producer side. The view is zeroed by the
// kernel on first creation, so a fresh channel starts with no published
// handles and both counters at zero.
func Create(name string) (*Producer, error) {
	if name == "" {
		name = DefaultName
	}
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("mapping name %q: %w", name, err)
	}
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil,
		windows.PAGE_READWRITE, 0, BlockSize, namep)
	if h == 0 {
		return nil, fmt.Errorf("CreateFileMapping %q: %w", name, err)
	}
	// err may be ERROR_ALREADY_EXISTS with a valid handle; reusing the
	// existing block is the intended behavior.
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE,
		0, 0, BlockSize)
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("MapViewOfFile %q: %w", name, err)
	}
	block := blockAt(unsafe.Pointer(addr))
	closeFn := func() error {
		uerr := windows.UnmapViewOfFile(addr)
		cerr := windows.CloseHandle(h)
		if uerr != nil {
			return fmt.Errorf("UnmapViewOfFile %q: %w", name, uerr)
		}
		return cerr
	}
	return newProducer(name, block, closeFn), nil
}

// Open attaches to an existing named mapping as a consumer. It fails when
// no producer has created the channel yet.
func Open(name string) (*Consumer, error) {
	if name == "" {
		name = DefaultName
	}
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("mapping name %q: %w", name, err)
	}
	r, _, callErr := procOpenFileMappingW.Call(
		uintptr(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE),
		0,
		uintptr(unsafe.Pointer(namep)))
	if r == 0 {
		return nil, fmt.Errorf("OpenFileMapping %q: %w", name, callErr)
	}
	h := windows.Handle(r)
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE,
		0, 0, BlockSize)
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("MapViewOfFile %q: %w", name, err)
	}
	block := blockAt(unsafe.Pointer(addr))
	closeFn := func() error {
		uerr := windows.UnmapViewOfFile(addr)
		cerr := windows.CloseHandle(h)
		if uerr != nil {
			return fmt.Errorf("UnmapViewOfFile %q: %w", name, uerr)
		}
		return cerr
	}
	return newConsumer(name, block, closeFn), nil
}
