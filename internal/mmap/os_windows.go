//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMap(f Handle, size int) ([]byte, func([]byte) error, func([]byte) error, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE, 0, uint32(size), nil)
	if err != nil {
		return nil, nil, nil, err
	}
	// The view keeps its own reference to the mapping object.
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	flush := func(b []byte) error {
		return windows.FlushViewOfFile(addr, uintptr(len(b)))
	}
	unmap := func([]byte) error {
		return windows.UnmapViewOfFile(addr)
	}

	return data, flush, unmap, nil
}

func osAdvise([]byte, AccessPattern) error {
	return nil
}
