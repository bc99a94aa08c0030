//go:build windows

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// Exclusive opens path and applies a blocking exclusive lock, returning a
// pseudo file descriptor (the *os.File is stashed so Release can find it
// again); Windows has no small-integer fd the way POSIX does, so the
// returned int is an index into an internal table.
func Exclusive(path string) (fd int, err error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return -1, err
	}
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, ol); err != nil {
		f.Close()
		return -1, err
	}
	return register(f), nil
}

// TryExclusive applies a non-blocking exclusive lock on path.
func TryExclusive(path string) (fd int, acquired bool, err error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return -1, false, err
	}
	ol := new(windows.Overlapped)
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY)
	if err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, 1, 0, ol); err != nil {
		f.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return -1, false, nil
		}
		return -1, false, err
	}
	return register(f), true, nil
}

// Shared opens path and applies a blocking shared (read) lock.
func Shared(path string) (fd int, err error) {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return -1, err
	}
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(windows.Handle(f.Fd()), 0, 0, 1, 0, ol); err != nil {
		f.Close()
		return -1, err
	}
	return register(f), nil
}

// Release unlocks and closes the file associated with fd.
func Release(fd int) error {
	f := unregister(fd)
	if f == nil {
		return nil
	}
	defer f.Close()
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, ol)
}

var (
	handles   []*os.File
	freeSlots []int
)

func register(f *os.File) int {
	if n := len(freeSlots); n > 0 {
		idx := freeSlots[n-1]
		freeSlots = freeSlots[:n-1]
		handles[idx] = f
		return idx
	}
	handles = append(handles, f)
	return len(handles) - 1
}

func unregister(fd int) *os.File {
	if fd < 0 || fd >= len(handles) {
		return nil
	}
	f := handles[fd]
	handles[fd] = nil
	freeSlots = append(freeSlots, fd)
	return f
}
