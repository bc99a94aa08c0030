//go:build !windows

// Package lock provides the advisory file-locking primitive the CAS
// materializer and binding runner use to serialize concurrent scie
// invocations that race to populate the same content-addressed entry. It is
// a direct adaptation of apptainer's pkg/util/fs/lock, which uses the same
// flock(2)-based cooperative lock for its own cache extraction.
package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Exclusive opens path and applies a blocking exclusive lock, returning the
// open file descriptor. The caller must Release it when done.
func Exclusive(path string) (fd int, err error) {
	fd, err = unix.Open(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fd, err
	}
	if err = unix.Flock(fd, unix.LOCK_EX); err != nil {
		unix.Close(fd)
		return fd, err
	}
	return fd, nil
}

// TryExclusive applies a non-blocking exclusive lock on path. acquired is
// false (with a nil error) when another process currently holds the lock.
func TryExclusive(path string) (fd int, acquired bool, err error) {
	fd, err = unix.Open(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fd, false, err
	}
	err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return fd, false, nil
		}
		return fd, false, err
	}
	return fd, true, nil
}

// Shared opens path and applies a blocking shared (read) lock.
func Shared(path string) (fd int, err error) {
	fd, err = unix.Open(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fd, err
	}
	if err = unix.Flock(fd, unix.LOCK_SH); err != nil {
		unix.Close(fd)
		return fd, err
	}
	return fd, nil
}

// Release unlocks and closes fd. The underlying flock is released by the OS
// automatically on process death, so an interrupted materializer simply
// fails to set its completion marker and the next invocation retries.
func Release(fd int) error {
	defer unix.Close(fd)
	return unix.Flock(fd, unix.LOCK_UN)
}
