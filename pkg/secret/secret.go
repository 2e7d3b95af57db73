// Package secret holds password material for the short window between a
// login request and the session launch.
//
// Buffer keeps the bytes in an anonymous mapping outside the Go heap, locked
// against swap and excluded from core dumps. Scrub zeroes caller-owned slices
// once their contents have been handed over.
package secret

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned when reading a buffer after Close.
var ErrClosed = errors.New("secret: buffer closed")

// Scrub overwrites b with zeros.
func Scrub(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Buffer is a locked, non-dumpable region holding one secret.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	closed bool
}

// NewFromBytes copies src into a new Buffer and scrubs src.
func NewFromBytes(src []byte) (*Buffer, error) {
	if len(src) == 0 {
		return nil, errors.New("secret: empty source")
	}
	defer Scrub(src)

	data, err := unix.Mmap(-1, 0, len(src), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap: %w", err)
	}
	if err := unix.Mlock(data); err != nil {
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: mlock: %w", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(data)
		unix.Munmap(data)
		return nil, fmt.Errorf("secret: madvise: %w", err)
	}

	copy(data, src)
	return &Buffer{data: data}, nil
}

// Bytes returns the secret. The slice aliases the locked region and must
// not be retained past Close.
func (b *Buffer) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.data, nil
}

// Len returns the secret length, or 0 after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	return len(b.data)
}

// Close zeroes and releases the region. It is safe to call more than once.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	Scrub(b.data)

	var firstErr error
	if err := unix.Munlock(b.data); err != nil {
		firstErr = fmt.Errorf("secret: munlock: %w", err)
	}
	if err := unix.Munmap(b.data); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("secret: munmap: %w", err)
	}
	b.data = nil
	return firstErr
}
