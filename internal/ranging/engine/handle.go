package engine

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// maxAllocAttempts bounds the number of random draws before giving up. With
// a 32-bit space and the handful of adapters/OOB connections any one
// session ever holds, collisions are effectively impossible; the limit is
// a safety net against a degenerate RNG, not a realistic exhaustion path.
const maxAllocAttempts = 100

// ErrHandleExhausted indicates a HandleAllocator could not produce a
// unique nonzero handle after maxAllocAttempts tries.
var ErrHandleExhausted = errors.New("engine: handle allocator exhausted")

// HandleAllocator hands out unique, nonzero, random local identifiers for
// Adapter instances within a single process. Unlike BFD's wire
// discriminator this value never leaves the process — the session kernel
// stores it in each adapter-table entry (the table itself is keyed by
// TechnologyConfigKey) and releases it when the adapter closes.
type HandleAllocator struct {
	mu        sync.Mutex
	allocated map[uint32]struct{}
}

// NewHandleAllocator returns an allocator with no handles allocated.
func NewHandleAllocator() *HandleAllocator {
	return &HandleAllocator{allocated: make(map[uint32]struct{})}
}

// Allocate returns a unique, nonzero handle.
func (a *HandleAllocator) Allocate() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var buf [4]byte
	for range maxAllocAttempts {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("generate random handle: %w", err)
		}
		h := binary.BigEndian.Uint32(buf[:])
		if h == 0 {
			continue
		}
		if _, exists := a.allocated[h]; exists {
			continue
		}
		a.allocated[h] = struct{}{}
		return h, nil
	}
	return 0, fmt.Errorf("allocate handle after %d attempts: %w", maxAllocAttempts, ErrHandleExhausted)
}

// Release returns handle to the free pool. Releasing an unallocated handle
// is a no-op.
func (a *HandleAllocator) Release(handle uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.allocated, handle)
}

// IsAllocated reports whether handle is currently held.
func (a *HandleAllocator) IsAllocated(handle uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.allocated[handle]
	return exists
}
