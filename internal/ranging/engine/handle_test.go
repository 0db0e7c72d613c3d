package engine_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/engine"
)

func TestHandleAllocatorReturnsUniqueNonzeroHandles(t *testing.T) {
	t.Parallel()

	a := engine.NewHandleAllocator()
	seen := make(map[uint32]bool)
	for i := 0; i < 64; i++ {
		h, err := a.Allocate()
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		if h == 0 {
			t.Fatal("Allocate returned zero")
		}
		if seen[h] {
			t.Fatalf("Allocate returned duplicate handle %d", h)
		}
		seen[h] = true
		if !a.IsAllocated(h) {
			t.Fatalf("IsAllocated(%d) = false right after Allocate", h)
		}
	}
}

func TestHandleAllocatorReleaseFreesForReuse(t *testing.T) {
	t.Parallel()

	a := engine.NewHandleAllocator()
	h, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	a.Release(h)
	if a.IsAllocated(h) {
		t.Fatal("IsAllocated true after Release")
	}
	// releasing twice is a no-op, not an error
	a.Release(h)
}
