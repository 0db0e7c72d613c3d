package server

import (
	"sync"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/session"
)

// KernelRegistry is the Registry implementation cmd/rangingd wires into
// New. It tracks every live session.Kernel the daemon owns — one per
// Initiator.Run/Responder.Serve call — keyed by an opaque name, and
// answers introspection queries by fanning out to each kernel's
// Snapshot(), ported from bfd.Manager's role as the single source of
// truth behind its own Sessions()/LookupByPeer.
type KernelRegistry struct {
	mu      sync.RWMutex
	kernels map[string]*session.Kernel
}

// NewKernelRegistry constructs an empty KernelRegistry.
func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{kernels: make(map[string]*session.Kernel)}
}

// Put registers or replaces the kernel tracked under name.
func (r *KernelRegistry) Put(name string, k *session.Kernel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kernels[name] = k
}

// Remove stops tracking the kernel registered under name. It does not
// stop the kernel itself; callers must Stop it separately.
func (r *KernelRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kernels, name)
}

// Sessions implements Registry.
func (r *KernelRegistry) Sessions() []SessionSnapshot {
	r.mu.RLock()
	kernels := make([]*session.Kernel, 0, len(r.kernels))
	for _, k := range r.kernels {
		kernels = append(kernels, k)
	}
	r.mu.RUnlock()

	var snaps []SessionSnapshot
	for _, k := range kernels {
		snaps = append(snaps, snapshotsFromKernel(k)...)
	}
	return snaps
}

// Session implements Registry.
func (r *KernelRegistry) Session(peer model.RangingDevice) (SessionSnapshot, bool) {
	r.mu.RLock()
	kernels := make([]*session.Kernel, 0, len(r.kernels))
	for _, k := range r.kernels {
		kernels = append(kernels, k)
	}
	r.mu.RUnlock()

	for _, k := range kernels {
		for _, snap := range snapshotsFromKernel(k) {
			if snap.Peer == peer {
				return snap, true
			}
		}
	}
	return SessionSnapshot{}, false
}

// snapshotsFromKernel translates one kernel's Snapshot() into the
// introspection API's SessionSnapshot shape.
func snapshotsFromKernel(k *session.Kernel) []SessionSnapshot {
	state, peers := k.Snapshot()

	snaps := make([]SessionSnapshot, 0, len(peers))
	for _, p := range peers {
		techs := make([]string, 0, len(p.Technologies))
		for _, t := range p.Technologies {
			techs = append(techs, t.String())
		}
		snaps = append(snaps, SessionSnapshot{
			Peer:         p.Peer,
			State:        state.String(),
			Technologies: techs,
		})
	}
	return snaps
}

var _ Registry = (*KernelRegistry)(nil)
