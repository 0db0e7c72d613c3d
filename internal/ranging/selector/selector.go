// Package selector implements the per-technology configuration selectors
// (spec section 4.6): given local capabilities, a user-supplied session
// config, and the capability reports of each peer a session wants to range
// with, a selector narrows the intersection down to concrete wire
// parameters or fails deterministically with a reason code.
package selector

import (
	"fmt"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// Selector is the uniform contract every per-technology selector
// implements (spec section 4.6). A Selector is constructed already bound
// to one technology's local capabilities and session config; construction
// itself fails with a *SelectionError carrying ReasonUnsupported when
// local capabilities cannot satisfy the user configuration.
type Selector interface {
	// AddPeerCapabilities intersects peer's capability report into this
	// selector's running parameter sets. A peer that cannot be
	// accommodated is rejected with a *SelectionError carrying
	// ReasonPeerCapabilitiesMismatch without disturbing previously
	// accepted peers or the running intersection.
	AddPeerCapabilities(peer model.RangingDevice, caps model.LocalCapabilities) error

	// HasPeersToConfigure reports whether any peer has been accepted.
	HasPeersToConfigure() bool

	// Select finalizes the negotiation, returning one TechnologyConfig per
	// accepted peer (all sharing the same negotiated technology-level
	// parameters; spec section 4.6 "peer OOB configs all carry the same
	// ... config payload"), or a *SelectionError.
	Select() ([]model.TechnologyConfig, error)
}

// SelectionError is the "ConfigSelectionException with an internal reason
// code" spec section 4.6 describes. Technology identifies which selector
// failed; Reason is one of model.ReasonUnsupported,
// model.ReasonPeerCapabilitiesMismatch or model.ReasonNoPeersFound.
type SelectionError struct {
	Technology tech.Technology
	Reason     model.Reason
	Detail     string
}

func (e *SelectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s selector: %s", e.Technology, e.Reason)
	}
	return fmt.Sprintf("%s selector: %s: %s", e.Technology, e.Reason, e.Detail)
}

func unsupported(t tech.Technology, detail string) *SelectionError {
	return &SelectionError{Technology: t, Reason: model.ReasonUnsupported, Detail: detail}
}

func mismatch(t tech.Technology, detail string) *SelectionError {
	return &SelectionError{Technology: t, Reason: model.ReasonPeerCapabilitiesMismatch, Detail: detail}
}
