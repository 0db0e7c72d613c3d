package model

import "errors"

// Sentinel errors shared by every ranging-core package that builds or
// validates model values.
var (
	// ErrInvalidNotificationBand indicates NearCm > FarCm for a proximity
	// notification kind.
	ErrInvalidNotificationBand = errors.New("notification band: near_cm must be <= far_cm")

	// ErrMalformedMessage indicates a wire-format OOB message failed a
	// length or tag-discipline check (spec section 4.1).
	ErrMalformedMessage = errors.New("malformed OOB message")

	// ErrBufTooSmall indicates a serialize destination buffer was smaller
	// than the encoded message.
	ErrBufTooSmall = errors.New("buffer too small")
)
