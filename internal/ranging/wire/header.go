// Package wire implements the OOB configuration protocol's binary codecs
// (spec section 4.1, section 6). Every function here is pure: no I/O, no
// allocation beyond the output buffer or the parsed struct. All multi-byte
// integers are big-endian unless stated otherwise.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// MessageType identifies the kind of OOB message (spec section 6). Values
// are fixed across the protocol.
type MessageType uint8

const (
	CapabilityRequest  MessageType = 1
	CapabilityResponse MessageType = 2
	SetConfiguration   MessageType = 3
	StartRanging       MessageType = 4
	StopRanging        MessageType = 5
)

// String returns the human-readable message type name.
func (m MessageType) String() string {
	switch m {
	case CapabilityRequest:
		return "CapabilityRequest"
	case CapabilityResponse:
		return "CapabilityResponse"
	case SetConfiguration:
		return "SetConfiguration"
	case StartRanging:
		return "StartRanging"
	case StopRanging:
		return "StopRanging"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(m))
	}
}

// ProtocolVersion is the only OOB protocol version this codec emits and
// accepts.
const ProtocolVersion uint8 = 1

// HeaderSize is the fixed 2-byte envelope every OOB message begins with
// (spec section 3, section 6).
const HeaderSize = 2

// Header is the 2-byte envelope prefixing every OOB message.
type Header struct {
	MessageType MessageType
	Version     uint8
}

// Marshal writes the header into buf[0:2]. buf must have length >= 2.
func (h Header) Marshal(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("marshal header: %w", model.ErrBufTooSmall)
	}
	buf[0] = uint8(h.MessageType)
	buf[1] = h.Version
	return nil
}

// UnmarshalHeader decodes the 2-byte envelope from buf.
func UnmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("unmarshal header: need %d bytes, got %d: %w",
			HeaderSize, len(buf), model.ErrMalformedMessage)
	}
	return Header{MessageType: MessageType(buf[0]), Version: buf[1]}, nil
}

// -------------------------------------------------------------------------
// TechnologyHeader — per-technology payload framing (spec section 3, 6)
// -------------------------------------------------------------------------

// TechnologyHeaderSize is the fixed size of a TechnologyHeader.
const TechnologyHeaderSize = 2

// TechnologyHeader introduces every technology-scoped payload embedded in
// a CapabilityResponseMessage or SetConfigurationMessage. Size is the
// length of the payload that follows the header (not including the header
// itself).
type TechnologyHeader struct {
	Technology tech.Technology
	Size       uint8
}

// Marshal writes the technology header into buf[0:2].
func (h TechnologyHeader) Marshal(buf []byte) error {
	if len(buf) < TechnologyHeaderSize {
		return fmt.Errorf("marshal technology header: %w", model.ErrBufTooSmall)
	}
	buf[0] = tech.ToBit(h.Technology)
	buf[1] = h.Size
	return nil
}

// UnmarshalTechnologyHeader decodes a TechnologyHeader from buf and
// validates that it matches expectedTech (spec section 6 "parsers reject
// payloads ... whose technology field does not match the expected
// technology").
func UnmarshalTechnologyHeader(buf []byte, expectedTech tech.Technology) (TechnologyHeader, error) {
	if len(buf) < TechnologyHeaderSize {
		return TechnologyHeader{}, fmt.Errorf("unmarshal technology header: need %d bytes, got %d: %w",
			TechnologyHeaderSize, len(buf), model.ErrMalformedMessage)
	}
	t, ok := tech.FromBit(buf[0])
	if !ok {
		return TechnologyHeader{}, fmt.Errorf("unmarshal technology header: unknown technology id %d: %w",
			buf[0], model.ErrMalformedMessage)
	}
	if t != expectedTech {
		return TechnologyHeader{}, fmt.Errorf("unmarshal technology header: expected %s, got %s: %w",
			expectedTech, t, model.ErrMalformedMessage)
	}
	h := TechnologyHeader{Technology: t, Size: buf[1]}
	if TechnologyHeaderSize+int(h.Size) > len(buf) {
		return TechnologyHeader{}, fmt.Errorf(
			"unmarshal technology header: declared size %d exceeds remaining %d: %w",
			h.Size, len(buf)-TechnologyHeaderSize, model.ErrMalformedMessage)
	}
	return h, nil
}

// -------------------------------------------------------------------------
// 16-bit technology-set bitmaps
// -------------------------------------------------------------------------

// bitmapWidth16 is the width, in bytes, of the 16-bit on-wire technology
// bitmap used in CapabilityResponseMessage, SetConfigurationMessage and
// StopRangingMessage (spec section 3: "a 16-bit on-wire bitmap is used
// for sets"). CapabilityRequestMessage is the documented exception and
// uses a 1-byte bitmap instead (see capability.go).
const bitmapWidth16 = 2

func putTechSet16(buf []byte, s tech.Set) {
	binary.BigEndian.PutUint16(buf, uint16(s))
}

func techSet16(buf []byte) tech.Set {
	return tech.Set(binary.BigEndian.Uint16(buf))
}
