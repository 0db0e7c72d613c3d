package wire

import (
	"fmt"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// techSetMessageSize is the wire size of any message whose body is a single
// 16-bit technology-set bitmap: header + bitmapWidth16.
const techSetMessageSize = HeaderSize + bitmapWidth16

func marshalTechSetMessage(msgType MessageType, set tech.Set) []byte {
	buf := make([]byte, techSetMessageSize)
	_ = Header{MessageType: msgType, Version: ProtocolVersion}.Marshal(buf)
	putTechSet16(buf[HeaderSize:techSetMessageSize], set)
	return buf
}

func unmarshalTechSetMessage(buf []byte, want MessageType) (tech.Set, error) {
	if len(buf) < techSetMessageSize {
		return 0, fmt.Errorf("%s: need %d bytes, got %d: %w",
			want, techSetMessageSize, len(buf), model.ErrMalformedMessage)
	}
	hdr, err := UnmarshalHeader(buf)
	if err != nil {
		return 0, err
	}
	if hdr.MessageType != want {
		return 0, fmt.Errorf("%s: unexpected message type %s: %w", want, hdr.MessageType, model.ErrMalformedMessage)
	}
	return techSet16(buf[HeaderSize:techSetMessageSize]), nil
}

// -------------------------------------------------------------------------
// StopRangingMessage
// -------------------------------------------------------------------------

// StopRangingMessage tells a peer to stop ranging on the named technologies
// (spec section 4.1, section 6).
type StopRangingMessage struct {
	TechnologiesToStop tech.Set
}

// Marshal encodes the message into a freshly allocated buffer.
func (m StopRangingMessage) Marshal() []byte {
	return marshalTechSetMessage(StopRanging, m.TechnologiesToStop)
}

// UnmarshalStopRanging decodes a StopRangingMessage.
func UnmarshalStopRanging(buf []byte) (StopRangingMessage, error) {
	set, err := unmarshalTechSetMessage(buf, StopRanging)
	if err != nil {
		return StopRangingMessage{}, err
	}
	return StopRangingMessage{TechnologiesToStop: set}, nil
}

// -------------------------------------------------------------------------
// StartRangingMessage
// -------------------------------------------------------------------------

// StartRangingMessage tells a peer to start ranging on technologies it has
// already been configured for. The initiator/responder driver in this
// implementation folds start-on-configure into SetConfigurationMessage's
// StartRangingList instead of emitting this message separately; it is
// implemented here for wire-format completeness and for callers that do
// need to start a previously-configured-but-not-started technology later.
type StartRangingMessage struct {
	TechnologiesToStart tech.Set
}

// Marshal encodes the message into a freshly allocated buffer.
func (m StartRangingMessage) Marshal() []byte {
	return marshalTechSetMessage(StartRanging, m.TechnologiesToStart)
}

// UnmarshalStartRanging decodes a StartRangingMessage.
func UnmarshalStartRanging(buf []byte) (StartRangingMessage, error) {
	set, err := unmarshalTechSetMessage(buf, StartRanging)
	if err != nil {
		return StartRangingMessage{}, err
	}
	return StartRangingMessage{TechnologiesToStart: set}, nil
}

// -------------------------------------------------------------------------
// StatusResponseMessage
// -------------------------------------------------------------------------

// StatusResponseSize is the total wire size of a StatusResponseMessage: a
// 2-byte header plus a 1-byte technology bitmap, mirroring
// CapabilityRequestMessage's narrower bitmap (spec section 6).
const StatusResponseSize = HeaderSize + 1

// StatusResponseMessage reports, per technology, whether the preceding
// SetConfiguration/StartRanging/StopRanging request succeeded. Bit i of the
// bitmap is set when technology i's request succeeded.
type StatusResponseMessage struct {
	Succeeded tech.Set
}

// statusResponseType is not part of the section 6 MessageType enum (which
// lists only the five request/config types); it occupies byte value 6, the
// next free slot, since a status response is itself a distinct message on
// the wire.
const statusResponseType MessageType = 6

// Marshal encodes the message into a freshly allocated buffer.
func (m StatusResponseMessage) Marshal() []byte {
	buf := make([]byte, StatusResponseSize)
	_ = Header{MessageType: statusResponseType, Version: ProtocolVersion}.Marshal(buf)
	buf[HeaderSize] = tech.ToBitmap(m.Succeeded, 1)[0]
	return buf
}

// UnmarshalStatusResponse decodes a StatusResponseMessage.
func UnmarshalStatusResponse(buf []byte) (StatusResponseMessage, error) {
	if len(buf) < StatusResponseSize {
		return StatusResponseMessage{}, fmt.Errorf(
			"status response: need %d bytes, got %d: %w", StatusResponseSize, len(buf), model.ErrMalformedMessage)
	}
	hdr, err := UnmarshalHeader(buf)
	if err != nil {
		return StatusResponseMessage{}, err
	}
	if hdr.MessageType != statusResponseType {
		return StatusResponseMessage{}, fmt.Errorf(
			"status response: unexpected message type %s: %w", hdr.MessageType, model.ErrMalformedMessage)
	}
	return StatusResponseMessage{Succeeded: tech.ParseBitmap(buf[HeaderSize:StatusResponseSize])}, nil
}
