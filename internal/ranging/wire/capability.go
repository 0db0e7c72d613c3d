package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// -------------------------------------------------------------------------
// CapabilityRequestMessage
// -------------------------------------------------------------------------

// CapabilityRequestMessage asks a peer which of the requested technologies
// it supports (spec section 4.1, section 6). Like StatusResponseMessage,
// and unlike the other messages in this protocol, its technology set is a
// single byte, not the usual 16-bit bitmap.
type CapabilityRequestMessage struct {
	Requested tech.Set
}

// CapabilityRequestSize is the total wire size of a CapabilityRequestMessage:
// a 2-byte header plus a 1-byte technology bitmap.
const CapabilityRequestSize = HeaderSize + 1

// Marshal encodes the message into a freshly allocated buffer.
func (m CapabilityRequestMessage) Marshal() []byte {
	buf := make([]byte, CapabilityRequestSize)
	_ = Header{MessageType: CapabilityRequest, Version: ProtocolVersion}.Marshal(buf)
	buf[HeaderSize] = tech.ToBitmap(m.Requested, 1)[0]
	return buf
}

// UnmarshalCapabilityRequest decodes a CapabilityRequestMessage.
func UnmarshalCapabilityRequest(buf []byte) (CapabilityRequestMessage, error) {
	if len(buf) < CapabilityRequestSize {
		return CapabilityRequestMessage{}, fmt.Errorf(
			"capability request: need %d bytes, got %d: %w",
			CapabilityRequestSize, len(buf), model.ErrMalformedMessage)
	}
	hdr, err := UnmarshalHeader(buf)
	if err != nil {
		return CapabilityRequestMessage{}, err
	}
	if hdr.MessageType != CapabilityRequest {
		return CapabilityRequestMessage{}, fmt.Errorf(
			"capability request: unexpected message type %s: %w", hdr.MessageType, model.ErrMalformedMessage)
	}
	return CapabilityRequestMessage{Requested: tech.ParseBitmap(buf[HeaderSize:CapabilityRequestSize])}, nil
}

// -------------------------------------------------------------------------
// Per-technology capability payloads
// -------------------------------------------------------------------------

// UwbCapabilityBodySize is the size, in bytes, of the UWB capability payload
// body that follows its TechnologyHeader.
const UwbCapabilityBodySize = 18

// UwbCapability is the wire-codec alias for model.UwbCapability, the shared
// domain representation (spec section 4.2, section 6).
type UwbCapability = model.UwbCapability

func marshalUwbCapabilityBody(c UwbCapability, buf []byte) {
	buf[0], buf[1] = c.Address[0], c.Address[1]
	copy(buf[2:6], encodeShiftedBitmap(c.SupportedChannels, 4, 0))
	copy(buf[6:10], encodeShiftedBitmap(c.SupportedPreambleIndexes, 4, 1))
	configIDs := make([]uint8, len(c.SupportedConfigIDs))
	for i, id := range c.SupportedConfigIDs {
		configIDs[i] = uint8(id)
	}
	copy(buf[10:14], encodeShiftedBitmap(configIDs, 4, 0))
	binary.BigEndian.PutUint16(buf[14:16], c.MinimumRangingIntervalMs)
	buf[16] = c.MinimumSlotDurationMs
	roles := make([]uint8, len(c.SupportedDeviceRoles))
	for i, r := range c.SupportedDeviceRoles {
		roles[i] = uint8(r)
	}
	copy(buf[17:18], encodeShiftedBitmap(roles, 1, 1))
}

func unmarshalUwbCapabilityBody(buf []byte) (UwbCapability, error) {
	if len(buf) < UwbCapabilityBodySize {
		return UwbCapability{}, fmt.Errorf("uwb capability: need %d bytes, got %d: %w",
			UwbCapabilityBodySize, len(buf), model.ErrMalformedMessage)
	}
	var c UwbCapability
	c.Address = model.UwbAddress{buf[0], buf[1]}
	c.SupportedChannels = decodeShiftedBitmap(buf[2:6], 0)
	c.SupportedPreambleIndexes = decodeShiftedBitmap(buf[6:10], 1)
	for _, id := range decodeShiftedBitmap(buf[10:14], 0) {
		c.SupportedConfigIDs = append(c.SupportedConfigIDs, model.UwbConfigID(id))
	}
	c.MinimumRangingIntervalMs = binary.BigEndian.Uint16(buf[14:16])
	c.MinimumSlotDurationMs = buf[16]
	for _, r := range decodeShiftedBitmap(buf[17:18], 1) {
		c.SupportedDeviceRoles = append(c.SupportedDeviceRoles, model.DeviceRole(r))
	}
	return c, nil
}

// RttCapabilityBodySize is the size, in bytes, of the RTT capability
// payload body that follows its TechnologyHeader.
const RttCapabilityBodySize = 4

// RttCapability is the wire-codec alias for model.RttCapability, the
// shared domain representation (spec section 4.2, section 6).
type RttCapability = model.RttCapability

func marshalRttCapabilityBody(c RttCapability, buf []byte) {
	buf[0] = c.Features
	if c.PeriodicRangingSupport {
		buf[1] = 1
	}
	buf[2] = c.MaxBandwidth
	buf[3] = c.MaxRxChain
}

func unmarshalRttCapabilityBody(buf []byte) (RttCapability, error) {
	if len(buf) < RttCapabilityBodySize {
		return RttCapability{}, fmt.Errorf("rtt capability: need %d bytes, got %d: %w",
			RttCapabilityBodySize, len(buf), model.ErrMalformedMessage)
	}
	return RttCapability{
		Features:               buf[0],
		PeriodicRangingSupport: buf[1] != 0,
		MaxBandwidth:           buf[2],
		MaxRxChain:             buf[3],
	}, nil
}

// -------------------------------------------------------------------------
// CapabilityResponseMessage
// -------------------------------------------------------------------------

// CapabilityResponseMessage answers a CapabilityRequestMessage: which
// technologies are supported, in what priority order, and the detailed
// per-technology capability payload for each (spec section 4.1, section 6).
type CapabilityResponseMessage struct {
	Supported      tech.Set
	PriorityOrder  []tech.Technology
	UWB            *UwbCapability
	RTT            *RttCapability
	// CS and BLE-RSSI carry no detailed capability payload beyond presence
	// in Supported (spec section 4.2: capability is a boolean for these).
}

// Marshal encodes the message into a freshly allocated buffer.
func (m CapabilityResponseMessage) Marshal() []byte {
	size := HeaderSize + bitmapWidth16 + 1 + len(m.PriorityOrder)
	if m.UWB != nil {
		size += TechnologyHeaderSize + UwbCapabilityBodySize
	}
	if m.RTT != nil {
		size += TechnologyHeaderSize + RttCapabilityBodySize
	}
	buf := make([]byte, size)
	_ = Header{MessageType: CapabilityResponse, Version: ProtocolVersion}.Marshal(buf)
	off := HeaderSize
	putTechSet16(buf[off:off+bitmapWidth16], m.Supported)
	off += bitmapWidth16
	buf[off] = uint8(len(m.PriorityOrder))
	off++
	for _, t := range m.PriorityOrder {
		buf[off] = tech.ToBit(t)
		off++
	}
	if m.UWB != nil {
		_ = TechnologyHeader{Technology: tech.UWB, Size: UwbCapabilityBodySize}.Marshal(buf[off:])
		off += TechnologyHeaderSize
		marshalUwbCapabilityBody(*m.UWB, buf[off:off+UwbCapabilityBodySize])
		off += UwbCapabilityBodySize
	}
	if m.RTT != nil {
		_ = TechnologyHeader{Technology: tech.RTT, Size: RttCapabilityBodySize}.Marshal(buf[off:])
		off += TechnologyHeaderSize
		marshalRttCapabilityBody(*m.RTT, buf[off:off+RttCapabilityBodySize])
		off += RttCapabilityBodySize
	}
	return buf
}

// UnmarshalCapabilityResponse decodes a CapabilityResponseMessage,
// including any embedded UWB/RTT capability payloads indicated by
// Supported.
func UnmarshalCapabilityResponse(buf []byte) (CapabilityResponseMessage, error) {
	minSize := HeaderSize + bitmapWidth16 + 1
	if len(buf) < minSize {
		return CapabilityResponseMessage{}, fmt.Errorf(
			"capability response: need at least %d bytes, got %d: %w",
			minSize, len(buf), model.ErrMalformedMessage)
	}
	hdr, err := UnmarshalHeader(buf)
	if err != nil {
		return CapabilityResponseMessage{}, err
	}
	if hdr.MessageType != CapabilityResponse {
		return CapabilityResponseMessage{}, fmt.Errorf(
			"capability response: unexpected message type %s: %w", hdr.MessageType, model.ErrMalformedMessage)
	}
	var m CapabilityResponseMessage
	off := HeaderSize
	m.Supported = techSet16(buf[off : off+bitmapWidth16])
	off += bitmapWidth16
	count := int(buf[off])
	off++
	if off+count > len(buf) {
		return CapabilityResponseMessage{}, fmt.Errorf(
			"capability response: priority list of %d exceeds remaining %d: %w",
			count, len(buf)-off, model.ErrMalformedMessage)
	}
	for i := 0; i < count; i++ {
		t, ok := tech.FromBit(buf[off])
		if !ok {
			return CapabilityResponseMessage{}, fmt.Errorf(
				"capability response: unknown technology id %d in priority list: %w",
				buf[off], model.ErrMalformedMessage)
		}
		m.PriorityOrder = append(m.PriorityOrder, t)
		off++
	}
	for off < len(buf) {
		if off+TechnologyHeaderSize > len(buf) {
			return CapabilityResponseMessage{}, fmt.Errorf(
				"capability response: truncated technology header at offset %d: %w", off, model.ErrMalformedMessage)
		}
		t, ok := tech.FromBit(buf[off])
		if !ok {
			return CapabilityResponseMessage{}, fmt.Errorf(
				"capability response: unknown embedded technology id %d: %w", buf[off], model.ErrMalformedMessage)
		}
		switch t {
		case tech.UWB:
			thdr, err := UnmarshalTechnologyHeader(buf[off:], tech.UWB)
			if err != nil {
				return CapabilityResponseMessage{}, err
			}
			off += TechnologyHeaderSize
			cap, err := unmarshalUwbCapabilityBody(buf[off : off+int(thdr.Size)])
			if err != nil {
				return CapabilityResponseMessage{}, err
			}
			m.UWB = &cap
			off += int(thdr.Size)
		case tech.RTT:
			thdr, err := UnmarshalTechnologyHeader(buf[off:], tech.RTT)
			if err != nil {
				return CapabilityResponseMessage{}, err
			}
			off += TechnologyHeaderSize
			cap, err := unmarshalRttCapabilityBody(buf[off : off+int(thdr.Size)])
			if err != nil {
				return CapabilityResponseMessage{}, err
			}
			m.RTT = &cap
			off += int(thdr.Size)
		default:
			return CapabilityResponseMessage{}, fmt.Errorf(
				"capability response: no embedded payload defined for technology %s: %w", t, model.ErrMalformedMessage)
		}
	}
	return m, nil
}
