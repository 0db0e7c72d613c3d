package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// -------------------------------------------------------------------------
// UWB config payload (spec section 6: "min 19 bytes + session_key_len",
// counting the 2-byte TechnologyHeader toward that minimum)
// -------------------------------------------------------------------------

// uwbConfigFixedSize is the size of the UWB config payload body up to and
// including session_key_length, before the variable-length session key and
// the fields that follow it.
const uwbConfigFixedSize = 13

// uwbConfigTailSize is country_code[2] + device_role[1] + device_mode[1].
const uwbConfigTailSize = 4

// UwbConfigBodySize returns the UWB config payload body size for a given
// session key length.
func UwbConfigBodySize(sessionKeyLen int) int {
	return uwbConfigFixedSize + sessionKeyLen + uwbConfigTailSize
}

// UwbDeviceMode distinguishes UWB controller/controlee roles, independent
// of the initiator/responder ranging role (spec section 6 device_mode
// field).
type UwbDeviceMode uint8

const (
	UwbModeController UwbDeviceMode = 1
	UwbModeControlee  UwbDeviceMode = 2
)

func marshalUwbConfigBody(p model.UwbParams, mode UwbDeviceMode, buf []byte) error {
	n := UwbConfigBodySize(len(p.SessionKey))
	if len(buf) < n {
		return fmt.Errorf("uwb config: %w", model.ErrBufTooSmall)
	}
	buf[0], buf[1] = p.LocalAddress[0], p.LocalAddress[1]
	binary.BigEndian.PutUint32(buf[2:6], p.SessionID)
	buf[6] = uint8(p.ConfigID)
	buf[7] = p.Channel
	buf[8] = p.PreambleIndex
	binary.BigEndian.PutUint16(buf[9:11], p.RangingIntervalMs)
	buf[11] = p.SlotDurationMs
	buf[12] = uint8(len(p.SessionKey))
	off := uwbConfigFixedSize
	copy(buf[off:off+len(p.SessionKey)], p.SessionKey)
	off += len(p.SessionKey)
	buf[off], buf[off+1] = p.CountryCode[0], p.CountryCode[1]
	buf[off+2] = p.Role.WireByte()
	buf[off+3] = uint8(mode)
	return nil
}

func unmarshalUwbConfigBody(buf []byte) (model.UwbParams, UwbDeviceMode, error) {
	if len(buf) < uwbConfigFixedSize {
		return model.UwbParams{}, 0, fmt.Errorf("uwb config: need at least %d bytes, got %d: %w",
			uwbConfigFixedSize, len(buf), model.ErrMalformedMessage)
	}
	var p model.UwbParams
	p.LocalAddress = model.UwbAddress{buf[0], buf[1]}
	p.SessionID = binary.BigEndian.Uint32(buf[2:6])
	p.ConfigID = model.UwbConfigID(buf[6])
	p.Channel = buf[7]
	p.PreambleIndex = buf[8]
	p.RangingIntervalMs = binary.BigEndian.Uint16(buf[9:11])
	p.SlotDurationMs = buf[11]
	keyLen := int(buf[12])
	if keyLen != 8 && keyLen != 16 && keyLen != 32 {
		return model.UwbParams{}, 0, fmt.Errorf(
			"uwb config: session key length %d must be 8, 16, or 32: %w", keyLen, model.ErrMalformedMessage)
	}
	need := uwbConfigFixedSize + keyLen + uwbConfigTailSize
	if len(buf) < need {
		return model.UwbParams{}, 0, fmt.Errorf("uwb config: need %d bytes, got %d: %w",
			need, len(buf), model.ErrMalformedMessage)
	}
	off := uwbConfigFixedSize
	p.SessionKey = append([]byte(nil), buf[off:off+keyLen]...)
	off += keyLen
	p.CountryCode = [2]byte{buf[off], buf[off+1]}
	role, ok := model.RoleFromWireByte(buf[off+2])
	if !ok {
		return model.UwbParams{}, 0, fmt.Errorf(
			"uwb config: unknown device role byte 0x%02x: %w", buf[off+2], model.ErrMalformedMessage)
	}
	p.Role = role
	mode := UwbDeviceMode(buf[off+3])
	return p, mode, nil
}

// -------------------------------------------------------------------------
// RTT / CS / BLE-RSSI config payloads
// -------------------------------------------------------------------------

// rttConfigFixedSize is rate_tier[1] + periodic[1] + reserved[1] +
// service_name_len[1]. Fixed at 4 bytes so that the whole RTT config block
// (TechnologyHeader + body) is service_name_length + 6, matching spec
// section 9's documented size for the RTT config payload (see DESIGN.md).
const rttConfigFixedSize = 4

func rttConfigBodySize(serviceNameLen int) int { return rttConfigFixedSize + serviceNameLen }

func marshalRttConfigBody(p model.RttParams, buf []byte) error {
	n := rttConfigBodySize(len(p.ServiceName))
	if len(buf) < n {
		return fmt.Errorf("rtt config: %w", model.ErrBufTooSmall)
	}
	buf[0] = uint8(p.RateTier)
	if p.Periodic {
		buf[1] = 1
	}
	buf[2] = 0 // reserved
	buf[3] = uint8(len(p.ServiceName))
	copy(buf[rttConfigFixedSize:n], p.ServiceName)
	return nil
}

func unmarshalRttConfigBody(buf []byte) (model.RttParams, error) {
	if len(buf) < rttConfigFixedSize {
		return model.RttParams{}, fmt.Errorf("rtt config: need at least %d bytes, got %d: %w",
			rttConfigFixedSize, len(buf), model.ErrMalformedMessage)
	}
	nameLen := int(buf[3])
	need := rttConfigFixedSize + nameLen
	if len(buf) < need {
		return model.RttParams{}, fmt.Errorf("rtt config: need %d bytes, got %d: %w",
			need, len(buf), model.ErrMalformedMessage)
	}
	return model.RttParams{
		RateTier:    model.UwbRateTier(buf[0]),
		Periodic:    buf[1] != 0,
		ServiceName: string(buf[rttConfigFixedSize:need]),
	}, nil
}

// csBleConfigBodySize is the 1-byte role-only payload shared by Channel
// Sounding and BLE-RSSI config (spec section 4.6: single-shot technologies
// negotiate nothing beyond which side plays which role).
const csBleConfigBodySize = 1

func marshalRoleOnlyBody(role model.DeviceRole, buf []byte) error {
	if len(buf) < csBleConfigBodySize {
		return fmt.Errorf("role config: %w", model.ErrBufTooSmall)
	}
	buf[0] = role.WireByte()
	return nil
}

func unmarshalRoleOnlyBody(buf []byte) (model.DeviceRole, error) {
	if len(buf) < csBleConfigBodySize {
		return 0, fmt.Errorf("role config: need %d bytes, got %d: %w",
			csBleConfigBodySize, len(buf), model.ErrMalformedMessage)
	}
	role, ok := model.RoleFromWireByte(buf[0])
	if !ok {
		return 0, fmt.Errorf("role config: unknown device role byte 0x%02x: %w", buf[0], model.ErrMalformedMessage)
	}
	return role, nil
}

// -------------------------------------------------------------------------
// SetConfigurationMessage
// -------------------------------------------------------------------------

// SetConfigurationMessage carries the negotiated per-technology parameters
// for each technology the initiator selected, plus the subset that should
// start ranging immediately (spec section 4.1, section 6).
type SetConfigurationMessage struct {
	TechnologiesSet  tech.Set
	StartRangingList tech.Set
	Configs          []model.TechnologyConfig
	UwbDeviceMode    UwbDeviceMode // only meaningful when TechnologiesSet.Has(tech.UWB)
}

// Marshal encodes the message into a freshly allocated buffer.
func (m SetConfigurationMessage) Marshal() ([]byte, error) {
	size := HeaderSize + bitmapWidth16 + bitmapWidth16
	bodies := make([][]byte, len(m.Configs))
	for i, c := range m.Configs {
		var body []byte
		switch c.Technology {
		case tech.UWB:
			if c.UWB == nil {
				return nil, fmt.Errorf("set configuration: UWB config missing params: %w", model.ErrMalformedMessage)
			}
			body = make([]byte, UwbConfigBodySize(len(c.UWB.SessionKey)))
			if err := marshalUwbConfigBody(*c.UWB, m.UwbDeviceMode, body); err != nil {
				return nil, err
			}
		case tech.RTT:
			if c.RTT == nil {
				return nil, fmt.Errorf("set configuration: RTT config missing params: %w", model.ErrMalformedMessage)
			}
			body = make([]byte, rttConfigBodySize(len(c.RTT.ServiceName)))
			if err := marshalRttConfigBody(*c.RTT, body); err != nil {
				return nil, err
			}
		case tech.CS:
			body = make([]byte, csBleConfigBodySize)
			if c.CS == nil {
				return nil, fmt.Errorf("set configuration: CS config missing params: %w", model.ErrMalformedMessage)
			}
			if err := marshalRoleOnlyBody(c.CS.Role, body); err != nil {
				return nil, err
			}
		case tech.RSSI:
			body = make([]byte, csBleConfigBodySize)
			if c.BleRssi == nil {
				return nil, fmt.Errorf("set configuration: BLE-RSSI config missing params: %w", model.ErrMalformedMessage)
			}
			if err := marshalRoleOnlyBody(c.BleRssi.Role, body); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("set configuration: unsupported technology %s: %w", c.Technology, model.ErrMalformedMessage)
		}
		if len(body) > 0xFF {
			return nil, fmt.Errorf("set configuration: %s payload %d bytes exceeds 255: %w",
				c.Technology, len(body), model.ErrMalformedMessage)
		}
		bodies[i] = body
		size += TechnologyHeaderSize + len(body)
	}

	buf := make([]byte, size)
	_ = Header{MessageType: SetConfiguration, Version: ProtocolVersion}.Marshal(buf)
	off := HeaderSize
	putTechSet16(buf[off:off+bitmapWidth16], m.TechnologiesSet)
	off += bitmapWidth16
	putTechSet16(buf[off:off+bitmapWidth16], m.StartRangingList)
	off += bitmapWidth16
	for i, c := range m.Configs {
		_ = TechnologyHeader{Technology: c.Technology, Size: uint8(len(bodies[i]))}.Marshal(buf[off:])
		off += TechnologyHeaderSize
		copy(buf[off:off+len(bodies[i])], bodies[i])
		off += len(bodies[i])
	}
	return buf, nil
}

// UnmarshalSetConfiguration decodes a SetConfigurationMessage. peer is the
// RangingDevice every decoded TechnologyConfig is addressed to; the wire
// format itself carries no peer identity, since the
// OOB channel already identifies the peer at the transport layer.
func UnmarshalSetConfiguration(buf []byte, peer model.RangingDevice) (SetConfigurationMessage, error) {
	minSize := HeaderSize + bitmapWidth16 + bitmapWidth16
	if len(buf) < minSize {
		return SetConfigurationMessage{}, fmt.Errorf(
			"set configuration: need at least %d bytes, got %d: %w", minSize, len(buf), model.ErrMalformedMessage)
	}
	hdr, err := UnmarshalHeader(buf)
	if err != nil {
		return SetConfigurationMessage{}, err
	}
	if hdr.MessageType != SetConfiguration {
		return SetConfigurationMessage{}, fmt.Errorf(
			"set configuration: unexpected message type %s: %w", hdr.MessageType, model.ErrMalformedMessage)
	}
	var m SetConfigurationMessage
	off := HeaderSize
	m.TechnologiesSet = techSet16(buf[off : off+bitmapWidth16])
	off += bitmapWidth16
	m.StartRangingList = techSet16(buf[off : off+bitmapWidth16])
	off += bitmapWidth16

	for off < len(buf) {
		if off+TechnologyHeaderSize > len(buf) {
			return SetConfigurationMessage{}, fmt.Errorf(
				"set configuration: truncated technology header at offset %d: %w", off, model.ErrMalformedMessage)
		}
		t, ok := tech.FromBit(buf[off])
		if !ok {
			return SetConfigurationMessage{}, fmt.Errorf(
				"set configuration: unknown embedded technology id %d: %w", buf[off], model.ErrMalformedMessage)
		}
		thdr, err := UnmarshalTechnologyHeader(buf[off:], t)
		if err != nil {
			return SetConfigurationMessage{}, err
		}
		off += TechnologyHeaderSize
		body := buf[off : off+int(thdr.Size)]
		cfg := model.TechnologyConfig{Technology: t, Peer: peer}
		switch t {
		case tech.UWB:
			params, mode, err := unmarshalUwbConfigBody(body)
			if err != nil {
				return SetConfigurationMessage{}, err
			}
			cfg.UWB = &params
			m.UwbDeviceMode = mode
		case tech.RTT:
			params, err := unmarshalRttConfigBody(body)
			if err != nil {
				return SetConfigurationMessage{}, err
			}
			cfg.RTT = &params
		case tech.CS:
			role, err := unmarshalRoleOnlyBody(body)
			if err != nil {
				return SetConfigurationMessage{}, err
			}
			cfg.CS = &model.CsParams{Role: role}
		case tech.RSSI:
			role, err := unmarshalRoleOnlyBody(body)
			if err != nil {
				return SetConfigurationMessage{}, err
			}
			cfg.BleRssi = &model.BleRssiParams{Role: role}
		default:
			return SetConfigurationMessage{}, fmt.Errorf(
				"set configuration: no config payload defined for technology %s: %w", t, model.ErrMalformedMessage)
		}
		m.Configs = append(m.Configs, cfg)
		off += int(thdr.Size)
	}
	return m, nil
}
