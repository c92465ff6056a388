package openflow

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Match is ofp_match. Fields the controller never sets stay zero.
type Match struct {
	Wildcards uint32
	InPort    uint16
	DlSrc     [6]byte
	DlDst     [6]byte
	DlVlan    uint16
	DlVlanPcp uint8
	DlType    uint16
	NwTos     uint8
	NwProto   uint8
	NwSrc     uint32
	NwDst     uint32
	TpSrc     uint16
	TpDst     uint16
}

func (m *Match) marshalTo(b []byte) {
	binary.BigEndian.PutUint32(b[0:], m.Wildcards)
	binary.BigEndian.PutUint16(b[4:], m.InPort)
	copy(b[6:12], m.DlSrc[:])
	copy(b[12:18], m.DlDst[:])
	binary.BigEndian.PutUint16(b[18:], m.DlVlan)
	b[20] = m.DlVlanPcp
	binary.BigEndian.PutUint16(b[22:], m.DlType)
	b[24] = m.NwTos
	b[25] = m.NwProto
	binary.BigEndian.PutUint32(b[28:], m.NwSrc)
	binary.BigEndian.PutUint32(b[32:], m.NwDst)
	binary.BigEndian.PutUint16(b[36:], m.TpSrc)
	binary.BigEndian.PutUint16(b[38:], m.TpDst)
}

func (m *Match) unmarshalFrom(b []byte) {
	m.Wildcards = binary.BigEndian.Uint32(b[0:])
	m.InPort = binary.BigEndian.Uint16(b[4:])
	copy(m.DlSrc[:], b[6:12])
	copy(m.DlDst[:], b[12:18])
	m.DlVlan = binary.BigEndian.Uint16(b[18:])
	m.DlVlanPcp = b[20]
	m.DlType = binary.BigEndian.Uint16(b[22:])
	m.NwTos = b[24]
	m.NwProto = b[25]
	m.NwSrc = binary.BigEndian.Uint32(b[28:])
	m.NwDst = binary.BigEndian.Uint32(b[32:])
	m.TpSrc = binary.BigEndian.Uint16(b[36:])
	m.TpDst = binary.BigEndian.Uint16(b[38:])
}

// ActionOutput is ofp_action_output.
type ActionOutput struct {
	Port   uint16
	MaxLen uint16
}

func NewActionOutput(port uint16) ActionOutput {
	return ActionOutput{Port: port}
}

func (a ActionOutput) marshalTo(b []byte) {
	binary.BigEndian.PutUint16(b[0:], OFPAT_OUTPUT)
	binary.BigEndian.PutUint16(b[2:], actionOutputLen)
	binary.BigEndian.PutUint16(b[4:], a.Port)
	binary.BigEndian.PutUint16(b[6:], a.MaxLen)
}

func marshalActions(actions []ActionOutput) []byte {
	b := make([]byte, len(actions)*actionOutputLen)
	for i, act := range actions {
		act.marshalTo(b[i*actionOutputLen:])
	}
	return b
}

func unmarshalActions(b []byte) ([]ActionOutput, error) {
	var actions []ActionOutput
	for cur := 0; cur < len(b); {
		if len(b)-cur < 4 {
			return nil, errors.New("openflow: truncated action header")
		}
		typ := binary.BigEndian.Uint16(b[cur:])
		length := int(binary.BigEndian.Uint16(b[cur+2:]))
		if length < 4 || cur+length > len(b) {
			return nil, errors.Errorf("openflow: bad action length %d", length)
		}
		if typ != OFPAT_OUTPUT || length != actionOutputLen {
			return nil, errors.Errorf("openflow: unsupported action type %d", typ)
		}
		actions = append(actions, ActionOutput{
			Port:   binary.BigEndian.Uint16(b[cur+4:]),
			MaxLen: binary.BigEndian.Uint16(b[cur+6:]),
		})
		cur += length
	}
	return actions, nil
}

// FlowMod is an ofp_flow_mod with output actions only.
type FlowMod struct {
	Xid         uint32
	Match       Match
	Cookie      uint64
	Command     uint16
	IdleTimeout uint16
	HardTimeout uint16
	Priority    uint16
	BufferID    uint32
	OutPort     uint16
	Flags       uint16
	Actions     []ActionOutput
}

// Len is the encoded size of the message, which is also its header length.
func (fm *FlowMod) Len() int {
	return flowModLen + len(fm.Actions)*actionOutputLen
}

func (fm *FlowMod) MarshalBinary() ([]byte, error) {
	length := fm.Len()
	if length > 0xffff {
		return nil, errors.Errorf("openflow: flow-mod too long (%d bytes)", length)
	}
	b := make([]byte, length)
	b[0] = Version
	b[1] = OFPT_FLOW_MOD
	binary.BigEndian.PutUint16(b[2:], uint16(length))
	binary.BigEndian.PutUint32(b[4:], fm.Xid)
	fm.Match.marshalTo(b[HeaderLen:])
	off := HeaderLen + matchLen
	binary.BigEndian.PutUint64(b[off:], fm.Cookie)
	binary.BigEndian.PutUint16(b[off+8:], fm.Command)
	binary.BigEndian.PutUint16(b[off+10:], fm.IdleTimeout)
	binary.BigEndian.PutUint16(b[off+12:], fm.HardTimeout)
	binary.BigEndian.PutUint16(b[off+14:], fm.Priority)
	binary.BigEndian.PutUint32(b[off+16:], fm.BufferID)
	binary.BigEndian.PutUint16(b[off+20:], fm.OutPort)
	binary.BigEndian.PutUint16(b[off+22:], fm.Flags)
	copy(b[flowModLen:], marshalActions(fm.Actions))
	return b, nil
}

func (fm *FlowMod) UnmarshalBinary(b []byte) error {
	msg := Header(b)
	if len(b) < flowModLen || msg.Type() != OFPT_FLOW_MOD {
		return errors.New("openflow: not a flow-mod")
	}
	if msg.Length() > len(b) || msg.Length() < flowModLen {
		return errors.Errorf("openflow: bad flow-mod length %d", msg.Length())
	}
	fm.Xid = msg.Xid()
	fm.Match.unmarshalFrom(b[HeaderLen:])
	off := HeaderLen + matchLen
	fm.Cookie = binary.BigEndian.Uint64(b[off:])
	fm.Command = binary.BigEndian.Uint16(b[off+8:])
	fm.IdleTimeout = binary.BigEndian.Uint16(b[off+10:])
	fm.HardTimeout = binary.BigEndian.Uint16(b[off+12:])
	fm.Priority = binary.BigEndian.Uint16(b[off+14:])
	fm.BufferID = binary.BigEndian.Uint32(b[off+16:])
	fm.OutPort = binary.BigEndian.Uint16(b[off+20:])
	fm.Flags = binary.BigEndian.Uint16(b[off+22:])
	actions, err := unmarshalActions(b[flowModLen:msg.Length()])
	if err != nil {
		return err
	}
	fm.Actions = actions
	return nil
}

// PacketOut is an ofp_packet_out with output actions only.
type PacketOut struct {
	Xid      uint32
	BufferID uint32
	InPort   uint16
	Actions  []ActionOutput
	Data     []byte
}

func (po *PacketOut) MarshalBinary() ([]byte, error) {
	acts := marshalActions(po.Actions)
	length := packetOutLen + len(acts)
	if po.BufferID == OFP_NO_BUFFER {
		length += len(po.Data)
	}
	if length > 0xffff {
		return nil, errors.Errorf("openflow: packet-out too long (%d bytes)", length)
	}
	b := make([]byte, length)
	b[0] = Version
	b[1] = OFPT_PACKET_OUT
	binary.BigEndian.PutUint16(b[2:], uint16(length))
	binary.BigEndian.PutUint32(b[4:], po.Xid)
	binary.BigEndian.PutUint32(b[8:], po.BufferID)
	binary.BigEndian.PutUint16(b[12:], po.InPort)
	binary.BigEndian.PutUint16(b[14:], uint16(len(acts)))
	copy(b[packetOutLen:], acts)
	if po.BufferID == OFP_NO_BUFFER {
		copy(b[packetOutLen+len(acts):], po.Data)
	}
	return b, nil
}
