package openflow

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Header is a raw OpenFlow message, header included.
type Header []byte

func (h Header) Version() uint8 {
	return h[0]
}

func (h Header) Type() uint8 {
	return h[1]
}

func (h Header) Length() int {
	return int(binary.BigEndian.Uint16(h[2:]))
}

func (h Header) Xid() uint32 {
	return binary.BigEndian.Uint32(h[4:])
}

func (h Header) SetXid(xid uint32) Header {
	binary.BigEndian.PutUint32(h[4:], xid)
	return h
}

func MakeHeader(ofpt uint8, xid uint32) Header {
	h := make([]byte, HeaderLen)
	h[0] = Version
	h[1] = ofpt
	binary.BigEndian.PutUint16(h[2:], HeaderLen)
	binary.BigEndian.PutUint32(h[4:], xid)
	return h
}

// MakeEchoReply answers an echo request, carrying back its payload.
func MakeEchoReply(req Header) Header {
	rep := make([]byte, len(req))
	copy(rep, req)
	rep[1] = OFPT_ECHO_REPLY
	return rep
}

// ReadMessage reads one length-framed message from r.
func ReadMessage(r io.Reader) (Header, error) {
	hdr := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[2:]))
	if length < HeaderLen {
		return nil, errors.Errorf("openflow: bad message length %d", length)
	}
	msg := make([]byte, length)
	copy(msg, hdr)
	if _, err := io.ReadFull(r, msg[HeaderLen:]); err != nil {
		return nil, errors.Wrap(err, "openflow: short message body")
	}
	return msg, nil
}

// PacketIn is a received OFPT_PACKET_IN message.
type PacketIn []byte

func ParsePacketIn(msg Header) (PacketIn, error) {
	if msg.Type() != OFPT_PACKET_IN {
		return nil, errors.Errorf("openflow: message type %d is not packet-in", msg.Type())
	}
	if len(msg) < packetInLen || msg.Length() > len(msg) || msg.Length() < packetInLen {
		return nil, errors.Errorf("openflow: packet-in too short (%d bytes)", len(msg))
	}
	return PacketIn(msg[:msg.Length()]), nil
}

func (p PacketIn) BufferID() uint32 {
	return binary.BigEndian.Uint32(p[8:])
}

func (p PacketIn) TotalLen() uint16 {
	return binary.BigEndian.Uint16(p[12:])
}

func (p PacketIn) InPort() uint16 {
	return binary.BigEndian.Uint16(p[14:])
}

func (p PacketIn) Reason() uint8 {
	return p[16]
}

func (p PacketIn) Data() []byte {
	return p[packetInLen:]
}

func MakePacketIn(xid, bufferID uint32, inPort uint16, reason uint8, data []byte) Header {
	length := packetInLen + len(data)
	p := make([]byte, length)
	p[0] = Version
	p[1] = OFPT_PACKET_IN
	binary.BigEndian.PutUint16(p[2:], uint16(length))
	binary.BigEndian.PutUint32(p[4:], xid)
	binary.BigEndian.PutUint32(p[8:], bufferID)
	binary.BigEndian.PutUint16(p[12:], uint16(len(data)))
	binary.BigEndian.PutUint16(p[14:], inPort)
	p[16] = reason
	copy(p[packetInLen:], data)
	return p
}

// FeaturesReply is a received OFPT_FEATURES_REPLY message.
type FeaturesReply []byte

func ParseFeaturesReply(msg Header) (FeaturesReply, error) {
	if msg.Type() != OFPT_FEATURES_REPLY {
		return nil, errors.Errorf("openflow: message type %d is not features-reply", msg.Type())
	}
	if len(msg) < featuresLen {
		return nil, errors.Errorf("openflow: features-reply too short (%d bytes)", len(msg))
	}
	return FeaturesReply(msg), nil
}

func (f FeaturesReply) DatapathID() uint64 {
	return binary.BigEndian.Uint64(f[8:])
}

func (f FeaturesReply) NBuffers() uint32 {
	return binary.BigEndian.Uint32(f[16:])
}

func (f FeaturesReply) NTables() uint8 {
	return f[20]
}

func MakeFeaturesReply(xid uint32, dpid uint64, nBuffers uint32, nTables uint8) Header {
	f := make([]byte, featuresLen)
	f[0] = Version
	f[1] = OFPT_FEATURES_REPLY
	binary.BigEndian.PutUint16(f[2:], featuresLen)
	binary.BigEndian.PutUint32(f[4:], xid)
	binary.BigEndian.PutUint64(f[8:], dpid)
	binary.BigEndian.PutUint32(f[16:], nBuffers)
	f[20] = nTables
	return f
}
