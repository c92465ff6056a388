// Package flow holds the identifying fields of the first packet of a flow,
// as seen by the decision engine.
package flow

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pkg/errors"

	"github.com/carrodher/loadBalancer/internal/openflow"
)

// HwAddr is an Ethernet hardware address.
type HwAddr [6]byte

// Broadcast is the link-layer broadcast address.
var Broadcast = HwAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func (a HwAddr) IsBroadcast() bool {
	return a == Broadcast
}

func (a HwAddr) String() string {
	return net.HardwareAddr(a[:]).String()
}

func ParseHwAddr(s string) (HwAddr, error) {
	var a HwAddr
	mac, err := net.ParseMAC(s)
	if err != nil {
		return a, err
	}
	if len(mac) != len(a) {
		return a, errors.Errorf("%q is not a 48-bit hardware address", s)
	}
	copy(a[:], mac)
	return a, nil
}

// IPv4 is an IPv4 address in host byte order.
type IPv4 uint32

// Unspecified is 0.0.0.0, the sender address of an address-resolution probe.
const Unspecified IPv4 = 0

func (ip IPv4) IsUnspecified() bool {
	return ip == Unspecified
}

func (ip IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// IPv4FromBytes converts a network-order address.
func IPv4FromBytes(b []byte) IPv4 {
	return IPv4(binary.BigEndian.Uint32(b))
}

func ParseIPv4(s string) (IPv4, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, errors.Errorf("invalid IP address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, errors.Errorf("%q is not an IPv4 address", s)
	}
	return IPv4FromBytes(ip4), nil
}

// Descriptor is the read-only view of one packet-in used by the policy.
type Descriptor struct {
	InPort    uint16
	Wildcards uint32
	DlSrc     HwAddr
	DlDst     HwAddr
	NwSrc     IPv4
	NwDst     IPv4
}

// Match is the flow match key for the descriptor. Every other field is zero.
func (d Descriptor) Match() openflow.Match {
	return openflow.Match{
		Wildcards: d.Wildcards,
		InPort:    d.InPort,
		DlSrc:     d.DlSrc,
		DlDst:     d.DlDst,
		NwSrc:     uint32(d.NwSrc),
		NwDst:     uint32(d.NwDst),
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("in_port=%d dl_src=%s dl_dst=%s nw_src=%s nw_dst=%s",
		d.InPort, d.DlSrc, d.DlDst, d.NwSrc, d.NwDst)
}
