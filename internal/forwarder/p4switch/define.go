// Package p4switch drives a P4Runtime target as a controller switch: packets
// punted over the stream channel become packet-in events and each decision
// becomes a table entry plus a packet-out.
package p4switch

import "time"

// Match field names looked up in the forwarding table. Fields of the table
// with other names are left as don't-care.
const (
	MatchInPort   = "in_port"
	MatchEthSrc   = "eth_src"
	MatchEthDst   = "eth_dst"
	MatchIPv4Src  = "ipv4_src"
	MatchIPv4Dst  = "ipv4_dst"
	ParamPortName = "port"
)

const (
	writeTimeout   = 5 * time.Second
	arbitrationLen = 16
)

// MatchKeys is one match value for the four P4 match kinds.
type MatchKeys struct {
	ExactValue   []byte
	LpmValue     []byte
	LpmPrefixLen int32
	TernaryValue []byte
	TernaryMask  []byte
	RangeLow     []byte
	RangeHigh    []byte
	DontCare     bool
}
