// Package openflow implements the subset of the OpenFlow 1.0 wire protocol
// spoken between the controller and its switches.
package openflow

const Version uint8 = 0x01

const HeaderLen = 8

// Message types.
const (
	OFPT_HELLO uint8 = iota
	OFPT_ERROR
	OFPT_ECHO_REQUEST
	OFPT_ECHO_REPLY
	OFPT_VENDOR
	OFPT_FEATURES_REQUEST
	OFPT_FEATURES_REPLY
	OFPT_GET_CONFIG_REQUEST
	OFPT_GET_CONFIG_REPLY
	OFPT_SET_CONFIG
	OFPT_PACKET_IN
	OFPT_FLOW_REMOVED
	OFPT_PORT_STATUS
	OFPT_PACKET_OUT
	OFPT_FLOW_MOD
	OFPT_PORT_MOD
	OFPT_STATS_REQUEST
	OFPT_STATS_REPLY
	OFPT_BARRIER_REQUEST
	OFPT_BARRIER_REPLY
)

// Reserved port numbers.
const (
	OFPP_MAX        uint16 = 0xff00
	OFPP_IN_PORT    uint16 = 0xfff8
	OFPP_TABLE      uint16 = 0xfff9
	OFPP_NORMAL     uint16 = 0xfffa
	OFPP_FLOOD      uint16 = 0xfffb
	OFPP_ALL        uint16 = 0xfffc
	OFPP_CONTROLLER uint16 = 0xfffd
	OFPP_LOCAL      uint16 = 0xfffe
	OFPP_NONE       uint16 = 0xffff
)

// Flow-mod commands.
const (
	OFPFC_ADD uint16 = iota
	OFPFC_MODIFY
	OFPFC_MODIFY_STRICT
	OFPFC_DELETE
	OFPFC_DELETE_STRICT
)

const (
	OFPAT_OUTPUT uint16 = 0
)

const (
	OFP_NO_BUFFER        uint32 = 0xffffffff
	OFP_FLOW_PERMANENT   uint16 = 0
	OFP_DEFAULT_PRIORITY uint16 = 0x8000
	OFP_EXACT_PRIORITY   uint16 = 0xffff
)

// Wire sizes of the fixed parts of each structure.
const (
	matchLen        = 40
	actionOutputLen = 8
	packetInLen     = 18
	flowModLen      = HeaderLen + matchLen + 24
	packetOutLen    = 16
	featuresLen     = 32
)
