package controller

import (
	"github.com/pkg/errors"

	"github.com/carrodher/loadBalancer/internal/openflow"
)

// DefaultServerNumber is the pool size used when none is configured.
const DefaultServerNumber = 4

// ProbeRangeInclusive selects the probe target from [0, N] rather than
// [0, N-1]. With N servers this yields N+1 possible targets.
const ProbeRangeInclusive = true

// matchWildcards is the wildcard mask put on every installed flow.
const matchWildcards uint32 = 0

var ErrSwitchNotRegistered = errors.New("switch not registered with controller")

// Event is a message received from a switch, reduced to what the engine
// needs.
type Event struct {
	Kind     uint8
	BufferID uint32
	// InPort is the switch ingress port code, flow.PortUnknown if unknown.
	InPort int32
	Frame  []byte
}

// Instruction is what the engine hands back to the switch.
type Instruction struct {
	FlowMod *openflow.FlowMod
	// Frame is a copy of the triggering packet, for switches that did not
	// buffer it.
	Frame  []byte
	InPort uint16
}

// Switch is a switch bound to the engine.
type Switch interface {
	DatapathID() uint64
	SendToSwitch(inst *Instruction) error
}

type Decision int

const (
	DecisionFlood Decision = iota
	DecisionUnicast
	DecisionProbe
)

func (d Decision) String() string {
	switch d {
	case DecisionUnicast:
		return "unicast"
	case DecisionProbe:
		return "probe"
	default:
		return "flood"
	}
}
