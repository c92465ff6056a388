package controller

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carrodher/loadBalancer/internal/flow"
	"github.com/carrodher/loadBalancer/internal/learning"
	"github.com/carrodher/loadBalancer/internal/logger"
	"github.com/carrodher/loadBalancer/internal/openflow"
)

type Options struct {
	// ServerNumber is the size of the backend pool. 0 means
	// DefaultServerNumber.
	ServerNumber int
	Table        learning.Table
	Rand         Uniform
	Metrics      *Metrics
}

// Engine decides how a switch forwards a new flow. It learns source
// addresses, answers unicast from what it learned, floods what it cannot
// place, and spreads address-resolution probes over the server pool.
type Engine struct {
	mu           sync.Mutex // guards table and rng
	table        learning.Table
	rng          Uniform
	serverNumber int

	swMu     sync.RWMutex
	switches map[uint64]Switch

	metrics *Metrics
	log     *logrus.Entry
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		table:        opts.Table,
		rng:          opts.Rand,
		serverNumber: opts.ServerNumber,
		switches:     make(map[uint64]Switch),
		metrics:      opts.Metrics,
		log:          logger.CtrlLog,
	}
	if e.serverNumber <= 0 {
		e.serverNumber = DefaultServerNumber
	}
	if e.serverNumber > int(openflow.OFPP_MAX) {
		e.log.Warnf("server number %d exceeds port range, using %d", e.serverNumber, openflow.OFPP_MAX)
		e.serverNumber = int(openflow.OFPP_MAX)
	}
	if e.table == nil {
		e.table = learning.NewTable()
	}
	if e.rng == nil {
		e.rng = NewUniform(time.Now().UnixNano())
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

func (e *Engine) ServerNumber() int {
	return e.serverNumber
}

func (e *Engine) AddSwitch(sw Switch) {
	e.swMu.Lock()
	defer e.swMu.Unlock()
	if _, ok := e.switches[sw.DatapathID()]; ok {
		e.log.Warnf("switch %016x registered again, replacing binding", sw.DatapathID())
	}
	e.switches[sw.DatapathID()] = sw
	e.log.Infof("switch %016x registered", sw.DatapathID())
}

// RemoveSwitch drops the binding of sw. A newer handle bound to the same
// datapath id is left in place.
func (e *Engine) RemoveSwitch(sw Switch) {
	e.swMu.Lock()
	defer e.swMu.Unlock()
	dpid := sw.DatapathID()
	if cur, ok := e.switches[dpid]; !ok || cur != sw {
		e.log.Debugf("switch %016x not bound to this handle, nothing to remove", dpid)
		return
	}
	delete(e.switches, dpid)
	e.log.Infof("switch %016x removed", dpid)
}

// isBound reports whether sw itself holds the binding for its datapath id.
func (e *Engine) isBound(sw Switch) bool {
	e.swMu.RLock()
	defer e.swMu.RUnlock()
	cur, ok := e.switches[sw.DatapathID()]
	return ok && cur == sw
}

// HasSwitch reports whether the engine has an active binding for dpid.
func (e *Engine) HasSwitch(dpid uint64) bool {
	e.swMu.RLock()
	defer e.swMu.RUnlock()
	_, ok := e.switches[dpid]
	return ok
}

// LearnedPort looks a station up in the learning table.
func (e *Engine) LearnedPort(addr flow.HwAddr) (uint16, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Lookup(addr)
}

// ReceiveMessage handles a raw OpenFlow message from sw. Anything but a
// packet-in is ignored.
func (e *Engine) ReceiveMessage(sw Switch, msg openflow.Header) error {
	if len(msg) < openflow.HeaderLen {
		return errors.Errorf("short openflow message (%d bytes)", len(msg))
	}
	ev := Event{Kind: msg.Type()}
	if ev.Kind == openflow.OFPT_PACKET_IN {
		pi, err := openflow.ParsePacketIn(msg)
		if err != nil {
			e.metrics.Rejected.WithLabelValues("malformed").Inc()
			return err
		}
		ev.BufferID = pi.BufferID()
		ev.InPort = int32(pi.InPort())
		ev.Frame = pi.Data()
	}
	return e.ReceiveFromSwitch(sw, ev)
}

// ReceiveFromSwitch runs the decision for one event and sends the resulting
// instruction to sw.
func (e *Engine) ReceiveFromSwitch(sw Switch, ev Event) error {
	if !e.isBound(sw) {
		e.log.Errorf("switch %016x is not bound to this controller, dropping event", sw.DatapathID())
		e.metrics.Rejected.WithLabelValues("unregistered").Inc()
		return errors.Wrapf(ErrSwitchNotRegistered, "dpid %016x", sw.DatapathID())
	}
	if ev.Kind != openflow.OFPT_PACKET_IN {
		return nil
	}

	inst, err := e.Process(ev)
	if err != nil {
		e.log.Warnf("switch %016x: %+v", sw.DatapathID(), err)
		e.metrics.Rejected.WithLabelValues("malformed").Inc()
		return err
	}
	return errors.Wrapf(sw.SendToSwitch(inst), "send flow-mod to %016x", sw.DatapathID())
}

// Process extracts the flow from a packet-in event, learns its source and
// builds the flow-mod to install.
func (e *Engine) Process(ev Event) (*Instruction, error) {
	desc, err := flow.Extract(ev.Frame, ev.InPort, matchWildcards)
	if err != nil {
		return nil, err
	}
	e.log.Tracef("packet-in %s", desc)

	port, decision := e.Decide(desc)
	e.log.Debugf("%s -> port %d (%s)", desc, port, decision)

	frame := make([]byte, len(ev.Frame))
	copy(frame, ev.Frame)
	return &Instruction{
		FlowMod: BuildFlow(desc, ev.BufferID, port),
		Frame:   frame,
		InPort:  desc.InPort,
	}, nil
}

// Decide learns the source of desc and picks its output port.
func (e *Engine) Decide(desc flow.Descriptor) (uint16, Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.table.Learn(desc.DlSrc, desc.InPort) {
		e.log.Infof("learned %s -> port %d", desc.DlSrc, desc.InPort)
	}
	e.metrics.Learned.Set(float64(e.table.Len()))

	port, decision := e.decide(desc)
	e.metrics.Decisions.WithLabelValues(decision.String()).Inc()
	return port, decision
}

func (e *Engine) decide(desc flow.Descriptor) (uint16, Decision) {
	if desc.DlDst.IsBroadcast() {
		if desc.NwSrc.IsUnspecified() {
			return e.pickServer(), DecisionProbe
		}
		return openflow.OFPP_FLOOD, DecisionFlood
	}
	if port, ok := e.table.Lookup(desc.DlDst); ok {
		return port, DecisionUnicast
	}
	return openflow.OFPP_FLOOD, DecisionFlood
}

func (e *Engine) pickServer() uint16 {
	max := uint32(e.serverNumber)
	if !ProbeRangeInclusive {
		max--
	}
	return uint16(e.rng.Integer(0, max))
}

// BuildFlow builds a permanent add-flow for desc with a single output action.
func BuildFlow(desc flow.Descriptor, bufferID uint32, outPort uint16) *openflow.FlowMod {
	priority := openflow.OFP_EXACT_PRIORITY
	if desc.Wildcards != 0 {
		priority = openflow.OFP_DEFAULT_PRIORITY
	}
	return &openflow.FlowMod{
		Match:       desc.Match(),
		Command:     openflow.OFPFC_ADD,
		IdleTimeout: openflow.OFP_FLOW_PERMANENT,
		HardTimeout: openflow.OFP_FLOW_PERMANENT,
		Priority:    priority,
		BufferID:    bufferID,
		OutPort:     openflow.OFPP_NONE,
		Actions:     []openflow.ActionOutput{openflow.NewActionOutput(outPort)},
	}
}
