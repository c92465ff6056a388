package p4switch

import (
	"context"
	"io"
	"io/ioutil"
	"runtime/debug"
	"sync"

	"github.com/golang/protobuf/proto"
	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/carrodher/loadBalancer/internal/controller"
	"github.com/carrodher/loadBalancer/internal/flow"
	"github.com/carrodher/loadBalancer/internal/logger"
	"github.com/carrodher/loadBalancer/internal/openflow"
	"github.com/carrodher/loadBalancer/pkg/factory"
)

// Switch is a P4Runtime device bound to the engine. The device id doubles
// as the datapath id.
type Switch struct {
	conn       *grpc.ClientConn
	client     p4.P4RuntimeClient
	p4info     *p4config.P4Info
	op         *Operator
	cfg        *factory.P4Runtime
	electionID *p4.Uint128
	engine     *controller.Engine

	stream     p4.P4Runtime_StreamChannelClient
	sendMu     sync.Mutex // stream.Send is not safe for concurrent use
	cancel     context.CancelFunc
	registered bool
	log        *logrus.Entry
}

// Open dials the device, pushes the pipeline when a device config is set and
// starts the stream channel.
func Open(wg *sync.WaitGroup, cfg *factory.P4Runtime, engine *controller.Engine) (*Switch, error) {
	logger.MainLog.Infof("connecting p4runtime target [%s]", cfg.GRPC)
	p4info, err := LoadP4Info(cfg.P4Info)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.Dial(cfg.GRPC, grpc.WithInsecure())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", cfg.GRPC)
	}
	s, err := New(p4.NewP4RuntimeClient(conn), p4info, cfg, engine)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn

	if cfg.DeviceConfig != "" {
		if err = s.SetPipeline(cfg.DeviceConfig); err != nil {
			s.Close()
			return nil, err
		}
	}
	if err = s.Start(wg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func New(client p4.P4RuntimeClient, p4info *p4config.P4Info, cfg *factory.P4Runtime, engine *controller.Engine) (*Switch, error) {
	op, err := NewOperator(cfg.Table, p4info)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{cfg.OutputAction, cfg.FloodAction} {
		if FindAction(p4info, name) == nil {
			return nil, errors.Errorf("action %q not found in p4info", name)
		}
	}
	return &Switch{
		client:     client,
		p4info:     p4info,
		op:         op,
		cfg:        cfg,
		electionID: &p4.Uint128{High: 0, Low: cfg.ElectionID},
		engine:     engine,
		log:        logger.P4Log.WithField(logger.FieldDeviceID, cfg.DeviceID),
	}, nil
}

func (s *Switch) DatapathID() uint64 {
	return s.cfg.DeviceID
}

// SetPipeline installs the P4Info together with the target binary read from
// path.
func (s *Switch) SetPipeline(path string) error {
	deviceConfig, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read device config %s", path)
	}
	req := &p4.SetForwardingPipelineConfigRequest{
		DeviceId:   s.cfg.DeviceID,
		ElectionId: s.electionID,
		Action:     p4.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT,
		Config: &p4.ForwardingPipelineConfig{
			P4Info:         s.p4info,
			P4DeviceConfig: deviceConfig,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err = s.client.SetForwardingPipelineConfig(ctx, req); err != nil {
		return errors.Wrap(err, "set forwarding pipeline")
	}
	s.log.Infof("pipeline installed (%d bytes)", len(deviceConfig))
	return nil
}

// Start opens the stream channel, asks for mastership and serves packet-ins
// until the stream ends.
func (s *Switch) Start(wg *sync.WaitGroup) error {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.client.StreamChannel(ctx)
	if err != nil {
		cancel()
		return errors.Wrap(err, "open stream channel")
	}
	s.stream = stream
	s.cancel = cancel

	err = s.send(&p4.StreamMessageRequest{
		Update: &p4.StreamMessageRequest_Arbitration{
			Arbitration: &p4.MasterArbitrationUpdate{
				DeviceId:   s.cfg.DeviceID,
				ElectionId: s.electionID,
			},
		},
	})
	if err != nil {
		cancel()
		return errors.Wrap(err, "send arbitration")
	}

	wg.Add(1)
	go s.receiver(wg)
	return nil
}

func (s *Switch) receiver(wg *sync.WaitGroup) {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			s.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}
		if s.registered {
			s.engine.RemoveSwitch(s)
		}
		s.log.Infoln("stream channel closed")
		wg.Done()
	}()

	for {
		rsp, err := s.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.log.Debugf("stream recv: %+v", err)
			return
		}
		switch {
		case rsp.GetArbitration() != nil:
			s.handleArbitration(rsp.GetArbitration())
		case rsp.GetPacket() != nil:
			if err = s.handlePacketIn(rsp.GetPacket()); err != nil {
				s.log.Errorln(err)
			}
		case rsp.GetError() != nil:
			s.log.Warnf("stream error: %v", rsp.GetError())
		default:
			s.log.Tracef("ignored stream message %v", rsp)
		}
	}
}

func (s *Switch) handleArbitration(arb *p4.MasterArbitrationUpdate) {
	if code := arb.GetStatus().GetCode(); code != 0 {
		s.log.Warnf("not primary for device (status %d: %s)", code, arb.GetStatus().GetMessage())
		return
	}
	if s.registered {
		return
	}
	s.engine.AddSwitch(s)
	s.registered = true
	s.log.Infof("primary for device, election id %d", s.electionID.GetLow())
}

func (s *Switch) handlePacketIn(pkt *p4.PacketIn) error {
	inPort := flow.PortUnknown
	for _, md := range pkt.GetMetadata() {
		if md.GetMetadataId() == s.cfg.IngressPortMetadataID {
			inPort = int32(DecodeUint(md.GetValue()))
		}
	}
	return s.engine.ReceiveFromSwitch(s, controller.Event{
		Kind:     openflow.OFPT_PACKET_IN,
		BufferID: openflow.OFP_NO_BUFFER,
		InPort:   inPort,
		Frame:    pkt.GetPayload(),
	})
}

// SendToSwitch installs the flow as a table entry, then releases the packet
// through the pipeline.
func (s *Switch) SendToSwitch(inst *controller.Instruction) error {
	entry, outPort, err := s.buildEntry(inst.FlowMod)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err = InsertTableEntry(ctx, s.client, s.cfg.DeviceID, s.electionID, entry); err != nil {
		return err
	}
	s.log.Debugf("table entry installed (%d bytes)", proto.Size(entry))

	if len(inst.Frame) == 0 || s.stream == nil {
		return nil
	}
	po := &p4.PacketOut{Payload: inst.Frame}
	if outPort != openflow.OFPP_FLOOD {
		po.Metadata = []*p4.PacketMetadata{{
			MetadataId: s.cfg.EgressPortMetadataID,
			Value:      EncodeUint(uint64(outPort), 16),
		}}
	}
	return errors.Wrap(s.send(&p4.StreamMessageRequest{
		Update: &p4.StreamMessageRequest_Packet{Packet: po},
	}), "send packet-out")
}

// buildEntry maps a flow-mod with one output action onto the forwarding
// table. Flooding selects the flood action, anything else the output action
// with the port as its only parameter.
func (s *Switch) buildEntry(fm *openflow.FlowMod) (*p4.TableEntry, uint16, error) {
	if len(fm.Actions) != 1 {
		return nil, 0, errors.Errorf("flow-mod has %d actions, want 1", len(fm.Actions))
	}
	outPort := fm.Actions[0].Port
	m := fm.Match
	values := map[string]uint64{
		MatchEthSrc:  hwAddrUint(m.DlSrc),
		MatchEthDst:  hwAddrUint(m.DlDst),
		MatchIPv4Src: uint64(m.NwSrc),
		MatchIPv4Dst: uint64(m.NwDst),
	}
	if m.InPort != openflow.OFPP_NONE {
		values[MatchInPort] = uint64(m.InPort)
	}

	actionName, params := s.cfg.OutputAction, [][]byte{EncodeUint(uint64(outPort), s.portBitwidth())}
	if outPort == openflow.OFPP_FLOOD {
		actionName, params = s.cfg.FloodAction, nil
	}
	entry, err := s.op.EntryBuilder(values, actionName, params, int32(fm.Priority))
	return entry, outPort, err
}

func (s *Switch) portBitwidth() int32 {
	if params := FindAction(s.p4info, s.cfg.OutputAction).GetParams(); len(params) > 0 {
		return params[0].GetBitwidth()
	}
	return 16
}

func (s *Switch) send(req *p4.StreamMessageRequest) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.stream.Send(req)
}

func (s *Switch) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Errorf("close grpc connection: %+v", err)
		}
	}
}

func hwAddrUint(a [6]byte) uint64 {
	var v uint64
	for _, b := range a {
		v = v<<8 | uint64(b)
	}
	return v
}
