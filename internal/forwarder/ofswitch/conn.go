package ofswitch

import (
	"encoding/hex"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carrodher/loadBalancer/internal/controller"
	"github.com/carrodher/loadBalancer/internal/logger"
	"github.com/carrodher/loadBalancer/internal/openflow"
)

type ReceiveMessage struct {
	Msg openflow.Header
	Err error
}

// Conn is one switch connection. It implements controller.Switch once the
// switch has answered the features request.
type Conn struct {
	nc           net.Conn
	engine       *controller.Engine
	echoInterval time.Duration
	rcvCh        chan ReceiveMessage
	done         chan struct{}
	wmu          sync.Mutex // serializes writes
	xid          uint32
	dpid         uint64
	registered   bool
	closeOnce    sync.Once
	onClose      func()
	log          *logrus.Entry
}

func newConn(nc net.Conn, engine *controller.Engine, echoInterval time.Duration) *Conn {
	return &Conn{
		nc:           nc,
		engine:       engine,
		echoInterval: echoInterval,
		rcvCh:        make(chan ReceiveMessage, RECEIVE_CHANNEL_LEN),
		done:         make(chan struct{}),
		log:          logger.OfLog.WithField(logger.FieldRemoteAddr, nc.RemoteAddr().String()),
	}
}

func (c *Conn) DatapathID() uint64 {
	return atomic.LoadUint64(&c.dpid)
}

// SendToSwitch installs the flow and, when the switch kept no buffer,
// releases the triggering packet with a packet-out on the same port.
func (c *Conn) SendToSwitch(inst *controller.Instruction) error {
	fm := *inst.FlowMod
	fm.Xid = c.nextXid()
	b, err := fm.MarshalBinary()
	if err != nil {
		return err
	}
	if err = c.write(b); err != nil {
		return errors.Wrap(err, "write flow-mod")
	}
	if fm.BufferID != openflow.OFP_NO_BUFFER {
		return nil
	}

	po := &openflow.PacketOut{
		Xid:      c.nextXid(),
		BufferID: openflow.OFP_NO_BUFFER,
		InPort:   inst.InPort,
		Actions:  fm.Actions,
		Data:     inst.Frame,
	}
	if b, err = po.MarshalBinary(); err != nil {
		return err
	}
	return errors.Wrap(c.write(b), "write packet-out")
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		if err := c.nc.Close(); err != nil {
			c.log.Debugf("close: %+v", err)
		}
	})
}

func (c *Conn) nextXid() uint32 {
	return atomic.AddUint32(&c.xid, 1)
}

func (c *Conn) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.nc.Write(b)
	return err
}

func (c *Conn) serve(wg *sync.WaitGroup) {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			c.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}
		close(c.done)
		c.Close()
		if c.registered {
			c.engine.RemoveSwitch(c)
		}
		if c.onClose != nil {
			c.onClose()
		}
		c.log.Infoln("switch disconnected")
		wg.Done()
	}()

	c.log.Infoln("switch connected")
	if err := c.write(openflow.MakeHeader(openflow.OFPT_HELLO, c.nextXid())); err != nil {
		c.log.Errorf("send hello: %+v", err)
		return
	}
	if err := c.write(openflow.MakeHeader(openflow.OFPT_FEATURES_REQUEST, c.nextXid())); err != nil {
		c.log.Errorf("send features request: %+v", err)
		return
	}

	wg.Add(1)
	go c.receiver(wg)

	ticker := time.NewTicker(c.echoInterval)
	defer ticker.Stop()
	lastSeen := time.Now()

	for {
		select {
		case rcv := <-c.rcvCh:
			if rcv.Err != nil {
				return
			}
			lastSeen = time.Now()
			if err := c.handle(rcv.Msg); err != nil {
				c.log.Errorln(err)
				c.log.Tracef("message:\n%+v", hex.Dump(rcv.Msg))
			}
		case <-ticker.C:
			if idle := time.Since(lastSeen); idle > maxMissedEchoes*c.echoInterval {
				c.log.Warnf("switch silent for %s, closing", idle)
				return
			}
			if err := c.write(openflow.MakeHeader(openflow.OFPT_ECHO_REQUEST, c.nextXid())); err != nil {
				c.log.Warnf("send echo request: %+v", err)
				return
			}
		}
	}
}

func (c *Conn) receiver(wg *sync.WaitGroup) {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			c.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}
		wg.Done()
	}()

	for {
		msg, err := openflow.ReadMessage(c.nc)
		select {
		case c.rcvCh <- ReceiveMessage{Msg: msg, Err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			c.log.Debugf("read: %+v", err)
			return
		}
	}
}

func (c *Conn) handle(msg openflow.Header) error {
	if msg.Version() != openflow.Version {
		return errors.Errorf("unsupported openflow version 0x%02x", msg.Version())
	}
	switch msg.Type() {
	case openflow.OFPT_HELLO, openflow.OFPT_ECHO_REPLY:
	case openflow.OFPT_ECHO_REQUEST:
		return c.write(openflow.MakeEchoReply(msg))
	case openflow.OFPT_FEATURES_REPLY:
		return c.handleFeaturesReply(msg)
	case openflow.OFPT_ERROR:
		c.log.Warnf("switch error, xid %d", msg.Xid())
	case openflow.OFPT_PACKET_IN:
		return c.engine.ReceiveMessage(c, msg)
	default:
		c.log.Tracef("ignored message type %d", msg.Type())
	}
	return nil
}

func (c *Conn) handleFeaturesReply(msg openflow.Header) error {
	fr, err := openflow.ParseFeaturesReply(msg)
	if err != nil {
		return err
	}
	if c.registered {
		return nil
	}
	atomic.StoreUint64(&c.dpid, fr.DatapathID())
	c.engine.AddSwitch(c)
	c.registered = true
	c.log.WithField(logger.FieldDatapathID, fmt.Sprintf("%016x", fr.DatapathID())).
		Infof("features: %d buffers, %d tables", fr.NBuffers(), fr.NTables())
	return nil
}
