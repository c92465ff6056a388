package ofswitch

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrodher/loadBalancer/internal/controller"
	"github.com/carrodher/loadBalancer/internal/openflow"
	"github.com/carrodher/loadBalancer/pkg/factory"
)

func unicastFrame(t *testing.T) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true},
		eth, ip, gopacket.Payload([]byte("payload")))
	require.NoError(t, err)
	return buf.Bytes()
}

func startConn(t *testing.T, engine *controller.Engine) (net.Conn, *sync.WaitGroup) {
	srvSide, swSide := net.Pipe()
	c := newConn(srvSide, engine, time.Hour)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go c.serve(wg)

	hello, err := openflow.ReadMessage(swSide)
	require.NoError(t, err)
	assert.Equal(t, openflow.OFPT_HELLO, hello.Type())
	freq, err := openflow.ReadMessage(swSide)
	require.NoError(t, err)
	assert.Equal(t, openflow.OFPT_FEATURES_REQUEST, freq.Type())
	return swSide, wg
}

func handshake(t *testing.T, engine *controller.Engine, dpid uint64) (net.Conn, *sync.WaitGroup) {
	sw, wg := startConn(t, engine)
	_, err := sw.Write(openflow.MakeFeaturesReply(2, dpid, 0, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return engine.HasSwitch(dpid) }, time.Second, 5*time.Millisecond)
	return sw, wg
}

func TestConnPacketInInstallsFlow(t *testing.T) {
	engine := controller.NewEngine(controller.Options{})
	sw, wg := handshake(t, engine, 0x1)

	frame := unicastFrame(t)
	_, err := sw.Write(openflow.MakePacketIn(7, openflow.OFP_NO_BUFFER, 3, 0, frame))
	require.NoError(t, err)

	msg, err := openflow.ReadMessage(sw)
	require.NoError(t, err)
	require.Equal(t, openflow.OFPT_FLOW_MOD, msg.Type())
	var fm openflow.FlowMod
	require.NoError(t, fm.UnmarshalBinary(msg))
	assert.Equal(t, uint16(3), fm.Match.InPort)
	assert.Equal(t, openflow.OFPFC_ADD, fm.Command)
	assert.Equal(t, openflow.OFP_NO_BUFFER, fm.BufferID)
	require.Len(t, fm.Actions, 1)
	assert.Equal(t, openflow.OFPP_FLOOD, fm.Actions[0].Port)

	po, err := openflow.ReadMessage(sw)
	require.NoError(t, err)
	assert.Equal(t, openflow.OFPT_PACKET_OUT, po.Type())
	assert.True(t, bytes.HasSuffix(po, frame))

	port, ok := engine.LearnedPort([6]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01})
	assert.True(t, ok)
	assert.Equal(t, uint16(3), port)

	require.NoError(t, sw.Close())
	wg.Wait()
	assert.False(t, engine.HasSwitch(0x1))
}

func TestConnBufferedPacketSkipsPacketOut(t *testing.T) {
	engine := controller.NewEngine(controller.Options{})
	sw, wg := handshake(t, engine, 0x2)
	defer func() {
		sw.Close()
		wg.Wait()
	}()

	_, err := sw.Write(openflow.MakePacketIn(8, 77, 1, 0, unicastFrame(t)))
	require.NoError(t, err)
	msg, err := openflow.ReadMessage(sw)
	require.NoError(t, err)
	require.Equal(t, openflow.OFPT_FLOW_MOD, msg.Type())

	// The next message must be the echo reply, not a packet-out.
	_, err = sw.Write(openflow.MakeHeader(openflow.OFPT_ECHO_REQUEST, 42))
	require.NoError(t, err)
	rep, err := openflow.ReadMessage(sw)
	require.NoError(t, err)
	assert.Equal(t, openflow.OFPT_ECHO_REPLY, rep.Type())
	assert.Equal(t, uint32(42), rep.Xid())
}

func TestConnPacketInBeforeFeatures(t *testing.T) {
	engine := controller.NewEngine(controller.Options{})
	sw, wg := startConn(t, engine)
	defer func() {
		sw.Close()
		wg.Wait()
	}()

	_, err := sw.Write(openflow.MakePacketIn(1, openflow.OFP_NO_BUFFER, 1, 0, unicastFrame(t)))
	require.NoError(t, err)
	_, err = sw.Write(openflow.MakeHeader(openflow.OFPT_ECHO_REQUEST, 9))
	require.NoError(t, err)

	rep, err := openflow.ReadMessage(sw)
	require.NoError(t, err)
	assert.Equal(t, openflow.OFPT_ECHO_REPLY, rep.Type())
	assert.False(t, engine.HasSwitch(0))
}

func TestReconnectSurvivesOldTeardown(t *testing.T) {
	engine := controller.NewEngine(controller.Options{})
	oldSw, oldWg := handshake(t, engine, 0x5)
	newSw, newWg := handshake(t, engine, 0x5)
	defer func() {
		newSw.Close()
		newWg.Wait()
	}()

	// The echo reply proves the new connection has processed its features reply.
	_, err := newSw.Write(openflow.MakeHeader(openflow.OFPT_ECHO_REQUEST, 11))
	require.NoError(t, err)
	rep, err := openflow.ReadMessage(newSw)
	require.NoError(t, err)
	require.Equal(t, openflow.OFPT_ECHO_REPLY, rep.Type())

	require.NoError(t, oldSw.Close())
	oldWg.Wait()
	assert.True(t, engine.HasSwitch(0x5))

	_, err = newSw.Write(openflow.MakePacketIn(3, 9, 1, 0, unicastFrame(t)))
	require.NoError(t, err)
	msg, err := openflow.ReadMessage(newSw)
	require.NoError(t, err)
	assert.Equal(t, openflow.OFPT_FLOW_MOD, msg.Type())
}

func TestSilentSwitchIsDropped(t *testing.T) {
	engine := controller.NewEngine(controller.Options{})
	srvSide, sw := net.Pipe()
	defer sw.Close()
	c := newConn(srvSide, engine, 20*time.Millisecond)
	var wg sync.WaitGroup
	wg.Add(1)
	go c.serve(&wg)

	for i := 0; i < 2; i++ {
		_, err := openflow.ReadMessage(sw)
		require.NoError(t, err)
	}
	_, err := sw.Write(openflow.MakeFeaturesReply(2, 0x6, 0, 1))
	require.NoError(t, err)

	// Read echo requests without answering until the controller hangs up.
	echoes := 0
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := openflow.ReadMessage(sw)
		if err != nil {
			break
		}
		if msg.Type() == openflow.OFPT_ECHO_REQUEST {
			echoes++
		}
	}
	wg.Wait()
	assert.GreaterOrEqual(t, echoes, 1)
	assert.False(t, engine.HasSwitch(0x6))
}

func TestServerAcceptsSwitch(t *testing.T) {
	engine := controller.NewEngine(controller.Options{})
	srv := NewServer(&factory.OpenFlow{Addr: "127.0.0.1:0", EchoInterval: time.Hour}, engine)

	var wg sync.WaitGroup
	require.NoError(t, srv.Start(&wg))

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer nc.Close()

	hello, err := openflow.ReadMessage(nc)
	require.NoError(t, err)
	assert.Equal(t, openflow.OFPT_HELLO, hello.Type())
	_, err = openflow.ReadMessage(nc)
	require.NoError(t, err)

	_, err = nc.Write(openflow.MakeFeaturesReply(2, 0xabc, 256, 1))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return engine.HasSwitch(0xabc) }, time.Second, 5*time.Millisecond)

	srv.Close()
	wg.Wait()
	assert.False(t, engine.HasSwitch(0xabc))
}
