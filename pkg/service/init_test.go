package service

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrodher/loadBalancer/internal/openflow"
	"github.com/carrodher/loadBalancer/pkg/factory"
)

func testConfig(t *testing.T) *factory.Config {
	cfg, err := factory.ParseConfig([]byte(`
version: 1.0.0
controller:
  serverNumber: 2
  learningTable:
    capacity: 16
openflow:
  addr: 127.0.0.1:0
logger:
  level: error
`))
	require.NoError(t, err)
	return cfg
}

func TestLBStartTerminate(t *testing.T) {
	lb, err := NewLB(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, 2, lb.Engine().ServerNumber())

	require.NoError(t, lb.Start())
	lb.Terminate()
}

func TestLBStartFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Southbound.Driver = factory.DriverP4Runtime
	cfg.P4Runtime = &factory.P4Runtime{GRPC: "127.0.0.1:1", P4Info: "testdata/missing.p4info.txt"}

	lb, err := NewLB(cfg)
	require.NoError(t, err)
	assert.Error(t, lb.Start())
}

func TestLBServesSwitch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(t)
	cfg.OpenFlow.Addr = addr
	lb, err := NewLB(cfg)
	require.NoError(t, err)
	require.NoError(t, lb.Start())
	defer lb.Terminate()

	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer nc.Close()
	for i := 0; i < 2; i++ {
		_, err = openflow.ReadMessage(nc)
		require.NoError(t, err)
	}
	_, err = nc.Write(openflow.MakeFeaturesReply(1, 0x42, 0, 1))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return lb.Engine().HasSwitch(0x42) }, time.Second, 5*time.Millisecond)
}
