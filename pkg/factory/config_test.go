package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	cfg, err := ReadConfig("testdata/openflow.yaml")
	require.NoError(t, err)

	assert.Equal(t, "1.0.0", cfg.GetVersion())
	assert.Equal(t, 6, cfg.Controller.ServerNumber)
	assert.Equal(t, 128, cfg.Controller.LearningTable.Capacity)
	assert.Equal(t, DriverOpenFlow, cfg.Southbound.Driver)
	assert.Equal(t, "127.0.0.1:6653", cfg.OpenFlow.Addr)
	assert.Equal(t, 2*time.Second, cfg.OpenFlow.EchoInterval)
	assert.True(t, cfg.Metrics.Enable)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Nil(t, cfg.P4Runtime)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("version: 1.0.0\ncontroller: {}\nlogger:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Controller.ServerNumber)
	assert.Equal(t, 0, cfg.Controller.LearningTable.Capacity)
	assert.Equal(t, DriverOpenFlow, cfg.Southbound.Driver)
	assert.Equal(t, LbOpenFlowDefaultAddr, cfg.OpenFlow.Addr)
	assert.Equal(t, LbDefaultEchoInterval, cfg.OpenFlow.EchoInterval)
	assert.Equal(t, LbMetricsDefaultAddr, cfg.Metrics.Addr)
	assert.False(t, cfg.Metrics.Enable)
}

func TestParseConfigP4RuntimeDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
version: 1.0.0
controller: {}
southbound:
  driver: p4runtime
p4runtime:
  grpc: 127.0.0.1:50051
  p4info: lb.p4info.txt
logger:
  level: info
`))
	require.NoError(t, err)

	p := cfg.P4Runtime
	require.NotNil(t, p)
	assert.Equal(t, uint64(LbP4DefaultDeviceID), p.DeviceID)
	assert.Equal(t, uint64(1), p.ElectionID)
	assert.Equal(t, LbP4DefaultTableName, p.Table)
	assert.Equal(t, LbP4DefaultOutputAction, p.OutputAction)
	assert.Equal(t, LbP4DefaultFloodAction, p.FloodAction)
	assert.Equal(t, uint32(LbP4DefaultPortMetaID), p.IngressPortMetadataID)
	assert.Equal(t, uint32(LbP4DefaultPortMetaID), p.EgressPortMetadataID)
}

func TestParseConfigInvalid(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"bad version", "version: 9.9.9\ncontroller: {}\nlogger:\n  level: info\n"},
		{"bad level", "version: 1.0.0\ncontroller: {}\nlogger:\n  level: loud\n"},
		{"negative pool", "version: 1.0.0\ncontroller:\n  serverNumber: -1\nlogger:\n  level: info\n"},
		{"pool too large", "version: 1.0.0\ncontroller:\n  serverNumber: 70000\nlogger:\n  level: info\n"},
		{"negative capacity", "version: 1.0.0\ncontroller:\n  learningTable:\n    capacity: -5\nlogger:\n  level: info\n"},
		{"bad driver", "version: 1.0.0\ncontroller: {}\nsouthbound:\n  driver: netconf\nlogger:\n  level: info\n"},
		{"p4runtime without section", "version: 1.0.0\ncontroller: {}\nsouthbound:\n  driver: p4runtime\nlogger:\n  level: info\n"},
		{"not yaml", "version: [1.0.0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.in))
			assert.Error(t, err)
		})
	}
}
