package factory

import (
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/carrodher/loadBalancer/internal/logger"
)

const (
	LbDefaultConfigPath      = "./config/lbcfg.yaml" // default config file
	LbOpenFlowDefaultAddr    = "0.0.0.0:6633"        // OpenFlow 1.0 listener
	LbDefaultEchoInterval    = 5 * time.Second
	LbMetricsDefaultAddr     = "0.0.0.0:9100"
	LbP4DefaultDeviceID      = 1
	LbP4DefaultPortMetaID    = 1
	LbP4DefaultTableName     = "IngressPipeImpl.l2_flow_table"
	LbP4DefaultOutputAction  = "IngressPipeImpl.set_egress_port"
	LbP4DefaultFloodAction   = "IngressPipeImpl.flood"
	LbMaxServerNumber        = 0xff00
	maxLearningTableCapacity = 1 << 24
)

const (
	DriverOpenFlow  = "openflow"
	DriverP4Runtime = "p4runtime"
)

type Config struct {
	Version     string      `yaml:"version"     valid:"required,in(1.0.0)"`
	Description string      `yaml:"description" valid:"optional"`
	Controller  *Controller `yaml:"controller"  valid:"required"`
	Southbound  *Southbound `yaml:"southbound"  valid:"optional"`
	OpenFlow    *OpenFlow   `yaml:"openflow"    valid:"optional"`
	P4Runtime   *P4Runtime  `yaml:"p4runtime"   valid:"optional"`
	Metrics     *Metrics    `yaml:"metrics"     valid:"optional"`
	Logger      *Logger     `yaml:"logger"      valid:"required"`
}

type Controller struct {
	// ServerNumber is the backend pool size; 0 selects the built-in default.
	ServerNumber  int            `yaml:"serverNumber"  valid:"optional"`
	LearningTable *LearningTable `yaml:"learningTable" valid:"optional"`
}

type LearningTable struct {
	// Capacity 0 keeps every learned station forever.
	Capacity int `yaml:"capacity" valid:"optional"`
}

type Southbound struct {
	Driver string `yaml:"driver" valid:"required,in(openflow|p4runtime)"`
}

type OpenFlow struct {
	Addr         string        `yaml:"addr"         valid:"required,dialstring"`
	EchoInterval time.Duration `yaml:"echoInterval" valid:"optional"`
}

type P4Runtime struct {
	GRPC                  string `yaml:"grpc"                  valid:"required,dialstring"`
	DeviceID              uint64 `yaml:"deviceID"              valid:"optional"`
	ElectionID            uint64 `yaml:"electionID"            valid:"optional"`
	P4Info                string `yaml:"p4info"                valid:"required"`
	DeviceConfig          string `yaml:"deviceConfig"          valid:"optional"`
	Table                 string `yaml:"table"                 valid:"optional"`
	OutputAction          string `yaml:"outputAction"          valid:"optional"`
	FloodAction           string `yaml:"floodAction"           valid:"optional"`
	IngressPortMetadataID uint32 `yaml:"ingressPortMetadataID" valid:"optional"`
	EgressPortMetadataID  uint32 `yaml:"egressPortMetadataID"  valid:"optional"`
}

type Metrics struct {
	Enable bool   `yaml:"enable" valid:"optional"`
	Addr   string `yaml:"addr"   valid:"optional,dialstring"`
}

type Logger struct {
	Enable       bool   `yaml:"enable"       valid:"optional"`
	Level        string `yaml:"level"        valid:"required,in(trace|debug|info|warn|error|fatal|panic)"`
	ReportCaller bool   `yaml:"reportCaller" valid:"optional"`
}

func (c *Config) GetVersion() string {
	return c.Version
}

// Validate checks struct tags and the ranges govalidator cannot express.
func (c *Config) Validate() (bool, error) {
	if ok, err := govalidator.ValidateStruct(c); !ok {
		return false, errors.Wrap(err, "invalid config")
	}
	if n := c.Controller.ServerNumber; n < 0 || n > LbMaxServerNumber {
		return false, errors.Errorf("controller.serverNumber %d out of range [0, %d]", n, LbMaxServerNumber)
	}
	if lt := c.Controller.LearningTable; lt != nil && (lt.Capacity < 0 || lt.Capacity > maxLearningTableCapacity) {
		return false, errors.Errorf("controller.learningTable.capacity %d out of range", lt.Capacity)
	}
	if c.Southbound != nil && c.Southbound.Driver == DriverP4Runtime && c.P4Runtime == nil {
		return false, errors.Errorf("southbound driver %q needs a p4runtime section", DriverP4Runtime)
	}
	return true, nil
}

// SetDefaults fills every optional section so that callers never see nil.
func (c *Config) SetDefaults() {
	if c.Description == "" {
		c.Description = "packet-in load balancer"
	}
	if c.Controller == nil {
		c.Controller = &Controller{}
	}
	if c.Controller.LearningTable == nil {
		c.Controller.LearningTable = &LearningTable{}
	}
	if c.Southbound == nil {
		c.Southbound = &Southbound{Driver: DriverOpenFlow}
	}
	if c.OpenFlow == nil {
		c.OpenFlow = &OpenFlow{Addr: LbOpenFlowDefaultAddr}
	}
	if c.OpenFlow.EchoInterval == 0 {
		c.OpenFlow.EchoInterval = LbDefaultEchoInterval
	}
	if p := c.P4Runtime; p != nil {
		if p.DeviceID == 0 {
			p.DeviceID = LbP4DefaultDeviceID
		}
		if p.ElectionID == 0 {
			p.ElectionID = 1
		}
		if p.Table == "" {
			p.Table = LbP4DefaultTableName
		}
		if p.OutputAction == "" {
			p.OutputAction = LbP4DefaultOutputAction
		}
		if p.FloodAction == "" {
			p.FloodAction = LbP4DefaultFloodAction
		}
		if p.IngressPortMetadataID == 0 {
			p.IngressPortMetadataID = LbP4DefaultPortMetaID
		}
		if p.EgressPortMetadataID == 0 {
			p.EgressPortMetadataID = LbP4DefaultPortMetaID
		}
	}
	if c.Metrics == nil {
		c.Metrics = &Metrics{}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = LbMetricsDefaultAddr
	}
	if c.Logger == nil {
		c.Logger = &Logger{Enable: true, Level: "info"}
	}
}

func (c *Config) Print() {
	spew.Config.Indent = "\t"
	str := spew.Sdump(c)
	logger.CfgLog.Infof("==================================================")
	logger.CfgLog.Infof("%s", str)
	logger.CfgLog.Infof("==================================================")
}
