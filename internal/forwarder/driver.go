package forwarder

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/carrodher/loadBalancer/internal/controller"
	"github.com/carrodher/loadBalancer/internal/forwarder/ofswitch"
	"github.com/carrodher/loadBalancer/internal/forwarder/p4switch"
	"github.com/carrodher/loadBalancer/internal/logger"
	"github.com/carrodher/loadBalancer/pkg/factory"
)

// Driver is a southbound transport feeding the engine.
type Driver interface {
	Close()
}

func NewDriver(wg *sync.WaitGroup, cfg *factory.Config, engine *controller.Engine) (Driver, error) {
	cfgSouth := cfg.Southbound
	if cfgSouth == nil {
		return nil, errors.Errorf("no southbound config")
	}

	logger.MainLog.Infof("starting southbound driver [%s]", cfgSouth.Driver)
	switch cfgSouth.Driver {
	case factory.DriverOpenFlow:
		if cfg.OpenFlow == nil {
			return nil, errors.Errorf("no openflow config")
		}
		srv := ofswitch.NewServer(cfg.OpenFlow, engine)
		if err := srv.Start(wg); err != nil {
			return nil, errors.Wrap(err, "start openflow server")
		}
		return srv, nil
	case factory.DriverP4Runtime:
		if cfg.P4Runtime == nil {
			return nil, errors.Errorf("no p4runtime config")
		}
		sw, err := p4switch.Open(wg, cfg.P4Runtime, engine)
		if err != nil {
			return nil, errors.Wrap(err, "open p4runtime switch")
		}
		return sw, nil
	}
	return nil, errors.Errorf("not support driver:%q", cfgSouth.Driver)
}
