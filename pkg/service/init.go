package service

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/carrodher/loadBalancer/internal/controller"
	"github.com/carrodher/loadBalancer/internal/forwarder"
	"github.com/carrodher/loadBalancer/internal/learning"
	"github.com/carrodher/loadBalancer/internal/logger"
	"github.com/carrodher/loadBalancer/pkg/factory"
)

type LB struct {
	cfg     *factory.Config
	reg     *prometheus.Registry
	engine  *controller.Engine
	driver  forwarder.Driver
	metrics *http.Server
	wg      sync.WaitGroup
}

func NewLB(cfg *factory.Config) (*LB, error) {
	lb := &LB{
		cfg: cfg,
		reg: prometheus.NewRegistry(),
	}
	lb.setLogger()

	table, err := learning.New(cfg.Controller.LearningTable.Capacity)
	if err != nil {
		return nil, errors.Wrap(err, "learning table")
	}
	lb.engine = controller.NewEngine(controller.Options{
		ServerNumber: cfg.Controller.ServerNumber,
		Table:        table,
		Metrics:      controller.NewMetrics(lb.reg),
	})
	return lb, nil
}

func (lb *LB) Engine() *controller.Engine {
	return lb.engine
}

func (lb *LB) setLogger() {
	cfgLogger := lb.cfg.Logger
	if cfgLogger == nil {
		return
	}
	if !cfgLogger.Enable {
		logger.SetLogLevel(logrus.PanicLevel)
		return
	}
	level, err := logrus.ParseLevel(cfgLogger.Level)
	if err != nil {
		logger.InitLog.Warnf("log level [%s] is invalid, using info", cfgLogger.Level)
		level = logrus.InfoLevel
	}
	logger.SetLogLevel(level)
	logger.SetReportCaller(cfgLogger.ReportCaller)
}

// Start brings up the metrics endpoint and the southbound driver.
func (lb *LB) Start() error {
	logger.InitLog.Infoln("starting load balancer")
	lb.cfg.Print()

	if m := lb.cfg.Metrics; m != nil && m.Enable {
		lb.startMetrics(m.Addr)
	}

	driver, err := forwarder.NewDriver(&lb.wg, lb.cfg, lb.engine)
	if err != nil {
		lb.stopMetrics()
		return err
	}
	lb.driver = driver
	logger.InitLog.Infof("load balancer started, %d servers", lb.engine.ServerNumber())
	return nil
}

// Run starts the service and blocks until SIGINT or SIGTERM.
func (lb *LB) Run() error {
	if err := lb.Start(); err != nil {
		return err
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	lb.Terminate()
	return nil
}

func (lb *LB) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(lb.reg, promhttp.HandlerOpts{}))
	lb.metrics = &http.Server{Addr: addr, Handler: mux}

	lb.wg.Add(1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				// Print stack for panic to log. Fatalf() will let program exit.
				logger.MainLog.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
			}
			lb.wg.Done()
		}()
		logger.MainLog.Infof("metrics listening on %s", addr)
		if err := lb.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.MainLog.Errorf("metrics server: %+v", err)
		}
	}()
}

func (lb *LB) stopMetrics() {
	if lb.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := lb.metrics.Shutdown(ctx); err != nil {
		logger.MainLog.Errorf("stop metrics server: %+v", err)
	}
}

func (lb *LB) Terminate() {
	logger.MainLog.Infoln("terminating load balancer")
	if lb.driver != nil {
		lb.driver.Close()
	}
	lb.stopMetrics()
	lb.wg.Wait()
	logger.MainLog.Infoln("load balancer terminated")
}
