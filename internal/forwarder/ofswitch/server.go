// Package ofswitch accepts OpenFlow 1.0 switch connections and binds each
// one to the controller engine.
package ofswitch

import (
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carrodher/loadBalancer/internal/controller"
	"github.com/carrodher/loadBalancer/internal/logger"
	"github.com/carrodher/loadBalancer/pkg/factory"
)

const (
	RECEIVE_CHANNEL_LEN = 64
	// a switch that sends nothing for this many echo intervals is dropped
	maxMissedEchoes = 2
)

type Server struct {
	listen       string
	echoInterval time.Duration
	engine       *controller.Engine
	ln           net.Listener
	mu           sync.Mutex // guards ln and conns
	conns        map[*Conn]struct{}
	log          *logrus.Entry
}

func NewServer(cfg *factory.OpenFlow, engine *controller.Engine) *Server {
	interval := cfg.EchoInterval
	if interval <= 0 {
		interval = factory.LbDefaultEchoInterval
	}
	return &Server{
		listen:       cfg.Addr,
		echoInterval: interval,
		engine:       engine,
		conns:        make(map[*Conn]struct{}),
		log:          logger.OfLog.WithField(logger.FieldListenAddr, cfg.Addr),
	}
}

func (s *Server) Start(wg *sync.WaitGroup) error {
	s.log.Infoln("starting openflow server")
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	wg.Add(1)
	go s.main(wg)
	s.log.Infoln("openflow server started")
	return nil
}

// Addr is the bound listen address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) main(wg *sync.WaitGroup) {
	defer func() {
		if p := recover(); p != nil {
			// Print stack for panic to log. Fatalf() will let program exit.
			s.log.Fatalf("panic: %v\n%s", p, string(debug.Stack()))
		}
		s.log.Infoln("openflow server stopped")
		wg.Done()
	}()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			s.log.Debugf("accept: %+v", err)
			return
		}
		c := s.newConn(nc)
		wg.Add(1)
		go c.serve(wg)
	}
}

func (s *Server) newConn(nc net.Conn) *Conn {
	c := newConn(nc, s.engine, s.echoInterval)
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	c.onClose = func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}
	return c
}

// Close stops the listener and every switch connection.
func (s *Server) Close() {
	s.log.Infoln("stopping openflow server")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.log.Errorf("stop openflow server err: %+v", err)
		}
	}
	for c := range s.conns {
		c.Close()
	}
}
