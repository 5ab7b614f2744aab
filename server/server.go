// Package server assembles the message board server: a datagram endpoint, the
// membership table and the router, with logging and metrics around them.
package server

import (
	"context"
	"net/netip"
	"time"

	"github.com/cyberinferno/msgboard/logger"
	"github.com/cyberinferno/msgboard/membership"
	"github.com/cyberinferno/msgboard/metrics"
	"github.com/cyberinferno/msgboard/protocol"
	"github.com/cyberinferno/msgboard/router"
	"github.com/cyberinferno/msgboard/udpserver"
)

// Options configures a Server.
type Options struct {
	// Addr is the UDP "host:port" to listen on.
	Addr string

	// IdleTTL removes members that stay silent this long. Zero keeps members
	// until they leave.
	IdleTTL time.Duration

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Server is one message board instance.
type Server struct {
	log     logger.Logger
	metrics *metrics.Metrics
	members *membership.Table
	udp     *udpserver.UDPServer
}

// New builds a Server. Nothing is bound until Start.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{log: log, metrics: opts.Metrics}
	s.members = membership.New(membership.Options{
		IdleTTL:   opts.IdleTTL,
		OnRemoved: s.memberRemoved,
	})

	s.udp = &udpserver.UDPServer{
		Logger:          log,
		Name:            "msgboard",
		Addr:            opts.Addr,
		MaxDatagramSize: protocol.MaxDatagramSize,
		OnPanic:         func(any) { s.metrics.HandlerPanic() },
		OnDrop:          s.metrics.Dropped,
	}

	handler := NewHandler(log, router.New(s.members), s.udp, s.metrics)
	s.udp.Handler = func(ctx context.Context, d udpserver.Datagram) {
		handler.Handle(ctx, d)
		s.metrics.SetMembers(s.members.Len())
	}

	return s
}

// Start binds the socket and starts receiving.
func (s *Server) Start(ctx context.Context) error {
	return s.udp.Start(ctx)
}

// Stop closes the socket and waits for in-flight datagrams.
func (s *Server) Stop() {
	s.udp.Stop()
}

// Run starts the server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// LocalAddr returns the bound address.
func (s *Server) LocalAddr() netip.AddrPort {
	return s.udp.LocalAddr()
}

// Members returns the number of joined addresses.
func (s *Server) Members() int {
	return s.members.Len()
}

func (s *Server) memberRemoved(entry membership.Entry, reason membership.RemovalReason) {
	s.log.Info("member removed",
		logger.Addr(entry.Addr),
		logger.Field{Key: "handle", Value: entry.Handle},
		logger.Field{Key: "reason", Value: reason.String()},
	)
	s.metrics.SetMembers(s.members.Len())
}
