// Package udpserver provides a connectionless datagram server that hands each
// received datagram to its own goroutine, so a slow or failing handler never
// blocks reception of the next datagram.
package udpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/msgboard/idgenerator"
	"github.com/cyberinferno/msgboard/logger"
)

// DefaultMaxDatagramSize is used when UDPServer.MaxDatagramSize is zero.
const DefaultMaxDatagramSize = 1024

// Datagram is one received payload and its sender.
type Datagram struct {
	// Seq numbers datagrams in arrival order for log correlation. It says
	// nothing about send order.
	Seq     uint64
	From    netip.AddrPort
	Payload []byte
}

// HandlerFunc processes one datagram. It runs in its own goroutine; ctx is
// cancelled when the server stops.
type HandlerFunc func(ctx context.Context, d Datagram)

// UDPServer receives datagrams on Addr and dispatches each to Handler in a new
// goroutine. Panics inside Handler are recovered and logged; they never stop
// the receive loop.
type UDPServer struct {
	Logger  logger.Logger
	Name    string
	Addr    string
	Handler HandlerFunc

	// MaxDatagramSize bounds accepted payloads; larger datagrams are dropped.
	MaxDatagramSize int

	// OnPanic, if set, is called with the recovered value after a handler panics.
	OnPanic func(recovered any)

	// OnDrop, if set, is called when a datagram is dropped before dispatch.
	OnDrop func(reason string)

	// IdGenerator numbers datagrams; Start creates one if nil.
	IdGenerator *idgenerator.IdGenerator

	conn    *net.UDPConn
	running atomic.Bool
	cancel  context.CancelFunc
	loop    sync.WaitGroup
	workers sync.WaitGroup
}

// Start binds Addr and begins the receive loop in a goroutine.
//
// Parameters:
//   - ctx: Parent context for handlers; cancelling it does not stop the loop, Stop does
//
// Returns:
//   - An error if the server is already running or if binding Addr fails
func (s *UDPServer) Start(ctx context.Context) error {
	if s.running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", s.Addr)
	if err != nil {
		return fmt.Errorf("server %s resolve %s: %w", s.Name, s.Addr, err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.Err(err))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	if s.MaxDatagramSize <= 0 {
		s.MaxDatagramSize = DefaultMaxDatagramSize
	}

	if s.IdGenerator == nil {
		s.IdGenerator = idgenerator.NewIdGenerator(0)
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	s.conn = conn
	s.cancel = cancel
	s.running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: conn.LocalAddr().String()})

	s.loop.Add(1)
	go s.ReceiveLoop(handlerCtx)

	return nil
}

// Stop closes the socket, cancels handler contexts and waits for in-flight
// handlers to return. Safe to call when the server is not running.
func (s *UDPServer) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	_ = s.conn.Close()
	s.loop.Wait()
	s.cancel()
	s.workers.Wait()

	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name), logger.Field{Key: "datagrams", Value: s.IdGenerator.Last()})
}

// Running reports whether the receive loop is active.
func (s *UDPServer) Running() bool {
	return s.running.Load()
}

// LocalAddr returns the bound address, useful when Addr asked for port 0.
func (s *UDPServer) LocalAddr() netip.AddrPort {
	if s.conn == nil {
		return netip.AddrPort{}
	}

	ap := s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Send writes one datagram to to. It is safe for concurrent use.
//
// Parameters:
//   - to: The destination address
//   - data: The payload; sent as a single datagram
//
// Returns:
//   - An error if the server is not running or the write fails
func (s *UDPServer) Send(to netip.AddrPort, data []byte) error {
	if !s.running.Load() {
		return fmt.Errorf("server %s not running", s.Name)
	}

	if _, err := s.conn.WriteToUDPAddrPort(data, to); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}

	return nil
}

// ReceiveLoop reads datagrams until the socket is closed. Each datagram is
// copied and dispatched to Handler in its own goroutine. Transient read
// errors are logged and the loop continues.
func (s *UDPServer) ReceiveLoop(ctx context.Context) {
	defer s.loop.Done()

	// One spare byte detects datagrams the kernel truncated to fit the buffer.
	buf := make([]byte, s.MaxDatagramSize+1)
	for s.running.Load() {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server receive error", s.Name), logger.Err(err))
			continue
		}

		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		if n > s.MaxDatagramSize {
			s.Logger.Warn("oversize datagram dropped", logger.Addr(from), logger.Field{Key: "limit", Value: s.MaxDatagramSize})
			s.drop("oversize")
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		d := Datagram{Seq: s.IdGenerator.Id(), From: from, Payload: payload}
		s.workers.Add(1)
		go s.dispatch(ctx, d)
	}
}

func (s *UDPServer) dispatch(ctx context.Context, d Datagram) {
	defer s.workers.Done()
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("datagram handler panicked",
				logger.Addr(d.From),
				logger.Field{Key: "seq", Value: d.Seq},
				logger.Field{Key: "panic", Value: fmt.Sprint(r)},
				logger.Field{Key: "stack", Value: string(debug.Stack())},
			)

			if s.OnPanic != nil {
				s.OnPanic(r)
			}
		}
	}()

	s.Handler(ctx, d)
}

func (s *UDPServer) drop(reason string) {
	if s.OnDrop != nil {
		s.OnDrop(reason)
	}
}
