// Package udpclient provides an event-driven datagram endpoint for message
// board clients. Received payloads and receive errors are reported through
// registered handlers; the receive loop waits in bounded slices so that it can
// observe cancellation promptly.
package udpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"
)

// DataReceivedEvent is emitted for every datagram read from the socket.
type DataReceivedEvent struct {
	Data      []byte         // The payload; owned by the handler
	From      netip.AddrPort // The sender
	Timestamp time.Time      // When the datagram was read
}

// ErrorEvent is emitted when a receive fails for a reason other than the
// bounded wait expiring.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// DataReceivedHandler is called for each received datagram.
type DataReceivedHandler func(event DataReceivedEvent)

// ErrorHandler is called for each receive error.
type ErrorHandler func(event ErrorEvent)

// Config holds configuration for the client endpoint.
type Config struct {
	// LocalAddr is the "host:port" to bind; empty binds an ephemeral port on
	// all interfaces.
	LocalAddr string
	// ReadTimeout bounds each wait for a datagram. The loop re-checks its
	// context after every expiry.
	ReadTimeout time.Duration
	// ReadBufferSize is the largest datagram accepted; larger ones are truncated
	// by the kernel and reported as errors.
	ReadBufferSize int
	// WriteTimeout is the max duration for a single send; 0 means no timeout.
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with a one second receive wait and a
// 1024-byte datagram limit.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:    time.Second,
		ReadBufferSize: 1024,
		WriteTimeout:   5 * time.Second,
	}
}

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("udpclient: closed")

// ErrTruncated is reported when a datagram exceeded ReadBufferSize.
var ErrTruncated = errors.New("udpclient: datagram truncated")

// UDPClient owns one unconnected datagram socket. Sends may target any
// address; the receive loop accepts datagrams from anyone. It is safe for
// concurrent use.
type UDPClient struct {
	config Config
	conn   *net.UDPConn

	onDataReceived DataReceivedHandler
	onError        ErrorHandler

	mu     sync.RWMutex
	closed bool
}

// New binds the client socket.
//
// Parameters:
//   - config: Socket settings (e.g. from DefaultConfig)
//
// Returns:
//   - The client, or an error if the local address cannot be bound
func New(config Config) (*UDPClient, error) {
	var local *net.UDPAddr
	if config.LocalAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", config.LocalAddr)
		if err != nil {
			return nil, fmt.Errorf("udpclient: resolve %s: %w", config.LocalAddr, err)
		}
		local = addr
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("udpclient: bind: %w", err)
	}

	if config.ReadTimeout <= 0 {
		config.ReadTimeout = time.Second
	}

	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 1024
	}

	return &UDPClient{config: config, conn: conn}, nil
}

// OnDataReceived registers the handler for incoming datagrams. Repeated calls
// replace the previous handler. Handlers run on the receive loop goroutine, in
// arrival order, and must not block for long.
func (c *UDPClient) OnDataReceived(handler DataReceivedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataReceived = handler
}

// OnError registers the handler for receive errors. Repeated calls replace
// the previous handler.
func (c *UDPClient) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// LocalAddr returns the bound address.
func (c *UDPClient) LocalAddr() netip.AddrPort {
	ap := c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// SendTo writes data as a single datagram to to. Delivery is not guaranteed.
//
// Parameters:
//   - to: The destination
//   - data: The payload
//
// Returns:
//   - ErrClosed after Close, or the write error
func (c *UDPClient) SendTo(to netip.AddrPort, data []byte) error {
	if c.isClosed() {
		return ErrClosed
	}

	if c.config.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}
	}

	if _, err := c.conn.WriteToUDPAddrPort(data, to); err != nil {
		return fmt.Errorf("udpclient: send to %s: %w", to, err)
	}

	return nil
}

// Run is the receive loop. It returns nil when ctx is cancelled or the client
// is closed. Receive errors are reported to the error handler and the loop
// continues.
func (c *UDPClient) Run(ctx context.Context) error {
	buf := make([]byte, c.config.ReadBufferSize+1)
	for {
		if ctx.Err() != nil || c.isClosed() {
			return nil
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			if c.isClosed() {
				return nil
			}
			c.emitError(err)
			return fmt.Errorf("udpclient: set read deadline: %w", err)
		}

		n, from, err := c.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if c.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			c.emitError(err)
			continue
		}

		if n > c.config.ReadBufferSize {
			c.emitError(fmt.Errorf("%w: from %s", ErrTruncated, from))
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		c.emitDataReceived(DataReceivedEvent{
			Data:      data,
			From:      netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
			Timestamp: time.Now(),
		})
	}
}

// Close releases the socket. Idempotent.
func (c *UDPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.conn.Close()
}

func (c *UDPClient) emitDataReceived(event DataReceivedEvent) {
	c.mu.RLock()
	handler := c.onDataReceived
	c.mu.RUnlock()

	if handler != nil {
		handler(event)
	}
}

func (c *UDPClient) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *UDPClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
