// Package client runs the interactive message board client: typed lines go
// through the session gate to the server, and events from the server are
// applied to the session and printed.
package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/msgboard/logger"
	"github.com/cyberinferno/msgboard/protocol"
	"github.com/cyberinferno/msgboard/session"
	"github.com/cyberinferno/msgboard/udpclient"
)

// Status notices.
const (
	TextGreeting      = "Type /? for the list of commands."
	TextDisconnecting = "Disconnecting from server."
	TextExiting       = "Exiting without joining a server."
)

// Options configures a Client.
type Options struct {
	In  io.Reader
	Out io.Writer
	Log logger.Logger

	NoColor bool

	// ReceiveTimeout bounds each wait for a datagram; the receive loop checks
	// for shutdown between waits.
	ReceiveTimeout time.Duration

	// LocalAddr binds the client socket; empty picks an ephemeral port.
	LocalAddr string

	// Resolve overrides server address resolution at /join.
	Resolve session.ResolveFunc
}

// Client is one interactive participant.
type Client struct {
	in      io.Reader
	log     logger.Logger
	session *session.Session
	printer *Printer
	udp     *udpclient.UDPClient
}

// New binds the client socket.
func New(opts Options) (*Client, error) {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}

	cfg := udpclient.DefaultConfig()
	cfg.LocalAddr = opts.LocalAddr
	cfg.ReadBufferSize = protocol.MaxDatagramSize
	if opts.ReceiveTimeout > 0 {
		cfg.ReadTimeout = opts.ReceiveTimeout
	}

	udp, err := udpclient.New(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		in:      opts.In,
		log:     log,
		session: session.New(opts.Resolve),
		printer: NewPrinter(opts.Out, opts.NoColor),
		udp:     udp,
	}
	udp.OnDataReceived(c.received)
	udp.OnError(func(ev udpclient.ErrorEvent) {
		c.log.Warn("receive failed", logger.Err(ev.Error))
	})

	return c, nil
}

// LocalAddr returns the client's bound address.
func (c *Client) LocalAddr() netip.AddrPort {
	return c.udp.LocalAddr()
}

// Session exposes the client's session state.
func (c *Client) Session() *session.Session {
	return c.session
}

// Run reads input until ctx is done or the input ends, then sends a
// best-effort Leave if still connected and releases the socket.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.printer.Println(TextGreeting)

	lines := make(chan string)
	// A blocked read cannot observe ctx; the reader goroutine exits at EOF
	// or on its next line after shutdown.
	go c.readLines(ctx, lines)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.udp.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return c.inputLoop(ctx, lines)
	})

	err := g.Wait()
	c.shutdown()
	return err
}

func (c *Client) inputLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c.Handle(line)
		}
	}
}

// Handle gates one input line, prints any local output and sends the
// resulting datagram.
func (c *Client) Handle(line string) {
	action := c.session.Gate(line)
	c.printer.Print(action.Lines...)

	if !action.Sends() {
		return
	}

	if err := c.udp.SendTo(action.To, action.Payload); err != nil {
		c.log.Warn("send failed", logger.Err(err), logger.Field{Key: "command", Value: action.Command.CommandName()})
		c.printer.Print(session.Line{Kind: session.KindError, Text: "Error: " + err.Error()})
	}
}

func (c *Client) received(ev udpclient.DataReceivedEvent) {
	event, err := protocol.DecodeEvent(ev.Data)
	if err != nil {
		c.log.Debug("dropping undecodable datagram", logger.Err(err), logger.Addr(ev.From))
		return
	}

	c.printer.Print(c.session.Receive(event)...)
}

func (c *Client) shutdown() {
	server, ok := c.session.Shutdown()
	if !ok {
		c.printer.Println(TextExiting)
	} else {
		c.printer.Println(TextDisconnecting)
		payload, err := protocol.EncodeCommand(protocol.Leave{})
		if err == nil {
			err = c.udp.SendTo(server, payload)
		}
		if err != nil {
			c.log.Warn("leave on shutdown failed", logger.Err(err))
		}
	}

	if err := c.udp.Close(); err != nil && !errors.Is(err, udpclient.ErrClosed) {
		c.log.Warn("close socket", logger.Err(err))
	}
}

// readLines feeds input lines to lines until the input ends. Lines of any
// length are passed on; the session gate reports those too long to send.
func (c *Client) readLines(ctx context.Context, lines chan<- string) {
	defer close(lines)

	reader := bufio.NewReader(c.in)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			select {
			case lines <- strings.TrimRight(line, "\r\n"):
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Warn("read input", logger.Err(err))
			}
			return
		}
	}
}
