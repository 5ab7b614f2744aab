package server

import (
	"context"
	"errors"
	"net/netip"

	"github.com/cyberinferno/msgboard/logger"
	"github.com/cyberinferno/msgboard/metrics"
	"github.com/cyberinferno/msgboard/protocol"
	"github.com/cyberinferno/msgboard/router"
	"github.com/cyberinferno/msgboard/udpserver"
)

// Sender writes one datagram. *udpserver.UDPServer satisfies it.
type Sender interface {
	Send(to netip.AddrPort, data []byte) error
}

// Handler decodes a datagram, routes the command and sends the resulting
// events. One Handler serves every datagram concurrently.
type Handler struct {
	log     logger.Logger
	router  *router.Router
	sender  Sender
	metrics *metrics.Metrics
}

// NewHandler wires a Handler. m may be nil.
func NewHandler(log logger.Logger, r *router.Router, sender Sender, m *metrics.Metrics) *Handler {
	return &Handler{log: log, router: r, sender: sender, metrics: m}
}

// Handle processes one datagram. Undecodable payloads are logged and dropped
// without a reply. Send failures are logged and the remaining events are
// still attempted.
func (h *Handler) Handle(ctx context.Context, d udpserver.Datagram) {
	log := h.log.With(logger.Field{Key: "seq", Value: d.Seq}, logger.Addr(d.From))
	h.metrics.DatagramReceived()

	cmd, err := protocol.DecodeCommand(d.Payload)
	if err != nil {
		h.metrics.DecodeError(decodeReason(err))
		log.Warn("dropping undecodable datagram", logger.Err(err))
		return
	}

	h.metrics.Command(cmd.CommandName())
	log.Debug("command received", logger.Field{Key: "command", Value: cmd.CommandName()})

	for _, out := range h.router.Route(cmd, d.From) {
		if ctx.Err() != nil {
			log.Debug("server stopping, remaining events not sent")
			return
		}

		h.send(log, out)
	}
}

func (h *Handler) send(log logger.Logger, out router.Outbound) {
	payload, err := protocol.EncodeEvent(out.Event)
	if err != nil {
		h.metrics.SendError()
		log.Error("encode event", logger.Err(err), logger.Field{Key: "to", Value: out.To.String()})
		return
	}

	if err := h.sender.Send(out.To, payload); err != nil {
		h.metrics.SendError()
		log.Warn("send event", logger.Err(err), logger.Field{Key: "to", Value: out.To.String()})
		return
	}

	h.metrics.EventSent(out.Event.EventType())
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformed):
		return "malformed"
	case errors.Is(err, protocol.ErrUnknownTag):
		return "unknown_tag"
	case errors.Is(err, protocol.ErrMissingField):
		return "missing_field"
	default:
		return "other"
	}
}
