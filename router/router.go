// Package router turns one decoded command into the events it causes. It is
// the only server component that reads or mutates the membership table.
package router

import (
	"errors"
	"net/netip"

	"github.com/samber/lo"

	"github.com/cyberinferno/msgboard/membership"
	"github.com/cyberinferno/msgboard/protocol"
)

// Members is the view of the membership table the router needs. Every method
// must be individually atomic; *membership.Table satisfies it.
type Members interface {
	Join(addr netip.AddrPort) membership.JoinResult
	Leave(addr netip.AddrPort) bool
	Register(addr netip.AddrPort, handle string) error
	Resolve(handle string) (netip.AddrPort, bool)
	Lookup(addr netip.AddrPort) (membership.Entry, bool)
	Addresses() []netip.AddrPort
	Touch(addr netip.AddrPort)
}

// Outbound is one event addressed to one participant.
type Outbound struct {
	To    netip.AddrPort
	Event protocol.Event
}

// Router dispatches commands against a membership table.
type Router struct {
	members Members
}

// New returns a Router over members.
func New(members Members) *Router {
	return &Router{members: members}
}

// Route applies cmd, sent from from, to the membership table and returns the
// events to deliver. The result is never empty for a known command: every
// failure is reported to the sender as an Info event. Addresses are taken from
// the table, never from client-supplied fields.
//
// Parameters:
//   - cmd: The decoded command
//   - from: The datagram's source address
//
// Returns:
//   - The events to send, in no guaranteed delivery order
func (r *Router) Route(cmd protocol.Command, from netip.AddrPort) []Outbound {
	switch c := cmd.(type) {
	case protocol.Join:
		return r.join(from)
	case protocol.Leave:
		return r.leave(from)
	case protocol.Register:
		r.members.Touch(from)
		return r.register(from, c.Handle)
	case protocol.Broadcast:
		r.members.Touch(from)
		return r.broadcast(from, c.Text)
	case protocol.DirectMessage:
		r.members.Touch(from)
		return r.direct(from, c.ToHandle, c.Text)
	case protocol.ClientError:
		r.members.Touch(from)
		return reply(from, c.Text)
	default:
		return nil
	}
}

func (r *Router) join(from netip.AddrPort) []Outbound {
	if r.members.Join(from) == membership.AlreadyJoined {
		r.members.Touch(from)
		return reply(from, protocol.TextAlreadyJoined)
	}

	return reply(from, protocol.TextJoined)
}

func (r *Router) leave(from netip.AddrPort) []Outbound {
	if !r.members.Leave(from) {
		return reply(from, protocol.TextNotJoined)
	}

	return reply(from, protocol.TextLeft)
}

func (r *Router) register(from netip.AddrPort, handle string) []Outbound {
	err := r.members.Register(from, handle)
	switch {
	case err == nil:
		return reply(from, protocol.Welcome(handle))
	case errors.Is(err, membership.ErrNotJoined):
		return reply(from, protocol.TextConnectFirst)
	case errors.Is(err, membership.ErrHandleTaken):
		return reply(from, protocol.TextRegistrationFailed)
	case errors.Is(err, membership.ErrAlreadyRegistered):
		return reply(from, protocol.TextCannotChangeHandle)
	default:
		return reply(from, protocol.UsageRegister)
	}
}

func (r *Router) broadcast(from netip.AddrPort, text string) []Outbound {
	sender, ok := r.sender(from)
	if !ok {
		return sender.guard
	}

	ev := protocol.BroadcastEvent{FromHandle: sender.handle, Text: text}
	if !protocol.Deliverable(ev) {
		return reply(from, protocol.TextMessageTooLong)
	}

	return lo.Map(r.members.Addresses(), func(to netip.AddrPort, _ int) Outbound {
		return Outbound{To: to, Event: ev}
	})
}

func (r *Router) direct(from netip.AddrPort, toHandle, text string) []Outbound {
	sender, ok := r.sender(from)
	if !ok {
		return sender.guard
	}

	target, found := r.members.Resolve(toHandle)
	if !found {
		return reply(from, protocol.TextHandleNotFound)
	}

	ev := protocol.DirectEvent{FromHandle: sender.handle, ToHandle: toHandle, Text: text}
	echo := ev
	echo.IsSenderCopy = true
	if !protocol.Deliverable(ev) || !protocol.Deliverable(echo) {
		return reply(from, protocol.TextMessageTooLong)
	}

	return []Outbound{
		{To: target, Event: ev},
		{To: from, Event: echo},
	}
}

type senderInfo struct {
	handle string
	guard  []Outbound
}

// sender resolves the registered handle of from. When from is not joined or
// not registered, ok is false and guard holds the reply for the sender.
func (r *Router) sender(from netip.AddrPort) (info senderInfo, ok bool) {
	entry, joined := r.members.Lookup(from)
	if !joined {
		return senderInfo{guard: reply(from, protocol.TextConnectFirst)}, false
	}

	if !entry.Registered() {
		return senderInfo{guard: reply(from, protocol.TextRegisterFirst)}, false
	}

	return senderInfo{handle: entry.Handle}, true
}

func reply(to netip.AddrPort, text string) []Outbound {
	return []Outbound{{To: to, Event: protocol.Info{Text: text}}}
}
