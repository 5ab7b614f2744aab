// Package session is the client-side view of message board membership. It
// gates typed input so that illegal command sequences never reach the wire,
// and it applies inbound events to local state before they are rendered.
package session

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/cyberinferno/msgboard/protocol"
)

// State is the client's membership state.
type State int

const (
	Disconnected State = iota // No server recorded
	Connected                 // Joined, no handle
	Registered                // Joined with a handle
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connected:
		return "Connected"
	case Registered:
		return "Registered"
	default:
		return "Unknown"
	}
}

// Local messages rendered without any network effect.
const (
	TextInvalidCommand  = "Invalid Command"
	TextAlreadyJoined   = "Error: You are already connected to a server."
	TextJoinFailed      = "Error: Connection to the Message Board Server has failed! Please check IP Address and Port Number."
	TextJoinFirst       = "Error: You must join a server before sending any other commands."
	TextLeaveFailed     = "Error: Disconnection failed. Please connect to the server first."
	TextMessageTooLarge = "Error: Message is too long to send."
)

// HelpText lists the interactive commands.
const HelpText = `1. Connect to server application: /join <server_ip_add> <port>
2. Disconnect to the server application:  /leave
3. Register a unique handle or alias: /register <handle>
4. Send message to all: /all <message>
5. Send direct message to a single handle:  /msg <handle> <message>`

// LineKind classifies a rendered line so the front end can style it.
type LineKind int

const (
	KindInfo      LineKind = iota // Server Info text
	KindError                     // Local validation error
	KindHelp                      // Help text
	KindBroadcast                 // A broadcast from some handle
	KindDirectIn                  // A direct message received
	KindDirectOut                 // The echo of a direct message sent
)

// Line is one piece of output for the user.
type Line struct {
	Kind LineKind
	Text string
}

// Action is the outcome of gating one input line: lines to render locally
// and, when Payload is non-nil, one datagram to send to To.
type Action struct {
	Lines   []Line
	Command protocol.Command
	Payload []byte
	To      netip.AddrPort
}

// Sends reports whether the action carries a datagram.
func (a Action) Sends() bool {
	return a.Payload != nil
}

// ResolveFunc turns the host and port typed at /join into a server address.
type ResolveFunc func(host, port string) (netip.AddrPort, error)

// ResolveUDP resolves host and port with the platform resolver.
func ResolveUDP(host, port string) (netip.AddrPort, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		return netip.AddrPort{}, err
	}

	ap := udpAddr.AddrPort()
	if ap.Port() == 0 || !ap.Addr().IsValid() || ap.Addr().IsUnspecified() {
		return netip.AddrPort{}, fmt.Errorf("unusable server address %s", ap)
	}

	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// Session holds the client's server address and handle. It is shared by the
// input loop and the receive loop and is safe for concurrent use.
type Session struct {
	resolve ResolveFunc

	mu        sync.Mutex
	server    netip.AddrPort
	connected bool
	handle    string
}

// New returns a Disconnected session. A nil resolve uses ResolveUDP.
func New(resolve ResolveFunc) *Session {
	if resolve == nil {
		resolve = ResolveUDP
	}

	return &Session{resolve: resolve}
}

// State returns the current membership state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case !s.connected:
		return Disconnected
	case s.handle == "":
		return Connected
	default:
		return Registered
	}
}

// Server returns the address recorded at join time.
func (s *Session) Server() (netip.AddrPort, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server, s.connected
}

// Handle returns the local handle, if any.
func (s *Session) Handle() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.handle != ""
}

// Gate validates one line of user input against the current state and
// returns what to render and what to send. Local errors never produce a
// datagram. Usage errors for commands that need server context are sent to
// the server as ClientError so it can echo them back; when there is no server
// to send to they are reported locally instead.
func (s *Session) Gate(line string) Action {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Action{}
	}

	if tokens[0] == "/join" {
		return s.join(tokens)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch tokens[0] {
	case "/leave":
		return s.leave(tokens)
	case "/register":
		return s.register(tokens)
	case "/all":
		return s.all(tokens)
	case "/msg":
		return s.msg(tokens)
	case "/?":
		return Action{Lines: []Line{{Kind: KindHelp, Text: HelpText}}}
	default:
		return localError(TextInvalidCommand)
	}
}

func (s *Session) join(tokens []string) Action {
	if len(tokens) != 3 {
		return localError(protocol.UsageJoin)
	}

	if s.State() != Disconnected {
		return localError(TextAlreadyJoined)
	}

	// Resolution may wait on DNS, so it runs without the lock that Receive
	// needs.
	server, err := s.resolve(tokens[1], tokens[2])
	if err != nil {
		return localError(TextJoinFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return localError(TextAlreadyJoined)
	}

	action := s.sendLocked(server, protocol.Join{})
	if action.Sends() {
		s.server = server
		s.connected = true
	}

	return action
}

func (s *Session) leave(tokens []string) Action {
	if !s.connected {
		return localError(TextLeaveFailed)
	}

	if len(tokens) != 1 {
		return s.sendLocked(s.server, protocol.ClientError{Text: protocol.UsageLeave})
	}

	action := s.sendLocked(s.server, protocol.Leave{})
	s.resetLocked()
	return action
}

func (s *Session) register(tokens []string) Action {
	if !s.connected {
		return localError(TextJoinFirst)
	}

	if len(tokens) != 2 {
		return s.sendLocked(s.server, protocol.ClientError{Text: protocol.UsageRegister})
	}

	if s.handle != "" {
		return localError(protocol.TextCannotChangeHandle)
	}

	// The handle is recorded before the server answers so that a second
	// /register is refused locally; a registration failure clears it.
	action := s.sendLocked(s.server, protocol.Register{Handle: tokens[1]})
	if action.Sends() {
		s.handle = tokens[1]
	}

	return action
}

func (s *Session) all(tokens []string) Action {
	if !s.connected {
		return localError(TextJoinFirst)
	}

	if len(tokens) < 2 {
		return s.sendLocked(s.server, protocol.ClientError{Text: protocol.UsageAll})
	}

	if s.handle == "" {
		return s.sendLocked(s.server, protocol.ClientError{Text: protocol.TextRegisterFirst})
	}

	return s.sendLocked(s.server, protocol.Broadcast{
		Handle: s.handle,
		Text:   strings.Join(tokens[1:], " "),
	})
}

func (s *Session) msg(tokens []string) Action {
	if !s.connected {
		return localError(TextJoinFirst)
	}

	if len(tokens) < 3 {
		return s.sendLocked(s.server, protocol.ClientError{Text: protocol.UsageMsg})
	}

	if s.handle == "" {
		return s.sendLocked(s.server, protocol.ClientError{Text: protocol.TextRegisterFirst})
	}

	return s.sendLocked(s.server, protocol.DirectMessage{
		FromHandle: s.handle,
		ToHandle:   tokens[1],
		Text:       strings.Join(tokens[2:], " "),
	})
}

// sendLocked encodes cmd for to. An encoding failure becomes a local error
// and no state changes. A message whose routed event would not fit in a
// datagram is refused too, since the server could not deliver it.
func (s *Session) sendLocked(to netip.AddrPort, cmd protocol.Command) Action {
	payload, err := protocol.EncodeCommand(cmd)
	if err != nil {
		if errors.Is(err, protocol.ErrPayloadTooLarge) {
			return localError(TextMessageTooLarge)
		}
		return localError("Error: " + err.Error())
	}

	if ev, ok := protocol.EventFor(cmd); ok && !protocol.Deliverable(ev) {
		return localError(TextMessageTooLarge)
	}

	return Action{Command: cmd, Payload: payload, To: to}
}

func (s *Session) resetLocked() {
	s.server = netip.AddrPort{}
	s.connected = false
	s.handle = ""
}

// Receive applies an inbound event to the session and returns the lines to
// render. A registration failure clears the local handle. Broadcasts are
// only shown to a registered viewer.
func (s *Session) Receive(ev protocol.Event) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case protocol.Info:
		if e.Text == protocol.TextRegistrationFailed {
			s.handle = ""
		}
		return []Line{{Kind: KindInfo, Text: e.Text}}
	case protocol.BroadcastEvent:
		if s.handle == "" {
			return nil
		}
		return []Line{{Kind: KindBroadcast, Text: e.FromHandle + ": " + e.Text}}
	case protocol.DirectEvent:
		if e.IsSenderCopy {
			return []Line{{Kind: KindDirectOut, Text: "[To " + e.ToHandle + "]: " + e.Text}}
		}
		return []Line{{Kind: KindDirectIn, Text: "[From " + e.FromHandle + "]: " + e.Text}}
	default:
		return nil
	}
}

// Shutdown resets the session for process exit.
//
// Returns:
//   - The server address and true if the session was connected, so the
//     caller can send a best-effort Leave
func (s *Session) Shutdown() (netip.AddrPort, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return netip.AddrPort{}, false
	}

	server := s.server
	s.resetLocked()
	return server, true
}

func localError(text string) Action {
	return Action{Lines: []Line{{Kind: KindError, Text: text}}}
}
