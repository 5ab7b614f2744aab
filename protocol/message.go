// Package protocol defines the message-board wire format: the closed set of
// commands a client sends to the server, the closed set of events the server
// sends back, and the JSON codec that moves both across a single datagram.
package protocol

// MaxDatagramSize is the largest encoded payload either endpoint will send or
// accept. Messages are never fragmented.
const MaxDatagramSize = 1024

// Command is a client-to-server message. The set of implementations is closed:
// Join, Leave, Register, Broadcast, DirectMessage and ClientError.
type Command interface {
	// CommandName returns the wire tag of the command.
	CommandName() string
	isCommand()
}

// Event is a server-to-client message. The set of implementations is closed:
// Info, BroadcastEvent and DirectEvent.
type Event interface {
	// EventType returns the wire tag of the event.
	EventType() string
	isEvent()
}

// Command wire tags.
const (
	TagJoin     = "join"
	TagLeave    = "leave"
	TagRegister = "register"
	TagAll      = "all"
	TagMsg      = "msg"
	TagError    = "error"
)

// Event wire tags. Broadcast and direct events share their tag strings with
// the commands that trigger them.
const (
	TagInfo = "info"
)

// Join asks the server to add the sender's address to the membership table.
type Join struct{}

// Leave asks the server to remove the sender's address.
type Leave struct{}

// Register claims a handle for the sender's address.
type Register struct {
	Handle string
}

// Broadcast sends Text to every joined participant. Handle is the sender's
// own view of its handle; the server trusts its own table instead.
type Broadcast struct {
	Handle string
	Text   string
}

// DirectMessage sends Text to the participant holding ToHandle.
type DirectMessage struct {
	FromHandle string
	ToHandle   string
	Text       string
}

// ClientError carries a usage error detected by the client. The server echoes
// it back as an Info event.
type ClientError struct {
	Text string
}

func (Join) CommandName() string          { return TagJoin }
func (Leave) CommandName() string         { return TagLeave }
func (Register) CommandName() string      { return TagRegister }
func (Broadcast) CommandName() string     { return TagAll }
func (DirectMessage) CommandName() string { return TagMsg }
func (ClientError) CommandName() string   { return TagError }

func (Join) isCommand()          {}
func (Leave) isCommand()         {}
func (Register) isCommand()      {}
func (Broadcast) isCommand()     {}
func (DirectMessage) isCommand() {}
func (ClientError) isCommand()   {}

// Info is a free-form status line for a single participant.
type Info struct {
	Text string
}

// BroadcastEvent is one copy of a broadcast fanned out to a joined address.
type BroadcastEvent struct {
	FromHandle string
	Text       string
}

// DirectEvent is one copy of a direct message. The target receives it with
// IsSenderCopy false; the originator receives an echo with IsSenderCopy true.
type DirectEvent struct {
	FromHandle   string
	ToHandle     string
	Text         string
	IsSenderCopy bool
}

func (Info) EventType() string           { return TagInfo }
func (BroadcastEvent) EventType() string { return TagAll }
func (DirectEvent) EventType() string    { return TagMsg }

func (Info) isEvent()           {}
func (BroadcastEvent) isEvent() {}
func (DirectEvent) isEvent()    {}
