package session

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/msgboard/protocol"
)

var serverAddr = netip.MustParseAddrPort("127.0.0.1:12345")

func fixedResolve(host, port string) (netip.AddrPort, error) {
	if host == "127.0.0.1" && port == "12345" {
		return serverAddr, nil
	}
	return netip.AddrPort{}, errors.New("no such host")
}

func newSession() *Session {
	return New(fixedResolve)
}

func joined(t *testing.T) *Session {
	t.Helper()
	s := newSession()
	a := s.Gate("/join 127.0.0.1 12345")
	require.True(t, a.Sends())
	return s
}

func registered(t *testing.T, handle string) *Session {
	t.Helper()
	s := joined(t)
	a := s.Gate("/register " + handle)
	require.True(t, a.Sends())
	return s
}

func decoded(t *testing.T, a Action) protocol.Command {
	t.Helper()
	require.True(t, a.Sends())
	cmd, err := protocol.DecodeCommand(a.Payload)
	require.NoError(t, err)
	return cmd
}

func assertLocalError(t *testing.T, a Action, text string) {
	t.Helper()
	assert.False(t, a.Sends())
	require.Len(t, a.Lines, 1)
	assert.Equal(t, KindError, a.Lines[0].Kind)
	assert.Equal(t, text, a.Lines[0].Text)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "Connected", Connected.String())
	assert.Equal(t, "Registered", Registered.String())
	assert.Equal(t, "Unknown", State(42).String())
}

func TestGate_Join(t *testing.T) {
	t.Run("success sends join and records server", func(t *testing.T) {
		s := newSession()
		a := s.Gate("/join 127.0.0.1 12345")

		assert.Equal(t, protocol.Join{}, decoded(t, a))
		assert.Equal(t, serverAddr, a.To)
		assert.Equal(t, Connected, s.State())
		got, ok := s.Server()
		assert.True(t, ok)
		assert.Equal(t, serverAddr, got)
	})

	t.Run("wrong arity", func(t *testing.T) {
		s := newSession()
		assertLocalError(t, s.Gate("/join 127.0.0.1"), protocol.UsageJoin)
		assertLocalError(t, s.Gate("/join 127.0.0.1 12345 extra"), protocol.UsageJoin)
		assert.Equal(t, Disconnected, s.State())
	})

	t.Run("unresolvable server", func(t *testing.T) {
		s := newSession()
		assertLocalError(t, s.Gate("/join nowhere 1"), TextJoinFailed)
		assert.Equal(t, Disconnected, s.State())
	})

	t.Run("already joined", func(t *testing.T) {
		s := joined(t)
		assertLocalError(t, s.Gate("/join 127.0.0.1 12345"), TextAlreadyJoined)
		assert.Equal(t, Connected, s.State())
	})

	t.Run("slow resolution does not block receive", func(t *testing.T) {
		release := make(chan struct{})
		s := New(func(host, port string) (netip.AddrPort, error) {
			<-release
			return serverAddr, nil
		})

		done := make(chan Action, 1)
		go func() { done <- s.Gate("/join slow.example 12345") }()

		received := make(chan []Line, 1)
		go func() { received <- s.Receive(protocol.Info{Text: "hello"}) }()

		select {
		case lines := <-received:
			assert.Equal(t, []Line{{Kind: KindInfo, Text: "hello"}}, lines)
		case <-time.After(time.Second):
			t.Fatal("Receive blocked behind address resolution")
		}
		assert.Equal(t, Disconnected, s.State())

		close(release)
		a := <-done
		assert.Equal(t, protocol.Join{}, decoded(t, a))
		assert.Equal(t, Connected, s.State())
	})
}

func TestGate_Leave(t *testing.T) {
	t.Run("not joined", func(t *testing.T) {
		s := newSession()
		assertLocalError(t, s.Gate("/leave"), TextLeaveFailed)
	})

	t.Run("sends leave and resets", func(t *testing.T) {
		s := registered(t, "alice")
		a := s.Gate("/leave")

		assert.Equal(t, protocol.Leave{}, decoded(t, a))
		assert.Equal(t, serverAddr, a.To)
		assert.Equal(t, Disconnected, s.State())
		_, ok := s.Handle()
		assert.False(t, ok)
	})

	t.Run("extra arguments go to the server as a usage error", func(t *testing.T) {
		s := joined(t)
		a := s.Gate("/leave now")

		assert.Equal(t, protocol.ClientError{Text: protocol.UsageLeave}, decoded(t, a))
		assert.Equal(t, Connected, s.State())
	})
}

func TestGate_Register(t *testing.T) {
	t.Run("not joined", func(t *testing.T) {
		s := newSession()
		assertLocalError(t, s.Gate("/register alice"), TextJoinFirst)
	})

	t.Run("sends register and records handle", func(t *testing.T) {
		s := joined(t)
		a := s.Gate("/register alice")

		assert.Equal(t, protocol.Register{Handle: "alice"}, decoded(t, a))
		assert.Equal(t, Registered, s.State())
		h, ok := s.Handle()
		assert.True(t, ok)
		assert.Equal(t, "alice", h)
	})

	t.Run("wrong arity", func(t *testing.T) {
		s := joined(t)
		assert.Equal(t, protocol.ClientError{Text: protocol.UsageRegister}, decoded(t, s.Gate("/register")))
		assert.Equal(t, protocol.ClientError{Text: protocol.UsageRegister}, decoded(t, s.Gate("/register a b")))
		assert.Equal(t, Connected, s.State())
	})

	t.Run("second register is refused locally", func(t *testing.T) {
		s := registered(t, "alice")
		assertLocalError(t, s.Gate("/register bob"), protocol.TextCannotChangeHandle)
		h, _ := s.Handle()
		assert.Equal(t, "alice", h)
	})

	t.Run("oversize handle is refused without state change", func(t *testing.T) {
		s := joined(t)
		assertLocalError(t, s.Gate("/register "+strings.Repeat("h", protocol.MaxDatagramSize)), TextMessageTooLarge)
		assert.Equal(t, Connected, s.State())
	})
}

func TestGate_All(t *testing.T) {
	t.Run("not joined", func(t *testing.T) {
		s := newSession()
		assertLocalError(t, s.Gate("/all hi"), TextJoinFirst)
	})

	t.Run("unregistered goes to the server as an error", func(t *testing.T) {
		s := joined(t)
		assert.Equal(t, protocol.ClientError{Text: protocol.TextRegisterFirst}, decoded(t, s.Gate("/all hi")))
	})

	t.Run("missing text", func(t *testing.T) {
		s := registered(t, "alice")
		assert.Equal(t, protocol.ClientError{Text: protocol.UsageAll}, decoded(t, s.Gate("/all")))
	})

	t.Run("words are joined with single spaces", func(t *testing.T) {
		s := registered(t, "alice")
		a := s.Gate("/all   hello    there  ")

		assert.Equal(t, protocol.Broadcast{Handle: "alice", Text: "hello there"}, decoded(t, a))
		assert.Equal(t, serverAddr, a.To)
	})

	t.Run("oversize text", func(t *testing.T) {
		s := registered(t, "alice")
		assertLocalError(t, s.Gate("/all "+strings.Repeat("x", protocol.MaxDatagramSize)), TextMessageTooLarge)
	})

	t.Run("command that fits but whose broadcast would not", func(t *testing.T) {
		s := registered(t, "alice")
		text := strings.Repeat("x", protocol.MaxDatagramSize-commandSize(t, protocol.Broadcast{Handle: "alice"}))
		assertLocalError(t, s.Gate("/all "+text), TextMessageTooLarge)
	})

	t.Run("broadcast exactly at the limit is sent", func(t *testing.T) {
		s := registered(t, "alice")
		text := strings.Repeat("x", protocol.MaxDatagramSize-eventSize(t, protocol.BroadcastEvent{FromHandle: "alice"}))
		assert.Equal(t, protocol.Broadcast{Handle: "alice", Text: text}, decoded(t, s.Gate("/all "+text)))
	})
}

func TestGate_Msg(t *testing.T) {
	t.Run("not joined", func(t *testing.T) {
		s := newSession()
		assertLocalError(t, s.Gate("/msg bob hi"), TextJoinFirst)
	})

	t.Run("unregistered", func(t *testing.T) {
		s := joined(t)
		assert.Equal(t, protocol.ClientError{Text: protocol.TextRegisterFirst}, decoded(t, s.Gate("/msg bob hi")))
	})

	t.Run("missing text", func(t *testing.T) {
		s := registered(t, "alice")
		assert.Equal(t, protocol.ClientError{Text: protocol.UsageMsg}, decoded(t, s.Gate("/msg bob")))
	})

	t.Run("sends direct message", func(t *testing.T) {
		s := registered(t, "alice")
		assert.Equal(t,
			protocol.DirectMessage{FromHandle: "alice", ToHandle: "bob", Text: "hi there"},
			decoded(t, s.Gate("/msg bob hi there")))
	})

	t.Run("command that fits but whose delivery would not", func(t *testing.T) {
		s := registered(t, "alice")
		text := strings.Repeat("x", protocol.MaxDatagramSize-commandSize(t, protocol.DirectMessage{FromHandle: "alice", ToHandle: "bob"}))
		assertLocalError(t, s.Gate("/msg bob "+text), TextMessageTooLarge)
	})

	t.Run("delivery exactly at the limit is sent", func(t *testing.T) {
		s := registered(t, "alice")
		text := strings.Repeat("x", protocol.MaxDatagramSize-eventSize(t, protocol.DirectEvent{FromHandle: "alice", ToHandle: "bob"}))
		assert.Equal(t,
			protocol.DirectMessage{FromHandle: "alice", ToHandle: "bob", Text: text},
			decoded(t, s.Gate("/msg bob "+text)))
	})
}

func commandSize(t *testing.T, cmd protocol.Command) int {
	t.Helper()
	data, err := protocol.EncodeCommand(cmd)
	require.NoError(t, err)
	return len(data)
}

func eventSize(t *testing.T, ev protocol.Event) int {
	t.Helper()
	data, err := protocol.EncodeEvent(ev)
	require.NoError(t, err)
	return len(data)
}

func TestGate_Other(t *testing.T) {
	s := newSession()

	assert.Equal(t, Action{}, s.Gate(""))
	assert.Equal(t, Action{}, s.Gate("   "))

	help := s.Gate("/?")
	assert.False(t, help.Sends())
	require.Len(t, help.Lines, 1)
	assert.Equal(t, KindHelp, help.Lines[0].Kind)
	assert.Contains(t, help.Lines[0].Text, "/msg <handle> <message>")

	assertLocalError(t, s.Gate("hello"), TextInvalidCommand)
	assertLocalError(t, s.Gate("/quit"), TextInvalidCommand)
}

func TestReceive(t *testing.T) {
	t.Run("info is shown", func(t *testing.T) {
		s := joined(t)
		lines := s.Receive(protocol.Info{Text: protocol.TextJoined})
		assert.Equal(t, []Line{{Kind: KindInfo, Text: protocol.TextJoined}}, lines)
	})

	t.Run("registration failure clears the handle", func(t *testing.T) {
		s := registered(t, "alice")
		lines := s.Receive(protocol.Info{Text: protocol.TextRegistrationFailed})

		assert.Equal(t, []Line{{Kind: KindInfo, Text: protocol.TextRegistrationFailed}}, lines)
		assert.Equal(t, Connected, s.State())

		a := s.Gate("/register alicia")
		assert.Equal(t, protocol.Register{Handle: "alicia"}, decoded(t, a))
	})

	t.Run("broadcast needs a registered viewer", func(t *testing.T) {
		s := joined(t)
		assert.Empty(t, s.Receive(protocol.BroadcastEvent{FromHandle: "alice", Text: "hello"}))

		s = registered(t, "bob")
		assert.Equal(t,
			[]Line{{Kind: KindBroadcast, Text: "alice: hello"}},
			s.Receive(protocol.BroadcastEvent{FromHandle: "alice", Text: "hello"}))
	})

	t.Run("direct messages", func(t *testing.T) {
		s := registered(t, "alice")
		assert.Equal(t,
			[]Line{{Kind: KindDirectOut, Text: "[To bob]: hi"}},
			s.Receive(protocol.DirectEvent{FromHandle: "alice", ToHandle: "bob", Text: "hi", IsSenderCopy: true}))
		assert.Equal(t,
			[]Line{{Kind: KindDirectIn, Text: "[From bob]: yo"}},
			s.Receive(protocol.DirectEvent{FromHandle: "bob", ToHandle: "alice", Text: "yo"}))
	})
}

func TestShutdown(t *testing.T) {
	s := newSession()
	_, ok := s.Shutdown()
	assert.False(t, ok)

	s = registered(t, "alice")
	addr, ok := s.Shutdown()
	assert.True(t, ok)
	assert.Equal(t, serverAddr, addr)
	assert.Equal(t, Disconnected, s.State())

	_, ok = s.Shutdown()
	assert.False(t, ok)
}

func TestResolveUDP(t *testing.T) {
	addr, err := ResolveUDP("127.0.0.1", "12345")
	require.NoError(t, err)
	assert.Equal(t, serverAddr, addr)

	_, err = ResolveUDP("127.0.0.1", "notaport")
	assert.Error(t, err)

	_, err = ResolveUDP("127.0.0.1", "0")
	assert.Error(t, err)
}
