package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		entries = append(entries, m)
	}
	return entries
}

func TestNew(t *testing.T) {
	t.Run("writes json with service and fields", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Options{Service: "msgboard-server", Output: &buf})
		require.NoError(t, err)

		log.Info("datagram received", Addr(netip.MustParseAddrPort("127.0.0.1:5000")), Field{Key: "bytes", Value: 12})

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "msgboard-server", entries[0]["service"])
		assert.Equal(t, "datagram received", entries[0]["message"])
		assert.Equal(t, "127.0.0.1:5000", entries[0]["addr"])
		assert.EqualValues(t, 12, entries[0]["bytes"])
		assert.Equal(t, "info", entries[0]["level"])
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Options{Service: "s", Level: "warn", Output: &buf})
		require.NoError(t, err)

		log.Debug("d")
		log.Info("i")
		log.Warn("w")
		log.Error("e", Err(errors.New("boom")))

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "w", entries[0]["message"])
		assert.Equal(t, "boom", entries[1]["error"])
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New(Options{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("with derives without mutating parent", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := New(Options{Service: "s", Output: &buf})
		require.NoError(t, err)

		child := log.With(Field{Key: "seq", Value: 7})
		child.Info("child")
		log.Info("parent")

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.EqualValues(t, 7, entries[0]["seq"])
		_, has := entries[1]["seq"]
		assert.False(t, has)
		assert.NoError(t, child.Close())
	})

	t.Run("writes to daily file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		var buf bytes.Buffer
		log, err := New(Options{Service: "svc", Output: &buf, Dir: dir})
		require.NoError(t, err)

		log.Info("to file")
		require.NoError(t, log.Close())
		require.NoError(t, log.Close())

		name := filepath.Join(dir, "svc_"+time.Now().Format(dateLayout)+".log")
		content, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Contains(t, string(content), "to file")
		assert.Contains(t, buf.String(), "to file")
	})
}

func TestNewZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerologLogger(zerolog.New(&buf), "msgboard-client", zerolog.WarnLevel)

	log.Info("hidden")
	log.With(Field{Key: "command", Value: "join"}).Warn("send failed", Err(errors.New("refused")))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "msgboard-client", entries[0]["service"])
	assert.Equal(t, "join", entries[0]["command"])
	assert.Equal(t, "refused", entries[0]["error"])
	assert.Contains(t, entries[0], "time")
	assert.NoError(t, log.Close())
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("ignored")
	assert.NoError(t, log.With(Field{Key: "k", Value: 1}).Close())
}

func TestDailyFileWriter(t *testing.T) {
	t.Run("rotates when the date changes", func(t *testing.T) {
		dir := t.TempDir()
		w, err := NewDailyFileWriter("svc", dir)
		require.NoError(t, err)
		defer w.Close()

		day := time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
		w.now = func() time.Time { return day }
		_, err = w.Write([]byte("first\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "svc_2026-01-01.log"), w.CurrentLogFile())

		day = day.Add(2 * time.Minute)
		_, err = w.Write([]byte("second\n"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "svc_2026-01-02.log"), w.CurrentLogFile())

		content, err := os.ReadFile(filepath.Join(dir, "svc_2026-01-02.log"))
		require.NoError(t, err)
		assert.Equal(t, "second\n", string(content))
	})

	t.Run("write after close fails", func(t *testing.T) {
		w, err := NewDailyFileWriter("svc", t.TempDir())
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("x"))
		assert.Error(t, err)
		assert.Empty(t, w.CurrentLogFile())
	})

	t.Run("missing directory fails", func(t *testing.T) {
		_, err := NewDailyFileWriter("svc", filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}
