// Package membership holds the server's authoritative mapping from network
// address to handle. Every operation runs under a single mutex so concurrent
// datagram handlers never observe a torn table or admit a duplicate handle.
package membership

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/cyberinferno/msgboard/safeset"
)

var (
	// ErrNotJoined is returned when an operation needs a joined address.
	ErrNotJoined = errors.New("address has not joined")

	// ErrHandleTaken is returned when another entry, or the caller itself,
	// already holds the requested handle.
	ErrHandleTaken = errors.New("handle already exists")

	// ErrAlreadyRegistered is returned when a registered address asks for a
	// different handle. Handles are immutable for the life of a membership.
	ErrAlreadyRegistered = errors.New("address already registered")

	// ErrInvalidHandle is returned for an empty handle.
	ErrInvalidHandle = errors.New("invalid handle")
)

// JoinResult reports the outcome of Join.
type JoinResult int

const (
	Joined        JoinResult = iota // The address was added
	AlreadyJoined                   // The address was already a member; nothing changed
)

// RemovalReason reports why an entry left the table.
type RemovalReason int

const (
	RemovedByLeave RemovalReason = iota // The participant sent Leave
	RemovedByIdle                       // The idle TTL elapsed
)

func (r RemovalReason) String() string {
	switch r {
	case RemovedByLeave:
		return "leave"
	case RemovedByIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one member. Handle is empty until the member registers.
type Entry struct {
	Addr   netip.AddrPort
	Handle string
}

// Registered reports whether the entry holds a handle.
func (e Entry) Registered() bool {
	return e.Handle != ""
}

// RemovedFunc is called after an entry leaves the table. It runs outside the
// table lock; it may read the table but must not block for long.
type RemovedFunc func(entry Entry, reason RemovalReason)

// Options configures a Table.
type Options struct {
	// IdleTTL evicts members that send nothing for this long. Zero disables
	// expiry: members then stay until they leave or the process exits.
	IdleTTL time.Duration

	// OnRemoved, if set, is notified of every removal.
	OnRemoved RemovedFunc
}

// Table is the membership table. The zero value is not usable; call New.
type Table struct {
	mu        sync.Mutex
	entries   *cache.Cache
	ttl       time.Duration
	onRemoved RemovedFunc

	// Keys being deleted by Leave, so evicted can tell them from expiry.
	leaving *safeset.SafeSet[string]
}

// New creates an empty membership table.
//
// Parameters:
//   - opts: Expiry and notification settings
//
// Returns:
//   - A new *Table safe for concurrent use
func New(opts Options) *Table {
	ttl := cache.NoExpiration
	cleanup := time.Duration(0)
	if opts.IdleTTL > 0 {
		ttl = opts.IdleTTL
		cleanup = max(opts.IdleTTL/2, time.Second)
	}

	t := &Table{
		entries:   cache.New(ttl, cleanup),
		ttl:       ttl,
		onRemoved: opts.OnRemoved,
		leaving:   safeset.NewSafeSet[string](),
	}
	t.entries.OnEvicted(t.evicted)

	return t
}

// evicted is invoked by go-cache for explicit deletes and for expiry. Leave
// marks its key first and reports the removal itself, so only expiry is
// forwarded from here.
func (t *Table) evicted(key string, value any) {
	byLeave := t.leaving.Take(key)

	entry, ok := value.(Entry)
	if byLeave || !ok || t.onRemoved == nil {
		return
	}

	t.onRemoved(entry, RemovedByIdle)
}

// Join adds addr with no handle. Repeated joins never duplicate entries.
func (t *Table) Join(addr netip.AddrPort) JoinResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := addr.String()
	if _, found := t.entries.Get(key); found {
		return AlreadyJoined
	}

	t.entries.Set(key, Entry{Addr: addr}, cache.DefaultExpiration)
	return Joined
}

// Leave removes addr.
//
// Returns:
//   - true if addr was a member, false otherwise
func (t *Table) Leave(addr netip.AddrPort) bool {
	key := addr.String()

	t.mu.Lock()
	value, found := t.entries.Get(key)
	if !found {
		t.mu.Unlock()
		return false
	}

	t.leaving.Add(key)
	t.entries.Delete(key)
	// Delete runs evicted synchronously; clear the mark in case the entry had
	// already expired and nothing was evicted.
	t.leaving.Remove(key)
	t.mu.Unlock()

	if t.onRemoved != nil {
		t.onRemoved(value.(Entry), RemovedByLeave)
	}

	return true
}

// Register assigns handle to the entry at addr. A registered entry keeps its
// handle: asking for the same handle again is a collision, asking for any
// other is ErrAlreadyRegistered even when another member holds it.
//
// Parameters:
//   - addr: The registering member
//   - handle: The requested handle; must be non-empty
//
// Returns:
//   - nil on success
//   - ErrNotJoined, ErrInvalidHandle, ErrAlreadyRegistered or ErrHandleTaken
func (t *Table) Register(addr netip.AddrPort, handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := addr.String()
	value, found := t.entries.Get(key)
	if !found {
		return ErrNotJoined
	}

	if handle == "" {
		return ErrInvalidHandle
	}

	self := value.(Entry)
	if self.Registered() {
		if self.Handle == handle {
			return ErrHandleTaken
		}
		return ErrAlreadyRegistered
	}

	for _, item := range t.entries.Items() {
		if item.Object.(Entry).Handle == handle {
			return ErrHandleTaken
		}
	}

	self.Handle = handle
	t.entries.Set(key, self, cache.DefaultExpiration)
	return nil
}

// Resolve returns the address holding handle.
//
// Returns:
//   - The address and true if some member holds handle, or false otherwise
func (t *Table) Resolve(handle string) (netip.AddrPort, bool) {
	if handle == "" {
		return netip.AddrPort{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, item := range t.entries.Items() {
		if entry := item.Object.(Entry); entry.Handle == handle {
			return entry.Addr, true
		}
	}

	return netip.AddrPort{}, false
}

// Lookup returns a copy of the entry at addr.
//
// Returns:
//   - The entry and true if addr has joined, or a zero Entry and false
func (t *Table) Lookup(addr netip.AddrPort) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, found := t.entries.Get(addr.String())
	if !found {
		return Entry{}, false
	}

	return value.(Entry), true
}

// Addresses returns a snapshot of every joined address, in no particular order.
func (t *Table) Addresses() []netip.AddrPort {
	t.mu.Lock()
	defer t.mu.Unlock()

	return lo.MapToSlice(t.entries.Items(), func(_ string, item cache.Item) netip.AddrPort {
		return item.Object.(Entry).Addr
	})
}

// Touch pushes back the idle deadline of addr. It is a no-op for unknown
// addresses and when expiry is disabled.
func (t *Table) Touch(addr netip.AddrPort) {
	if t.ttl == cache.NoExpiration {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := addr.String()
	if value, found := t.entries.Get(key); found {
		t.entries.Set(key, value, cache.DefaultExpiration)
	}
}

// Len returns the number of joined addresses.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries.Items())
}
