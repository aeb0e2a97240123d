package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ivangillig/whatsapp-scheduler/internal/bus"
)

// State represents a lifecycle state of the managed WhatsApp session.
type State string

const (
	Idle         State = "IDLE"
	Pairing      State = "PAIRING"
	Connected    State = "CONNECTED"
	Disconnected State = "DISCONNECTED" // transient drop, reconnect scheduled
	LoggedOut    State = "LOGGED_OUT"   // terminal until a fresh start
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:         {Pairing, Connected, Disconnected, LoggedOut},
	Pairing:      {Connected, Disconnected, LoggedOut},
	Connected:    {Disconnected, LoggedOut},
	Disconnected: {Pairing, Connected, LoggedOut},
	LoggedOut:    {Idle},
}

// Identity describes the authenticated WhatsApp account.
type Identity struct {
	JID  string `json:"jid"`
	Name string `json:"name"`
}

// Snapshot is the externally visible connection status. Exactly one of
// "connected with a user" or "not connected" holds; the QR payload is only
// present while a pairing challenge is outstanding.
type Snapshot struct {
	Connected bool      `json:"connected"`
	QR        string    `json:"qr,omitempty"`
	User      *Identity `json:"user,omitempty"`
}

// Machine tracks the session lifecycle state and owns the connection status
// snapshot. All mutation happens under one lock so observers never see a
// half-applied transition (e.g. connected=true with a stale QR code).
type Machine struct {
	mu      sync.RWMutex
	current State
	qr      string
	user    *Identity
	bus     *bus.Bus
}

// NewMachine creates a machine starting in Idle with no challenge.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the current connection status. Never blocks on I/O and
// never fails. The identity is only exposed while Connected.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	if m.current == Connected {
		return Snapshot{Connected: true, User: m.user}
	}
	return Snapshot{QR: m.qr}
}

// Transition attempts to move to a new state, returning an error if the
// transition is not allowed. Entering Connected clears the pairing challenge
// in the same critical section; leaving for LoggedOut also drops the cached
// identity.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to

	switch to {
	case Connected:
		m.qr = ""
	case LoggedOut, Idle:
		m.qr = ""
		m.user = nil
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Topic:     "connection.status_changed",
			Timestamp: time.Now(),
			Payload:   StatusChange{From: from, To: to, Status: snap},
		})
	}
	return nil
}

// SetQR records a fresh pairing challenge, replacing any previous one, and
// publishes it. Challenges arriving after the session connected are stale
// and ignored.
func (m *Machine) SetQR(code string) {
	m.mu.Lock()
	if m.current == Connected {
		m.mu.Unlock()
		return
	}
	m.qr = code
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Topic:     "connection.qr",
			Timestamp: time.Now(),
			Payload:   code,
		})
	}
}

// SetUser stages the authenticated identity. It becomes visible in snapshots
// once the machine transitions to Connected.
func (m *Machine) SetUser(u Identity) {
	m.mu.Lock()
	m.user = &u
	m.mu.Unlock()
}

// StatusChange is the payload for connection.status_changed events.
type StatusChange struct {
	From   State    `json:"from"`
	To     State    `json:"to"`
	Status Snapshot `json:"status"`
}
