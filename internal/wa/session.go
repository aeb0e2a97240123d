package wa

import (
	"context"
	"errors"

	"github.com/ivangillig/whatsapp-scheduler/internal/status"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
)

// ErrNotConnected is returned by Send when no WhatsApp session is connected.
// It is recoverable: the scheduler leaves the affected work for a later tick.
var ErrNotConnected = errors.New("whatsapp is not connected")

// EventKind enumerates session lifecycle events.
type EventKind string

const (
	EventQRCode       EventKind = "qr_code"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventLoggedOut    EventKind = "logged_out"
	EventContacts     EventKind = "contacts"
)

// SessionEvent is a typed event emitted by a Session. Only the fields
// relevant to Kind are populated.
type SessionEvent struct {
	Kind     EventKind
	QRCode   string          // EventQRCode: pairing payload as a PNG data URL
	User     status.Identity // EventConnected
	Reason   string          // EventDisconnected, EventLoggedOut
	Contacts []store.Contact // EventContacts
}

// Session is the external messaging session provider. One Begin call drives
// one bring-up attempt; its event channel closes once the session drops or
// logs out. Reconnecting means calling Begin again.
type Session interface {
	// Begin starts a session bring-up and returns the event stream for it.
	Begin(ctx context.Context) (<-chan SessionEvent, error)
	// SendText delivers a text message, blocking until the provider accepts
	// or rejects it.
	SendText(ctx context.Context, jid, body string) (string, error)
	// End performs a terminal logout, invalidating stored credentials.
	// Best-effort: a failure must not corrupt local state.
	End(ctx context.Context) error
	// Disconnect closes the connection without invalidating credentials.
	Disconnect()
}
