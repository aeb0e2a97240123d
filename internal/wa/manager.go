package wa

import (
	"context"
	"sync"
	"time"

	"github.com/ivangillig/whatsapp-scheduler/internal/bus"
	"github.com/ivangillig/whatsapp-scheduler/internal/status"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	"go.uber.org/zap"
)

// Manager owns the single WhatsApp session lifecycle: bring-up, reconnect
// after transient drops, and terminal logout. It consumes the Session's
// event stream in one dedicated loop and drives the state machine; nothing
// else touches the session handle directly.
type Manager struct {
	session Session
	machine *status.Machine
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger

	reconnectDelay time.Duration
	restartDelay   time.Duration

	mu        sync.Mutex
	running   bool
	closed    bool
	reconnect *time.Timer
	restart   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a connection manager. reconnectDelay is the flat
// backoff before retrying a transient drop; restartDelay is the pause
// between a local logout and the automatic fresh pairing cycle.
func NewManager(session Session, machine *status.Machine, db *store.DB, b *bus.Bus, logger *zap.Logger, reconnectDelay, restartDelay time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		session:        session,
		machine:        machine,
		db:             db,
		bus:            b,
		logger:         logger,
		reconnectDelay: reconnectDelay,
		restartDelay:   restartDelay,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start begins a session bring-up unless one is already in flight.
// Idempotent and non-blocking.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running || m.closed {
		m.mu.Unlock()
		return
	}
	m.running = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.mu.Unlock()

	go m.run()
}

// Status returns the current connection status. Never blocks.
func (m *Manager) Status() status.Snapshot {
	return m.machine.Snapshot()
}

// Send delivers a text message through the session. Fails with
// ErrNotConnected unless the session is Connected.
func (m *Manager) Send(ctx context.Context, jid, body string) (string, error) {
	if m.machine.Current() != status.Connected {
		return "", ErrNotConnected
	}
	return m.session.SendText(ctx, jid, body)
}

// Logout tears the session down for good: best-effort external logout,
// deterministic local reset (contacts cleared, LoggedOut state), then an
// automatic fresh pairing cycle after restartDelay. Any pending reconnect
// attempt is cancelled first.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.mu.Unlock()

	if err := m.session.End(ctx); err != nil {
		// External teardown failed; local state resets regardless.
		m.logger.Warn("session teardown failed", zap.Error(err))
	}

	if m.machine.Current() != status.LoggedOut {
		if err := m.machine.Transition(status.LoggedOut); err != nil {
			m.logger.Error("logout transition failed", zap.Error(err))
		}
	}
	m.clearContacts()

	m.logger.Info("logged out, scheduling fresh pairing cycle")
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.restart != nil {
		m.restart.Stop()
	}
	m.restart = time.AfterFunc(m.restartDelay, m.freshCycle)
	m.mu.Unlock()
}

// Close shuts the manager down for process exit: timers cancelled, event
// loop stopped, socket closed. Credentials stay valid.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.restart != nil {
		m.restart.Stop()
		m.restart = nil
	}
	m.mu.Unlock()

	m.cancel()
	m.session.Disconnect()
}

// run consumes one session bring-up's event stream until it ends.
func (m *Manager) run() {
	events, err := m.session.Begin(m.ctx)
	if err != nil {
		m.logger.Error("session bring-up failed", zap.Error(err))
		m.finishRun()
		m.onDisconnected(err.Error())
		return
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				m.finishRun()
				return
			}
			m.handleEvent(evt)
		case <-m.ctx.Done():
			m.finishRun()
			return
		}
	}
}

func (m *Manager) finishRun() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Manager) handleEvent(evt SessionEvent) {
	switch evt.Kind {
	case EventQRCode:
		if cur := m.machine.Current(); cur == status.Idle || cur == status.Disconnected {
			if err := m.machine.Transition(status.Pairing); err != nil {
				m.logger.Error("pairing transition failed", zap.Error(err))
				return
			}
		}
		m.machine.SetQR(evt.QRCode)
		m.logger.Info("pairing challenge issued")
	case EventConnected:
		m.machine.SetUser(evt.User)
		if err := m.machine.Transition(status.Connected); err != nil {
			m.logger.Error("connected transition failed", zap.Error(err))
			return
		}
		m.logger.Info("session connected", zap.String("jid", evt.User.JID), zap.String("name", evt.User.Name))
	case EventDisconnected:
		m.onDisconnected(evt.Reason)
	case EventLoggedOut:
		m.onRemoteLogout(evt.Reason)
	case EventContacts:
		m.bus.Publish(bus.Event{
			Topic:   "wa.contacts_batch",
			Payload: evt.Contacts,
		})
	}
}

// onDisconnected handles a transient drop: transition to Disconnected and
// schedule exactly one reconnect attempt after the flat backoff.
func (m *Manager) onDisconnected(reason string) {
	cur := m.machine.Current()
	if cur == status.LoggedOut {
		// Teardown in progress; no reconnect.
		return
	}
	if cur != status.Disconnected {
		if err := m.machine.Transition(status.Disconnected); err != nil {
			m.logger.Error("disconnect transition failed", zap.Error(err))
			return
		}
	}
	m.logger.Warn("session dropped, reconnect scheduled",
		zap.String("reason", reason),
		zap.Duration("delay", m.reconnectDelay))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	m.reconnect = time.AfterFunc(m.reconnectDelay, m.Start)
}

// onRemoteLogout handles a logout initiated from the phone. The credentials
// are invalid, so no reconnect: the session stays LoggedOut until a fresh
// cycle is started explicitly.
func (m *Manager) onRemoteLogout(reason string) {
	m.mu.Lock()
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.mu.Unlock()

	m.logger.Warn("session logged out remotely, re-pairing required", zap.String("reason", reason))
	if m.machine.Current() != status.LoggedOut {
		if err := m.machine.Transition(status.LoggedOut); err != nil {
			m.logger.Error("logged-out transition failed", zap.Error(err))
		}
	}
	m.clearContacts()
}

// freshCycle re-enters Idle and starts a new bring-up so a new pairing
// challenge can be produced.
func (m *Manager) freshCycle() {
	if m.machine.Current() == status.LoggedOut {
		if err := m.machine.Transition(status.Idle); err != nil {
			m.logger.Error("idle transition failed", zap.Error(err))
			return
		}
	}
	m.Start()
}

func (m *Manager) clearContacts() {
	if err := m.db.ClearContacts(); err != nil {
		m.logger.Error("failed to clear contact cache", zap.Error(err))
		return
	}
	m.bus.Publish(bus.Event{
		Topic:   "contacts.refreshed",
		Payload: 0,
	})
}
