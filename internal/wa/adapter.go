package wa

import (
	"context"
	"fmt"
	"sync"

	"github.com/ivangillig/whatsapp-scheduler/internal/status"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter implements Session over a whatsmeow client. It owns the whatsmeow
// credential store and translates protocol events into SessionEvents.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger

	mu     sync.Mutex
	events chan SessionEvent
}

// NewAdapter creates a WhatsApp adapter backed by the credential store at
// dbPath. Reconnects are owned by the Manager, so whatsmeow's built-in
// auto-reconnect is disabled.
func NewAdapter(ctx context.Context, dbPath string, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("WhatsApp Scheduler", [3]uint32{1, 0, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)
	client.EnableAutoReconnect = false

	a := &Adapter{
		client:    client,
		container: container,
		logger:    logger,
	}
	client.AddEventHandler(a.handle)
	return a, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Begin starts one session bring-up. With credentials it connects directly;
// without, it opens the QR pairing flow and streams challenge codes.
func (a *Adapter) Begin(ctx context.Context) (<-chan SessionEvent, error) {
	a.mu.Lock()
	ch := make(chan SessionEvent, 64)
	a.events = ch
	a.mu.Unlock()

	if a.IsLoggedIn() {
		a.logger.Info("connecting to WhatsApp")
		if err := a.client.Connect(); err != nil {
			a.drop()
			return nil, fmt.Errorf("connect: %w", err)
		}
		return ch, nil
	}

	// QR channel must be requested before Connect.
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		a.drop()
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	a.logger.Info("no credentials, starting QR pairing")
	if err := a.client.Connect(); err != nil {
		a.drop()
		return nil, fmt.Errorf("connect: %w", err)
	}

	go a.pumpQR(qrChan)
	return ch, nil
}

func (a *Adapter) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			url, err := qrDataURL(item.Code)
			if err != nil {
				a.logger.Error("failed to render QR code", zap.Error(err))
				continue
			}
			a.emit(SessionEvent{Kind: EventQRCode, QRCode: url})
		case "success":
			// The Connected protocol event carries the rest.
			return
		case "timeout":
			a.finish(SessionEvent{Kind: EventDisconnected, Reason: "pairing timeout"})
			return
		default:
			if item.Error != nil {
				a.finish(SessionEvent{Kind: EventDisconnected, Reason: item.Error.Error()})
				return
			}
		}
	}
}

// handle is the whatsmeow event handler.
func (a *Adapter) handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		a.logger.Info("WhatsApp connected")
		user := status.Identity{Name: a.client.Store.PushName}
		if a.client.Store.ID != nil {
			user.JID = a.client.Store.ID.ToNonAD().String()
		}
		a.emit(SessionEvent{Kind: EventConnected, User: user})
		go a.syncContacts(context.Background())
	case *events.Disconnected:
		a.logger.Warn("WhatsApp disconnected")
		a.finish(SessionEvent{Kind: EventDisconnected, Reason: "connection closed"})
	case *events.StreamReplaced:
		a.logger.Warn("WhatsApp stream replaced by another client")
		a.finish(SessionEvent{Kind: EventDisconnected, Reason: "stream replaced"})
	case *events.LoggedOut:
		a.logger.Warn("WhatsApp logged out remotely", zap.String("reason", evt.Reason.String()))
		a.finish(SessionEvent{Kind: EventLoggedOut, Reason: evt.Reason.String()})
	case *events.HistorySync:
		a.handleHistorySync(evt)
	}
}

func (a *Adapter) handleHistorySync(evt *events.HistorySync) {
	if evt.Data == nil {
		return
	}
	var contacts []store.Contact
	for _, pn := range evt.Data.GetPushnames() {
		if pn.GetID() == "" {
			continue
		}
		contacts = append(contacts, store.Contact{
			JID:      pn.GetID(),
			PushName: pn.GetPushname(),
		})
	}
	if len(contacts) > 0 {
		a.emit(SessionEvent{Kind: EventContacts, Contacts: contacts})
	}
}

// syncContacts pulls the whatsmeow device store contact list and emits it
// as one batch, mirroring the contact sync the original service did from
// protocol pushes.
func (a *Adapter) syncContacts(ctx context.Context) {
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to read device store contacts", zap.Error(err))
		return
	}
	var contacts []store.Contact
	for jid, info := range allContacts {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		contacts = append(contacts, store.Contact{
			JID:      jid.ToNonAD().String(),
			Name:     info.FullName,
			PushName: info.PushName,
		})
	}
	if len(contacts) > 0 {
		a.emit(SessionEvent{Kind: EventContacts, Contacts: contacts})
	}
}

// SendText sends a text message to the given JID. Returns the server
// message ID.
func (a *Adapter) SendText(ctx context.Context, jid string, text string) (string, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// End performs a terminal logout, invalidating the stored credentials so
// the next Begin produces a fresh pairing challenge.
func (a *Adapter) End(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// Disconnect closes the connection without touching credentials.
func (a *Adapter) Disconnect() {
	a.client.Disconnect()
}

// emit delivers an event to the current stream without blocking the
// whatsmeow dispatcher.
func (a *Adapter) emit(evt SessionEvent) {
	a.mu.Lock()
	ch := a.events
	a.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- evt:
	default:
		a.logger.Warn("session event dropped", zap.String("kind", string(evt.Kind)))
	}
}

// finish delivers a terminal event and closes the stream.
func (a *Adapter) finish(evt SessionEvent) {
	a.mu.Lock()
	ch := a.events
	a.events = nil
	a.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- evt:
	default:
	}
	close(ch)
}

// drop abandons the current stream without emitting anything. Used when
// Begin fails before the stream is live.
func (a *Adapter) drop() {
	a.mu.Lock()
	a.events = nil
	a.mu.Unlock()
}
