// Package sync ingests contact batches pushed by the WhatsApp session into
// the local cache.
package sync

import (
	"context"

	"github.com/ivangillig/whatsapp-scheduler/internal/bus"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	"go.uber.org/zap"
)

// Engine subscribes to "wa.contacts_batch" events on the bus and upserts
// the batches into the contact cache. Ingestion is idempotent, so replayed
// or overlapping batches are harmless.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a contact sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to contact batches on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.contacts_batch", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				contacts, ok := evt.Payload.([]store.Contact)
				if !ok {
					continue
				}
				e.ingest(contacts)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) ingest(contacts []store.Contact) {
	if len(contacts) == 0 {
		return
	}
	if err := e.db.BulkUpsertContacts(contacts); err != nil {
		e.logger.Error("failed to ingest contact batch", zap.Error(err), zap.Int("count", len(contacts)))
		return
	}
	e.logger.Info("contact batch ingested", zap.Int("count", len(contacts)))
	e.bus.Publish(bus.Event{
		Topic:   "contacts.refreshed",
		Payload: len(contacts),
	})
}
