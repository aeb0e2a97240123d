// Package scheduler drives due scheduled messages through the WhatsApp
// connection on a fixed cadence.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ivangillig/whatsapp-scheduler/internal/bus"
	"github.com/ivangillig/whatsapp-scheduler/internal/status"
	"github.com/ivangillig/whatsapp-scheduler/internal/store"
	"go.uber.org/zap"
)

// Connection is the view of the connection manager the scheduler needs:
// a non-blocking status read and a blocking send.
type Connection interface {
	Status() status.Snapshot
	Send(ctx context.Context, jid, body string) (serverMsgID string, err error)
}

// DeliveryOutcome is the payload of message.delivery events.
type DeliveryOutcome struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	SentAt int64  `json:"sent_at,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Scheduler polls the store for due pending messages and delivers them
// sequentially. The WhatsApp session is one shared resource with
// provider-side rate protection, so items go out one at a time with a
// fixed pause in between, never concurrently.
type Scheduler struct {
	db     *store.DB
	conn   Connection
	bus    *bus.Bus
	logger *zap.Logger

	interval time.Duration
	pause    time.Duration

	inTick atomic.Bool
	cancel context.CancelFunc
}

// New creates a scheduler. interval is the tick cadence, pause the delay
// between consecutive deliveries within one tick.
func New(db *store.DB, conn Connection, b *bus.Bus, logger *zap.Logger, interval, pause time.Duration) *Scheduler {
	return &Scheduler{
		db:       db,
		conn:     conn,
		bus:      b,
		logger:   logger,
		interval: interval,
		pause:    pause,
	}
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	go s.loop(ctx)
}

// Stop stops the tick loop. A tick already in flight finishes on its own.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Tick processes one batch of due messages. At most one Tick runs at a
// time; a timer firing while one is still in flight is skipped entirely,
// never queued. Disconnected ticks leave pending items untouched — they
// are simply picked up again once the connection is back.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.inTick.CompareAndSwap(false, true) {
		s.logger.Warn("previous tick still running, skipping")
		return
	}
	defer s.inTick.Store(false)

	if !s.conn.Status().Connected {
		return
	}

	due, err := s.db.DueScheduledMessages(time.Now())
	if err != nil {
		s.logger.Error("failed to read due messages", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("processing due messages", zap.Int("count", len(due)))

	for i := range due {
		if i > 0 {
			select {
			case <-time.After(s.pause):
			case <-ctx.Done():
				return
			}
		}
		if err := s.deliver(ctx, &due[i]); err != nil {
			// Store failure: abort the rest of the batch. The remaining
			// items are still pending and come back next tick.
			s.logger.Error("aborting tick after store error", zap.Error(err))
			return
		}
	}
}

// deliver attempts one message and records the outcome. Send errors are
// terminal for the item (pending -> failed); only store errors propagate.
func (s *Scheduler) deliver(ctx context.Context, msg *store.ScheduledMessage) error {
	_, sendErr := s.conn.Send(ctx, msg.ContactJID, msg.Body)
	now := time.Now()

	if sendErr != nil {
		s.logger.Error("delivery failed",
			zap.Int64("id", msg.ID),
			zap.String("contact", msg.ContactJID),
			zap.Error(sendErr))
		if err := s.db.UpdateMessageStatus(msg.ID, store.StatusFailed, time.Time{}, sendErr.Error()); err != nil {
			return err
		}
		s.publishOutcome(DeliveryOutcome{ID: msg.ID, Status: store.StatusFailed, Error: sendErr.Error()})
		return nil
	}

	if err := s.db.UpdateMessageStatus(msg.ID, store.StatusSent, now, ""); err != nil {
		return err
	}
	s.logger.Info("message delivered",
		zap.Int64("id", msg.ID),
		zap.String("contact", msg.ContactJID))
	s.publishOutcome(DeliveryOutcome{ID: msg.ID, Status: store.StatusSent, SentAt: now.UnixMilli()})
	return nil
}

func (s *Scheduler) publishOutcome(out DeliveryOutcome) {
	s.bus.Publish(bus.Event{
		Topic:   "message.delivery",
		Payload: out,
	})
}
