package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/model"
)

// SubscriptionStore is the slice of store.PushStore the push package needs.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	WasSent(ctx context.Context, notifType, refID string, userID int64) (bool, error)
	RecordSent(ctx context.Context, notifType, refID string, userID int64) error
	CleanupSent(ctx context.Context, before time.Time) error
}

// sentRetention bounds how long dedup records are kept.
const sentRetention = 30 * 24 * time.Hour

// ChoreLister lists chores through the engine's filter.
type ChoreLister interface {
	List(ctx context.Context, f chore.Filter) ([]model.Chore, error)
}

// Scheduler periodically reminds assignees of overdue chores.
type Scheduler struct {
	mu       sync.RWMutex
	sender   Sender
	subs     SubscriptionStore
	chores   ChoreLister
	logger   *slog.Logger
	interval time.Duration
	cleaned  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a reminder scheduler. A non-positive interval
// defaults to one minute.
func NewScheduler(sender Sender, subs SubscriptionStore, chores ChoreLister, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		sender:   sender,
		subs:     subs,
		chores:   chores,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	chores, err := s.chores.List(ctx, chore.Filter{OverdueOnly: true})
	if err != nil {
		s.logger.ErrorContext(ctx, "push scheduler: list overdue chores", "error", err)
		return
	}

	for _, c := range chores {
		if c.NextExecutionAssignedToUserID == nil || c.NextExecutionDate == nil {
			continue
		}
		userID := *c.NextExecutionAssignedToUserID
		refID := overdueRefID(&c)

		sent, err := s.subs.WasSent(ctx, model.NotifTypeChoreOverdue, refID, userID)
		if err != nil {
			s.logger.ErrorContext(ctx, "push scheduler: check sent", "chore_id", c.ID, "error", err)
			continue
		}
		if sent {
			continue
		}

		payload := OverduePayload(&c)
		deliver(ctx, s.sender, s.subs, s.logger, userID, payload)

		if err := s.subs.RecordSent(ctx, model.NotifTypeChoreOverdue, refID, userID); err != nil {
			s.logger.ErrorContext(ctx, "push scheduler: record sent", "chore_id", c.ID, "error", err)
		}
	}

	if now := time.Now(); now.Sub(s.cleaned) >= 24*time.Hour {
		if err := s.subs.CleanupSent(ctx, now.Add(-sentRetention)); err != nil {
			s.logger.ErrorContext(ctx, "push scheduler: cleanup sent", "error", err)
			return
		}
		s.cleaned = now
	}
}

// overdueRefID identifies one due date of one chore, so rescheduling the
// chore produces a fresh reminder.
func overdueRefID(c *model.Chore) string {
	return fmt.Sprintf("chore-%d-%d", c.ID, c.NextExecutionDate.Unix())
}

// deliver sends payload to every subscription of userID, removing
// subscriptions the push service reports as gone.
func deliver(ctx context.Context, sender Sender, subs SubscriptionStore, logger *slog.Logger, userID int64, payload Payload) {
	list, err := subs.ListByUser(ctx, userID)
	if err != nil {
		logger.ErrorContext(ctx, "push: list subscriptions", "user_id", userID, "error", err)
		return
	}

	for _, sub := range list {
		err := sender.Send(ctx, &sub, payload)
		if errors.Is(err, ErrExpired) {
			if err := subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				logger.ErrorContext(ctx, "push: delete expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			logger.WarnContext(ctx, "push: send", "user_id", userID, "tag", payload.Tag, "error", err)
		}
	}
}
