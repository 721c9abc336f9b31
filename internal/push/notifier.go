package push

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/chorely/internal/chore"
)

// Notifier tells the new assignee when a chore becomes their turn. It
// implements chore.Notifier. Pushes are sent in the background so a slow
// push service never holds up the engine.
type Notifier struct {
	sender Sender
	subs   SubscriptionStore
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewNotifier(sender Sender, subs SubscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, subs: subs, logger: logger}
}

func (n *Notifier) ChoreChanged(ctx context.Context, ev chore.Event) {
	if !ev.AssigneeChanged() || ev.Chore.NextExecutionAssignedToUserID == nil {
		return
	}
	userID := *ev.Chore.NextExecutionAssignedToUserID
	payload := AssignedPayload(&ev.Chore)

	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		deliver(ctx, n.sender, n.subs, n.logger, userID, payload)
	}()
}

// Wait blocks until in-flight pushes finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
