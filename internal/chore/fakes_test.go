package chore

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/model"
)

// memRepo is an in-memory Repository with the same version semantics as the
// sqlite store.
type memRepo struct {
	mu      sync.Mutex
	chores  map[int64]model.Chore
	log     map[int64]model.ChoreLogEntry
	choreID int64
	logID   int64
	saves   int

	// failSaves makes the next n saves fail with a concurrent modification.
	failSaves int
}

func newMemRepo() *memRepo {
	return &memRepo{chores: make(map[int64]model.Chore), log: make(map[int64]model.ChoreLogEntry)}
}

func (r *memRepo) Load(_ context.Context, id int64) (*model.Chore, []model.ChoreLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chores[id]
	if !ok {
		return nil, nil, apperror.New(apperror.KindNotFound, "load chore", "chore not found")
	}
	var history []model.ChoreLogEntry
	for _, e := range r.log {
		if e.ChoreID == id {
			history = append(history, e)
		}
	}
	sort.Slice(history, func(i, j int) bool { return history[i].ID < history[j].ID })
	return &c, history, nil
}

func (r *memRepo) LoadLogEntry(_ context.Context, id int64) (*model.ChoreLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.log[id]
	if !ok {
		return nil, apperror.New(apperror.KindNotFound, "load log entry", "log entry not found")
	}
	return &e, nil
}

func (r *memRepo) Save(_ context.Context, c *model.Chore, entry *model.ChoreLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.failSaves > 0 {
		r.failSaves--
		return apperror.New(apperror.KindConcurrentModification, "save chore", "version mismatch")
	}
	stored, ok := r.chores[c.ID]
	if !ok {
		return apperror.New(apperror.KindNotFound, "save chore", "chore not found")
	}
	if stored.Version != c.Version {
		return apperror.New(apperror.KindConcurrentModification, "save chore", "version mismatch")
	}
	c.Version++
	r.chores[c.ID] = *c
	if entry != nil {
		if entry.ID == 0 {
			r.logID++
			entry.ID = r.logID
		}
		r.log[entry.ID] = *entry
	}
	return nil
}

func (r *memRepo) Insert(_ context.Context, c *model.Chore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.choreID++
	c.ID = r.choreID
	c.Version = 1
	r.chores[c.ID] = *c
	return nil
}

func (r *memRepo) List(_ context.Context) ([]model.Chore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Chore, 0, len(r.chores))
	for _, c := range r.chores {
		out = append(out, c)
	}
	return out, nil
}

func (r *memRepo) entries() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.log)
}

type fakeStock struct {
	mu    sync.Mutex
	calls int
	err   error
	block bool
}

func (s *fakeStock) ConsumeStock(ctx context.Context, productID int64, amount float64) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

type fakeUsers []int64

func (u fakeUsers) EligibleUserIDs(context.Context) ([]int64, error) {
	return append([]int64(nil), u...), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) ChoreChanged(_ context.Context, ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
