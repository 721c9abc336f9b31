package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/database"
	"github.com/dukerupert/chorely/internal/middleware"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/store"
)

var day0 = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	mux      http.Handler
	products *store.ProductStore
	members  *store.FamilyMemberStore
	now      time.Time
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		products: store.NewProductStore(db),
		members:  store.NewFamilyMemberStore(db),
		now:      day0,
	}
	chores := store.NewChoreStore(db)
	engine := chore.NewEngine(chore.Config{
		Location: time.UTC,
		Now:      func() time.Time { return env.now },
	}, chores, env.products, env.members, nil, logger)

	ch := NewChoreHandler(engine, chores, nil, 3, logger)
	mh := NewFamilyMemberHandler(env.members, logger)
	ph := NewProductHandler(env.products, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chores", ch.Create)
	mux.HandleFunc("GET /api/chores", ch.List)
	mux.HandleFunc("GET /api/chores/{id}", ch.Get)
	mux.HandleFunc("PUT /api/chores/{id}", ch.Update)
	mux.HandleFunc("DELETE /api/chores/{id}", ch.Delete)
	mux.HandleFunc("POST /api/chores/{id}/execute", ch.Execute)
	mux.HandleFunc("POST /api/chores/{id}/skip", ch.Skip)
	mux.HandleFunc("GET /api/chores/{id}/log", ch.Log)
	mux.HandleFunc("POST /api/chore-log/{id}/undo", ch.Undo)
	mux.HandleFunc("GET /api/family-members", mh.List)
	mux.HandleFunc("POST /api/family-members", mh.Create)
	mux.HandleFunc("GET /api/products", ph.List)
	mux.HandleFunc("POST /api/products", ph.Create)
	mux.HandleFunc("POST /api/products/{id}/stock", ph.AddStock)
	env.mux = middleware.Identity("X-Remote-User-Id", "")(mux)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (env *testEnv) createChore(t *testing.T, req map[string]any) model.Chore {
	t.Helper()
	rec := env.do(t, "POST", "/api/chores", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chore: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decode[model.Chore](t, rec)
}

func TestCreateChoreValidation(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"ok", map[string]any{"name": "Dishes", "period_type": "daily"}, http.StatusCreated},
		{"missing name", map[string]any{"period_type": "daily"}, http.StatusBadRequest},
		{"unknown period", map[string]any{"name": "X", "period_type": "hourly"}, http.StatusBadRequest},
		{"zero days", map[string]any{"name": "X", "period_type": "dynamic-regular"}, http.StatusBadRequest},
		{"empty round robin", map[string]any{"name": "X", "period_type": "daily", "assignment_type": "round-robin"}, http.StatusBadRequest},
		{"least recently done without members", map[string]any{"name": "X", "period_type": "daily", "assignment_type": "least-recently-done"}, http.StatusBadRequest},
		{"bad json", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/chores", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestExecuteUndoFlow(t *testing.T) {
	env := setupTestEnv(t)
	c := env.createChore(t, map[string]any{
		"name": "Trash", "period_type": "daily",
		"assignment_type": "round-robin", "assignment_config": "4,5",
	})
	if c.NextExecutionAssignedToUserID == nil || *c.NextExecutionAssignedToUserID != 4 {
		t.Fatalf("initial assignee = %v, want 4", c.NextExecutionAssignedToUserID)
	}

	env.now = day0.Add(time.Hour)
	rec := env.do(t, "POST", fmt.Sprintf("/api/chores/%d/execute", c.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[resultResponse](t, rec)
	if *res.Entry.DoneByUserID != 4 || *res.Chore.NextExecutionAssignedToUserID != 5 {
		t.Errorf("done_by = %d, next = %d", *res.Entry.DoneByUserID, *res.Chore.NextExecutionAssignedToUserID)
	}

	rec = env.do(t, "GET", fmt.Sprintf("/api/chores/%d", c.ID), nil)
	details := decode[chore.Details](t, rec)
	if details.TrackedCount != 1 || *details.LastDoneByUserID != 4 {
		t.Errorf("details = %+v", details)
	}

	undoPath := fmt.Sprintf("/api/chore-log/%d/undo", res.Entry.ID)
	rec = env.do(t, "POST", undoPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("undo: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	undone := decode[resultResponse](t, rec)
	if !undone.Chore.NextExecutionDate.Equal(*c.NextExecutionDate) || *undone.Chore.NextExecutionAssignedToUserID != 4 {
		t.Errorf("after undo next = %v assignee = %d", undone.Chore.NextExecutionDate, *undone.Chore.NextExecutionAssignedToUserID)
	}

	rec = env.do(t, "POST", undoPath, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second undo status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := decode[map[string]string](t, rec)["kind"]; got != "already_undone" {
		t.Errorf("kind = %q, want already_undone", got)
	}

	rec = env.do(t, "GET", fmt.Sprintf("/api/chores/%d/log", c.ID), nil)
	if got := decode[[]model.ChoreLogEntry](t, rec); len(got) != 0 {
		t.Errorf("active log len = %d, want 0", len(got))
	}
	rec = env.do(t, "GET", fmt.Sprintf("/api/chores/%d/log?include_undone=true", c.ID), nil)
	if got := decode[[]model.ChoreLogEntry](t, rec); len(got) != 1 || !got[0].Undone {
		t.Errorf("full log = %+v", got)
	}
}

func TestExecuteStockWarning(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, "POST", "/api/products", map[string]any{"name": "Bin bags", "stock_amount": 0})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: status = %d", rec.Code)
	}
	p := decode[model.Product](t, rec)

	c := env.createChore(t, map[string]any{
		"name": "Bins", "period_type": "weekly",
		"consume_product_on_execution": true, "product_id": p.ID, "product_amount": 1,
	})

	rec = env.do(t, "POST", fmt.Sprintf("/api/chores/%d/execute", c.ID), map[string]any{"done_by": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[resultResponse](t, rec)
	if res.WarningKind != "insufficient_stock" {
		t.Errorf("warning_kind = %q, want insufficient_stock", res.WarningKind)
	}
	if res.Entry == nil || *res.Entry.DoneByUserID != 2 {
		t.Errorf("entry = %+v", res.Entry)
	}

	// Restock and try again
	rec = env.do(t, "POST", fmt.Sprintf("/api/products/%d/stock", p.ID), map[string]any{"amount": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("add stock: status = %d", rec.Code)
	}
	rec = env.do(t, "POST", fmt.Sprintf("/api/chores/%d/execute", c.ID), map[string]any{"done_by": 2})
	if res := decode[resultResponse](t, rec); res.Warning != "" {
		t.Errorf("unexpected warning %q", res.Warning)
	}
}

func TestExecuteCreditsCaller(t *testing.T) {
	env := setupTestEnv(t)
	c := env.createChore(t, map[string]any{"name": "Water plants", "period_type": "dynamic-regular", "period_days": 3})

	rec := env.do(t, "POST", fmt.Sprintf("/api/chores/%d/execute", c.ID), nil, "X-Remote-User-Id", "9")
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: status = %d", rec.Code)
	}
	if res := decode[resultResponse](t, rec); res.Entry.DoneByUserID == nil || *res.Entry.DoneByUserID != 9 {
		t.Errorf("done_by = %v, want 9", res.Entry.DoneByUserID)
	}
}

func TestTransitionErrors(t *testing.T) {
	env := setupTestEnv(t)

	rec := env.do(t, "POST", "/api/chores/404/execute", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown chore status = %d, want 404", rec.Code)
	}
	rec = env.do(t, "POST", "/api/chore-log/404/undo", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown log entry status = %d, want 404", rec.Code)
	}
	rec = env.do(t, "POST", "/api/chores/abc/skip", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestSkipKeepsCadence(t *testing.T) {
	env := setupTestEnv(t)
	c := env.createChore(t, map[string]any{"name": "Vacuum", "period_type": "weekly"})

	env.now = day0.AddDate(0, 0, 10)
	rec := env.do(t, "POST", fmt.Sprintf("/api/chores/%d/skip", c.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("skip: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	res := decode[resultResponse](t, rec)
	if !res.Entry.Skipped {
		t.Error("expected skipped entry")
	}
	// Due day0+7 was skipped at day0+10; without rollover the next slot is day0+14
	if want := day0.AddDate(0, 0, 14); !res.Chore.NextExecutionDate.Equal(want) {
		t.Errorf("next = %v, want %v", res.Chore.NextExecutionDate, want)
	}
}

func TestListFilters(t *testing.T) {
	env := setupTestEnv(t)
	env.createChore(t, map[string]any{"name": "Dishes", "period_type": "daily"})
	env.createChore(t, map[string]any{"name": "Gutters", "period_type": "dynamic-regular", "period_days": 90})
	env.createChore(t, map[string]any{"name": "Fix shelf", "period_type": "manually"})

	env.now = day0.AddDate(0, 0, 2)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Dishes", "Gutters", "Fix shelf"}},
		{"?overdue=true", []string{"Dishes"}},
		{"?q=GUT", []string{"Gutters"}},
		{"?period_type=manually", []string{"Fix shelf"}},
		{"?sort=name&dir=desc", []string{"Gutters", "Fix shelf", "Dishes"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, "GET", "/api/chores"+tt.query, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			got := decode[[]model.Chore](t, rec)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chores, want %d", len(got), len(tt.want))
			}
			for i, name := range tt.want {
				if got[i].Name != name {
					t.Errorf("got[%d] = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}

	for _, q := range []string{"?sort=colour", "?period_type=hourly", "?overdue=maybe", "?assigned_to=me"} {
		if rec := env.do(t, "GET", "/api/chores"+q, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func TestUpdateAndDelete(t *testing.T) {
	env := setupTestEnv(t)
	c := env.createChore(t, map[string]any{"name": "Laundry", "period_type": "daily"})

	rec := env.do(t, "PUT", fmt.Sprintf("/api/chores/%d", c.ID), map[string]any{"name": "Laundry", "period_type": "weekly"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated := decode[model.Chore](t, rec)
	if want := day0.AddDate(0, 0, 7); !updated.NextExecutionDate.Equal(want) {
		t.Errorf("next = %v, want %v", updated.NextExecutionDate, want)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d, want 2", updated.Version)
	}

	if rec := env.do(t, "DELETE", fmt.Sprintf("/api/chores/%d", c.ID), nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	if rec := env.do(t, "GET", fmt.Sprintf("/api/chores/%d", c.ID), nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}
