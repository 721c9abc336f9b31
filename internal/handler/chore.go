package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/chorely/internal/apperror"
	"github.com/dukerupert/chorely/internal/chore"
	"github.com/dukerupert/chorely/internal/model"
	"github.com/dukerupert/chorely/internal/websocket"
)

// ChoreDeleter removes a chore and its log.
type ChoreDeleter interface {
	Delete(ctx context.Context, choreID int64) error
}

type ChoreHandler struct {
	engine  *chore.Engine
	deleter ChoreDeleter
	hub     *websocket.Hub
	retries uint64
	logger  *slog.Logger
}

func NewChoreHandler(engine *chore.Engine, deleter ChoreDeleter, hub *websocket.Hub, retries uint64, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{engine: engine, deleter: deleter, hub: hub, retries: retries, logger: logger}
}

type choreRequest struct {
	Name                      string               `json:"name"`
	Description               string               `json:"description"`
	PeriodType                model.PeriodType     `json:"period_type"`
	PeriodDays                int                  `json:"period_days"`
	TrackDateOnly             bool                 `json:"track_date_only"`
	Rollover                  bool                 `json:"rollover"`
	AssignmentType            model.AssignmentType `json:"assignment_type"`
	AssignmentConfig          string               `json:"assignment_config"`
	ConsumeProductOnExecution bool                 `json:"consume_product_on_execution"`
	ProductID                 *int64               `json:"product_id"`
	ProductAmount             float64              `json:"product_amount"`
}

func (req choreRequest) input() chore.ChoreInput {
	return chore.ChoreInput{
		Name:                      strings.TrimSpace(req.Name),
		Description:               req.Description,
		PeriodType:                req.PeriodType,
		PeriodDays:                req.PeriodDays,
		TrackDateOnly:             req.TrackDateOnly,
		Rollover:                  req.Rollover,
		AssignmentType:            req.AssignmentType,
		AssignmentConfig:          req.AssignmentConfig,
		ConsumeProductOnExecution: req.ConsumeProductOnExecution,
		ProductID:                 req.ProductID,
		ProductAmount:             req.ProductAmount,
	}
}

// resultResponse is returned by state transitions. Warning is set when the
// transition committed but stock consumption failed.
type resultResponse struct {
	Chore       *model.Chore         `json:"chore"`
	Entry       *model.ChoreLogEntry `json:"entry,omitempty"`
	Warning     string               `json:"warning,omitempty"`
	WarningKind string               `json:"warning_kind,omitempty"`
}

func newResultResponse(res *chore.Result) resultResponse {
	resp := resultResponse{Chore: res.Chore, Entry: res.Entry}
	if res.Warning != nil {
		resp.Warning = res.Warning.Error()
		resp.WarningKind = string(apperror.KindOf(res.Warning))
	}
	return resp
}

func (h *ChoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req choreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	c, err := h.engine.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ChoreHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	chores, err := h.engine.List(r.Context(), f)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if chores == nil {
		chores = []model.Chore{}
	}
	writeJSON(w, http.StatusOK, chores)
}

func parseFilter(r *http.Request) (chore.Filter, error) {
	q := r.URL.Query()
	f := chore.Filter{
		Search:     q.Get("q"),
		PeriodType: model.PeriodType(q.Get("period_type")),
		Sort:       chore.SortKey(q.Get("sort")),
		Descending: q.Get("dir") == "desc",
	}
	if f.PeriodType != "" && !f.PeriodType.Valid() {
		return f, fmt.Errorf("unknown period_type %q", f.PeriodType)
	}
	switch f.Sort {
	case "", chore.SortByID, chore.SortByName, chore.SortByNextExecutionDate, chore.SortByCreatedAt:
	default:
		return f, fmt.Errorf("unknown sort %q", f.Sort)
	}
	if v := q.Get("overdue"); v != "" {
		overdue, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid overdue %q", v)
		}
		f.OverdueOnly = overdue
	}
	if v := q.Get("assigned_to"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid assigned_to %q", v)
		}
		f.AssignedTo = &id
	}
	return f, nil
}

func (h *ChoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	d, err := h.engine.Details(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *ChoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req choreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	var c *model.Chore
	err = chore.Retry(r.Context(), h.retries, func(ctx context.Context) error {
		var err error
		c, err = h.engine.Update(ctx, id, req.input())
		return err
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ChoreHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	if err := h.deleter.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if h.hub != nil {
		h.hub.ChoreDeleted(id, h.engine.Now())
	}
	w.WriteHeader(http.StatusNoContent)
}

type executeRequest struct {
	TrackedTime *time.Time `json:"tracked_time"`
	DoneBy      *int64     `json:"done_by"`
}

func (h *ChoreHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req executeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	h.transition(w, r, func(ctx context.Context) (*chore.Result, error) {
		return h.engine.Execute(ctx, id, chore.ExecuteOptions{TrackedTime: req.TrackedTime, DoneBy: req.DoneBy})
	})
}

type skipRequest struct {
	ScheduledExecutionTime *time.Time `json:"scheduled_execution_time"`
}

func (h *ChoreHandler) Skip(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req skipRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	h.transition(w, r, func(ctx context.Context) (*chore.Result, error) {
		return h.engine.Skip(ctx, id, req.ScheduledExecutionTime)
	})
}

// Undo handles POST /api/chore-log/{id}/undo.
func (h *ChoreHandler) Undo(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	h.transition(w, r, func(ctx context.Context) (*chore.Result, error) {
		return h.engine.Undo(ctx, id)
	})
}

func (h *ChoreHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (*chore.Result, error)) {
	var res *chore.Result
	err := chore.Retry(r.Context(), h.retries, func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newResultResponse(res))
}

func (h *ChoreHandler) Log(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	includeUndone, _ := strconv.ParseBool(r.URL.Query().Get("include_undone"))

	entries, err := h.engine.Log(r.Context(), id, includeUndone)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.ChoreLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
