package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"nudge/internal/auth"
	"nudge/internal/contact"
	"nudge/internal/task"
)

type taskService interface {
	Create(ctx context.Context, userID uint64, in task.CreateInput) (*task.Task, error)
	List(ctx context.Context, userID uint64, status task.Status) ([]task.Task, error)
	RequestApproval(ctx context.Context, userID, id uint64) (*task.Task, error)
}

type TaskHandler struct {
	Svc taskService
	Log *zap.Logger
}

type taskView struct {
	ID           uint64      `json:"id"`
	Title        string      `json:"title"`
	Status       task.Status `json:"status"`
	DueAt        *time.Time  `json:"due_at,omitempty"`
	ScheduledFor *time.Time  `json:"scheduled_for,omitempty"`
	NudgedAt     *time.Time  `json:"nudged_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

func taskViewOf(t task.Task) taskView {
	return taskView{
		ID:           t.ID,
		Title:        t.Title,
		Status:       t.Status,
		DueAt:        t.DueAt,
		ScheduledFor: t.ScheduledFor,
		NudgedAt:     t.NudgedAt,
		CreatedAt:    t.CreatedAt,
	}
}

type createTaskReq struct {
	Title string  `json:"title"`
	DueAt *string `json:"due_at"` // RFC3339 optional
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	var dueAt *time.Time
	if req.DueAt != nil && strings.TrimSpace(*req.DueAt) != "" {
		t, err := time.Parse(time.RFC3339, *req.DueAt)
		if err != nil {
			http.Error(w, "invalid due_at (RFC3339)", http.StatusBadRequest)
			return
		}
		dueAt = &t
	}

	t, err := h.Svc.Create(r.Context(), uid, task.CreateInput{Title: req.Title, DueAt: dueAt})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskViewOf(*t))
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	status := task.Status(strings.TrimSpace(r.URL.Query().Get("status")))
	items, err := h.Svc.List(r.Context(), uid, status)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]taskView, 0, len(items))
	for _, t := range items {
		out = append(out, taskViewOf(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

// RequestApproval asks the user, on their primary channel, to approve the task.
func (h *TaskHandler) RequestApproval(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	t, err := h.Svc.RequestApproval(r.Context(), uid, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, taskViewOf(*t))
}

func (h *TaskHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, task.ErrTitleRequired):
		http.Error(w, "title required", http.StatusBadRequest)
	case errors.Is(err, task.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, contact.ErrNoChannel):
		http.Error(w, "no verified channel", http.StatusUnprocessableEntity)
	default:
		h.Log.Error("task request", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
