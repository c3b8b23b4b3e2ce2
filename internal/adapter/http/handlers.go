package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Strob0t/EscrowBoard/internal/domain/bid"
	"github.com/Strob0t/EscrowBoard/internal/domain/task"
	"github.com/Strob0t/EscrowBoard/internal/middleware"
	"github.com/Strob0t/EscrowBoard/internal/service"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handlers holds the HTTP handlers of the board API.
type Handlers struct {
	Board  *service.BoardService
	Health map[string]HealthCheck
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type createTaskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Token       string `json:"token"`
	MinDuration string `json:"min_duration"`
}

type placeBidRequest struct {
	Price                  decimal.Decimal `json:"price"`
	Description            string          `json:"description"`
	ImplementationDuration string          `json:"implementation_duration"`
}

type selectBidRequest struct {
	Bidder string `json:"bidder"`
}

type taskResponse struct {
	Name        string          `json:"name"`
	Client      string          `json:"client"`
	Description string          `json:"description"`
	Token       string          `json:"token"`
	MinDuration string          `json:"min_duration"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Worker      string          `json:"worker,omitempty"`
	State       task.State      `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func newTaskResponse(t *task.Task) taskResponse {
	resp := taskResponse{
		Name:        t.Name,
		Client:      t.Client,
		Description: t.Description,
		Token:       t.Token,
		MinDuration: t.MinDuration.String(),
		Price:       t.Price,
		Worker:      t.Worker,
		State:       t.State,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if !t.Deadline.IsZero() {
		d := t.Deadline
		resp.Deadline = &d
	}
	return resp
}

type bidResponse struct {
	TaskName               string          `json:"task_name"`
	Bidder                 string          `json:"bidder"`
	Price                  decimal.Decimal `json:"price"`
	Description            string          `json:"description"`
	ImplementationDuration string          `json:"implementation_duration"`
	CreatedAt              time.Time       `json:"created_at"`
}

func newBidResponse(b *bid.Bid) bidResponse {
	return bidResponse{
		TaskName:               b.TaskName,
		Bidder:                 b.Bidder,
		Price:                  b.Price,
		Description:            b.Description,
		ImplementationDuration: b.ImplementationDuration.String(),
		CreatedAt:              b.CreatedAt,
	}
}

func caller(r *http.Request) string {
	return middleware.CallerFromContext(r.Context())
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// ListTasks handles GET /api/v1/tasks
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.Board.ListTasks(r.Context(), task.Filter{
		State:  task.State(q.Get("state")),
		Client: q.Get("client"),
		Worker: q.Get("worker"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]taskResponse, len(tasks))
	for i := range tasks {
		out[i] = newTaskResponse(&tasks[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateTask handles POST /api/v1/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createTaskRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Board.CreateTask(r.Context(), caller(r), task.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Token:       req.Token,
		MinDuration: parseDuration(req.MinDuration),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTaskResponse(t))
}

// GetTask handles GET /api/v1/tasks/{name}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Board.GetTask(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(t))
}

// RemoveTask handles DELETE /api/v1/tasks/{name}
func (h *Handlers) RemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Board.RemoveTask(r.Context(), caller(r), urlParam(r, "name")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TaskEvents handles GET /api/v1/tasks/{name}/events
func (h *Handlers) TaskEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Board.TaskEvents(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// transition adapts a single-task board operation to a handler.
func (h *Handlers) transition(op func(ctx context.Context, caller, name string) (*task.Task, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := op(r.Context(), caller(r), urlParam(r, "name"))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newTaskResponse(t))
	}
}

// SelectBid handles POST /api/v1/tasks/{name}/select
func (h *Handlers) SelectBid(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[selectBidRequest](w, r)
	if !ok {
		return
	}
	if req.Bidder == "" {
		writeError(w, http.StatusBadRequest, "bidder is required")
		return
	}
	t, err := h.Board.SelectBid(r.Context(), caller(r), urlParam(r, "name"), req.Bidder)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(t))
}

// ---------------------------------------------------------------------------
// Bids
// ---------------------------------------------------------------------------

// ListBids handles GET /api/v1/tasks/{name}/bids
func (h *Handlers) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.Board.ListBids(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]bidResponse, len(bids))
	for i := range bids {
		out[i] = newBidResponse(&bids[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// PlaceBid handles POST /api/v1/tasks/{name}/bids
func (h *Handlers) PlaceBid(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[placeBidRequest](w, r)
	if !ok {
		return
	}
	b, err := h.Board.PlaceBid(r.Context(), caller(r), urlParam(r, "name"), bid.PlaceRequest{
		Price:                  req.Price,
		Description:            req.Description,
		ImplementationDuration: parseDuration(req.ImplementationDuration),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBidResponse(b))
}

// GetBid handles GET /api/v1/tasks/{name}/bids/{bidder}
func (h *Handlers) GetBid(w http.ResponseWriter, r *http.Request) {
	b, err := h.Board.GetBid(r.Context(), urlParam(r, "name"), urlParam(r, "bidder"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBidResponse(b))
}

// RemoveBid handles DELETE /api/v1/tasks/{name}/bids
func (h *Handlers) RemoveBid(w http.ResponseWriter, r *http.Request) {
	if err := h.Board.RemoveBid(r.Context(), caller(r), urlParam(r, "name")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Escrow & health
// ---------------------------------------------------------------------------

// EscrowReport handles GET /api/v1/escrow/{token}
func (h *Handlers) EscrowReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Board.EscrowReport(r.Context(), urlParam(r, "token"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HealthHandler handles GET /health
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.Health))
	for name, check := range h.Health {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "dependencies": deps})
}
