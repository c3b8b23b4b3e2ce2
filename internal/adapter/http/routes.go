package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/EscrowBoard/internal/middleware"
)

// RouteConfig holds the optional parts of the API. Nil fields are disabled.
type RouteConfig struct {
	// Idempotency stores replies of requests carrying an Idempotency-Key.
	Idempotency middleware.ResponseStore
	// RateLimit runs after the caller is known, so buckets are per caller.
	RateLimit func(http.Handler) http.Handler
	// Feed serves the live event feed at /ws.
	Feed http.HandlerFunc
}

// MountRoutes registers the board API on r.
func MountRoutes(r chi.Router, h *Handlers, rc RouteConfig) {
	r.Get("/health", h.HealthHandler)
	if rc.Feed != nil {
		r.Get("/ws", rc.Feed)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Caller)
		if rc.RateLimit != nil {
			r.Use(rc.RateLimit)
		}
		if rc.Idempotency != nil {
			r.Use(middleware.Idempotency(rc.Idempotency))
		}

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Tasks
		r.Get("/tasks", h.ListTasks)
		r.Post("/tasks", h.CreateTask)
		r.Get("/tasks/{name}", h.GetTask)
		r.Delete("/tasks/{name}", h.RemoveTask)
		r.Get("/tasks/{name}/events", h.TaskEvents)

		// Bids
		r.Get("/tasks/{name}/bids", h.ListBids)
		r.Post("/tasks/{name}/bids", h.PlaceBid)
		r.Delete("/tasks/{name}/bids", h.RemoveBid)
		r.Get("/tasks/{name}/bids/{bidder}", h.GetBid)

		// Lifecycle
		r.Post("/tasks/{name}/select", h.SelectBid)
		r.Post("/tasks/{name}/finish", h.transition(h.Board.FinishTask))
		r.Post("/tasks/{name}/accept", h.transition(h.Board.AcceptTaskByClient))
		r.Post("/tasks/{name}/reject", h.transition(h.Board.RejectTaskByClient))
		r.Post("/tasks/{name}/expire", h.transition(h.Board.MarkTaskAsExpired))

		// Arbitration
		r.Post("/tasks/{name}/arbitration/accept", h.transition(h.Board.AcceptTaskByArbiter))
		r.Post("/tasks/{name}/arbitration/reject", h.transition(h.Board.RejectTaskByArbiter))

		// Escrow
		r.Get("/escrow/{token}", h.EscrowReport)
	})
}
