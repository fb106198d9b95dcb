package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(cartHandler *CartHandler, logger *zap.Logger, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Use(SessionMiddleware)
			r.Use(UserMiddleware)

			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Get("/totals", cartHandler.GetTotals)
			r.Get("/count", cartHandler.GetCount)
			r.Get("/lookup", cartHandler.Lookup)
			r.Delete("/error", cartHandler.ClearError)
			r.Post("/checkout", cartHandler.Checkout)
			r.Post("/sync", cartHandler.SyncWithUser)

			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{index}", cartHandler.UpdateQuantity)
			r.Delete("/items/{index}", cartHandler.RemoveItem)
		})
	})

	return r
}
