package representatives

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes is mounted at /api/v1/representatives. /search is registered
// before /{id} so it is never read as an id.
func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.GetByZip)
	r.Get("/search", h.Search)
	r.Get("/{id}", h.GetByID)

	return r
}
