package representatives

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/EmpoweredVote/rep-lookup/internal/db"
	"github.com/EmpoweredVote/rep-lookup/internal/httputil"
	"github.com/EmpoweredVote/rep-lookup/internal/utils"
	"github.com/EmpoweredVote/rep-lookup/internal/validate"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Resolver is the read side the handlers depend on. *Store implements it.
type Resolver interface {
	ResolveByZip(ctx context.Context, zip string) (*Geography, error)
	ResolveForGeography(ctx context.Context, geographyID uint, f Filter) ([]RepresentativeRow, error)
	Search(ctx context.Context, p SearchParams) (SearchResult, error)
	GetByID(ctx context.Context, id uint) (*Representative, []ServedArea, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	store       Resolver
	log         *zap.Logger
	debugErrors bool
	now         func() time.Time
}

// NewHandler wires the HTTP handlers. With debugErrors set, 500 responses
// carry a stack trace.
func NewHandler(store Resolver, log *zap.Logger, debugErrors bool) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:       store,
		log:         log.Named("representatives"),
		debugErrors: debugErrors,
		now:         time.Now,
	}
}

// GetByZip handles GET /api/v1/representatives?zip=.
func (h *Handler) GetByZip(w http.ResponseWriter, r *http.Request) {
	q, err := validate.ZipQuery(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	f := Filter{IncludeInactive: q.IncludeInactive, Branch: Branch(q.Branch)}

	start := time.Now()
	geo, err := h.store.ResolveByZip(r.Context(), q.Zip)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows, err := h.store.ResolveForGeography(r.Context(), geo.ID, f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.AddServerTiming(w, "dbread", time.Since(start))

	httputil.WriteJSON(w, AssembleZip(geo, rows, f, h.now()))
}

// Search handles GET /api/v1/representatives/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := validate.SearchQuery(r.URL.Query())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	p := SearchParams{
		Name:   q.Name,
		Party:  q.Party,
		Branch: Branch(q.Branch),
		State:  q.State,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if !p.HasCriteria() {
		h.respondError(w, r, ErrInvalidSearch)
		return
	}

	start := time.Now()
	res, err := h.store.Search(r.Context(), p)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.AddServerTiming(w, "dbread", time.Since(start))

	httputil.WriteJSON(w, AssembleSearch(res, p, h.now()))
}

// GetByID handles GET /api/v1/representatives/{id}.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		httputil.WriteError(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:     "Invalid representative ID",
			Message:   fmt.Sprintf("%q is not a positive integer", raw),
			Timestamp: httputil.Timestamp(h.now()),
		})
		return
	}

	start := time.Now()
	rep, areas, err := h.store.GetByID(r.Context(), uint(id))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.AddServerTiming(w, "dbread", time.Since(start))

	httputil.WriteJSON(w, AssembleDetail(rep, areas, h.now()))
}

type statsResponse struct {
	Stats
	Timestamp string `json:"timestamp"`
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httputil.WriteJSON(w, statsResponse{Stats: st, Timestamp: httputil.Timestamp(h.now())})
}

type healthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Database: "connected", Timestamp: httputil.Timestamp(h.now())}
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn("[health] database ping failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		resp.Error = "database ping failed"
		httputil.WriteJSONStatus(w, http.StatusServiceUnavailable, resp)
		return
	}
	httputil.WriteJSON(w, resp)
}

type endpointDoc struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

type rootResponse struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Endpoints []endpointDoc `json:"endpoints"`
	Timestamp string        `json:"timestamp"`
}

var endpoints = []endpointDoc{
	{Method: "GET", Path: "/health", Description: "Liveness and database check"},
	{
		Method:      "GET",
		Path:        "/api/v1/representatives",
		Description: "Representatives serving a ZIP code, grouped by branch",
		Parameters: map[string]string{
			"zip":              "required, 5 digits",
			"include_inactive": "optional, boolean (default false)",
			"branch":           "optional, federal|state|local",
		},
	},
	{
		Method:      "GET",
		Path:        "/api/v1/representatives/search",
		Description: "Search active representatives",
		Parameters: map[string]string{
			"name":   "optional, case-insensitive substring",
			"party":  "optional, case-insensitive substring",
			"branch": "optional, federal|state|local",
			"state":  "optional, 2-letter state code",
			"limit":  "optional, 1-100 (default 20)",
			"offset": "optional, >= 0 (default 0)",
		},
	},
	{Method: "GET", Path: "/api/v1/representatives/{id}", Description: "One representative and the areas it serves"},
	{Method: "GET", Path: "/stats", Description: "Aggregate counts"},
	{Method: "GET", Path: "/metrics", Description: "Prometheus metrics"},
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, rootResponse{
		Name:      "Representative Lookup API",
		Version:   "1.0.0",
		Endpoints: endpoints,
		Timestamp: httputil.Timestamp(h.now()),
	})
}

// respondError maps an error to its status code and envelope.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	body := httputil.ErrorResponse{Timestamp: httputil.Timestamp(h.now())}

	var (
		verr   *validate.ValidationError
		nf     *NotFoundError
		serr   *db.StorageError
		status int
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusUnprocessableEntity
		body.Error = "Validation failed"
		body.Details = verr.Details
	case errors.Is(err, ErrInvalidSearch):
		status = http.StatusBadRequest
		body.Error = "Invalid search"
		body.Message = ErrInvalidSearch.Error()
	case errors.As(err, &nf):
		status = http.StatusNotFound
		body.Error = nf.Resource + " not found"
		body.Message = nf.Suggestion
	case errors.As(err, &serr) && serr.Unavailable:
		status = http.StatusServiceUnavailable
		body.Error = "Service unavailable"
		body.Message = "Database is unavailable, please retry later"
	default:
		status = http.StatusInternalServerError
		body.Error = "Internal server error"
		if h.debugErrors {
			body.Message = err.Error()
			body.Stack = string(debug.Stack())
		}
	}

	if status >= http.StatusInternalServerError {
		reqID, _ := utils.GetRequestIDFromContext(r.Context())
		h.log.Error("[representatives] request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", reqID),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	httputil.WriteError(w, status, body)
}
