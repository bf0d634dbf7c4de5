package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/civicatlas/contribution-wizard/internal/config"
	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/core/ports"
	"github.com/civicatlas/contribution-wizard/internal/core/usecase"
	"github.com/civicatlas/contribution-wizard/internal/observability/metrics"
)

const (
	cityHeader          = "X-City"
	loginRedirectHeader = "X-Login-Redirect"
	loginPath           = "/login"
)

// DocumentLister loads the documents attached to a saved contribution.
type DocumentLister interface {
	ListDocuments(ctx context.Context, recordID string) ([]domain.StoredDocument, error)
}

type Dependencies struct {
	Wizards   *usecase.WizardRegistry
	Records   ports.ContributionReader
	Documents DocumentLister
	Sessions  ports.SessionProvider
	Cities    ports.CityResolver
	Catalog   config.Catalog
	Files     ports.ObjectStorage
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/catalog", rt.getCatalog)
	mux.HandleFunc("GET /v1/contributions/{id}", rt.getContribution)
	mux.HandleFunc("GET /files/{key...}", rt.getFile)
	rt.registerWizardRoutes(mux)

	var handler http.Handler = mux
	handler = sessionTokenMiddleware(handler)
	if rt.cfg.APIMaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, 250*time.Millisecond)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) getCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.deps.Catalog)
}

func (rt *Router) getContribution(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, errors.New("contribution id is required"), nil)
		return
	}
	if rt.deps.Records == nil {
		writeError(w, r, http.StatusServiceUnavailable, errors.New("record store is not configured"), nil)
		return
	}

	record, err := rt.deps.Records.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	if rt.deps.Documents != nil {
		docs, err := rt.deps.Documents.ListDocuments(r.Context(), id)
		if err != nil {
			slog.Warn("contribution_documents_load_failed", "record_id", id, "error", err)
		} else {
			record.Documents = docs
		}
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) getFile(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Files == nil {
		writeError(w, r, http.StatusNotFound, errors.New("file serving is disabled"), nil)
		return
	}
	key := r.PathValue("key")
	reader, err := rt.deps.Files.Open(r.Context(), key)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err, nil)
		return
	}
	defer reader.Close()

	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("file_stream_failed", "key", key, "error", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return domain.WrapError(domain.ErrValidation, "decode request", errors.New("empty body"))
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrValidation, "decode request", errors.New("empty body"))
		}
		return domain.WrapError(domain.ErrValidation, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string          `json:"error"`
	RequestID string          `json:"request_id,omitempty"`
	Notices   []domain.Notice `json:"notices,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error, notices []domain.Notice) {
	if status >= 500 {
		slog.Error("http_handler_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		RequestID: requestIDFromContext(r.Context()),
		Notices:   notices,
	})
}
