// Package devserver exposes an in-memory backend over the HTTP URL layout
// that httpclient speaks, so the CLI and tests can run against a local app
// backend.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/backend/memory"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

const (
	correlationHeader = "X-Correlation-ID"
	partyHeader       = "party"
	partyPrefix       = "partyid:"
	shutdownTimeout   = 5 * time.Second
)

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server routes app backend requests to a memory.Backend.
type Server struct {
	backend *memory.Backend
	logger  *slog.Logger
	router  chi.Router
}

// New builds a Server around b.
func New(b *memory.Backend, opts ...Option) (*Server, error) {
	if b == nil {
		return nil, errors.New("devserver: backend is required")
	}
	s := &Server{backend: b}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.router = s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled. ready, when set,
// receives the bound address.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("devserver: listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("devserver: listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("devserver: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("devserver: shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api", func(r chi.Router) {
		r.Get("/v1/applicationmetadata", s.applicationMetadata)
		r.Get("/layoutsets", s.layoutSets)
		r.Get("/resource/FormLayout.json", s.layoutBundle)
		r.Get("/layouts/{set}", s.layoutBundle)
		r.Get("/layoutsettings", s.layoutSettings)
		r.Get("/layoutsettings/{set}", s.layoutSettings)
		r.Get("/options/{id}", s.options)
	})

	r.Route("/instances/{party}/{guid}", func(r chi.Router) {
		r.Get("/", s.instance)
		r.Get("/data/{element}", s.instanceData)
		r.Put("/data/{element}", s.saveInstanceData)
		r.Get("/validate", s.validate)
		r.Put("/process/next", s.processNext)
	})

	r.Get("/v1/data", s.statelessData)
	r.Post("/v1/data", s.saveStatelessData)
	r.Get("/v1/data/anonymous", s.statelessData)
	r.Post("/v1/data/anonymous", s.saveStatelessData)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if cid := r.Header.Get(correlationHeader); cid != "" {
			ww.Header().Set(correlationHeader, cid)
		}
		next.ServeHTTP(ww, r)
		s.logger.Debug("devserver: request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "correlation", r.Header.Get(correlationHeader), "duration", time.Since(started))
	})
}

func (s *Server) applicationMetadata(w http.ResponseWriter, r *http.Request) {
	app, err := s.backend.FetchApplicationMetadata(r.Context())
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.backend.FetchInstance(r.Context(), instanceID(r))
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) layoutSets(w http.ResponseWriter, r *http.Request) {
	sets, err := s.backend.FetchLayoutSets(r.Context())
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

func (s *Server) layoutBundle(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.backend.FetchLayout(r.Context(), chi.URLParam(r, "set"))
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	raw, err := layout.MarshalBundle(bundle)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Warn("devserver: write layout", "error", err)
	}
}

func (s *Server) layoutSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.backend.FetchLayoutSettings(r.Context(), chi.URLParam(r, "set"))
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) options(w http.ResponseWriter, r *http.Request) {
	params := make(map[string]string)
	for k, values := range r.URL.Query() {
		if len(values) > 0 {
			params[k] = values[0]
		}
	}
	opts, err := s.backend.FetchOptions(r.Context(), chi.URLParam(r, "id"), params)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) instanceData(w http.ResponseWriter, r *http.Request) {
	s.fetchData(w, r, backend.InstanceKey(instanceID(r), chi.URLParam(r, "element")))
}

func (s *Server) saveInstanceData(w http.ResponseWriter, r *http.Request) {
	s.saveData(w, r, backend.InstanceKey(instanceID(r), chi.URLParam(r, "element")))
}

func (s *Server) statelessData(w http.ResponseWriter, r *http.Request) {
	s.fetchData(w, r, statelessKey(r))
}

func (s *Server) saveStatelessData(w http.ResponseWriter, r *http.Request) {
	s.saveData(w, r, statelessKey(r))
}

func (s *Server) fetchData(w http.ResponseWriter, r *http.Request, key backend.DataKey) {
	doc, err := s.backend.FetchFormData(r.Context(), key)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) saveData(w http.ResponseWriter, r *http.Request, key backend.DataKey) {
	var doc map[string]any
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return
	}
	issues, err := s.backend.SaveFormData(r.Context(), key, doc)
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validations": issues})
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	issues, err := s.backend.ValidateInstance(r.Context(), instanceID(r))
	if err != nil {
		s.writeBackendError(w, err)
		return
	}
	if issues == nil {
		issues = []validation.Issue{}
	}
	writeJSON(w, http.StatusOK, issues)
}

func (s *Server) processNext(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.CompleteProcessTask(r.Context(), instanceID(r), r.URL.Query().Get("elementId")); err != nil {
		s.writeBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func instanceID(r *http.Request) string {
	return chi.URLParam(r, "party") + "/" + chi.URLParam(r, "guid")
}

func statelessKey(r *http.Request) backend.DataKey {
	dataType := r.URL.Query().Get("dataType")
	if strings.HasSuffix(r.URL.Path, "/anonymous") {
		return backend.StatelessKey(dataType, "", true)
	}
	party := strings.TrimPrefix(r.Header.Get(partyHeader), partyPrefix)
	return backend.StatelessKey(dataType, party, false)
}

// writeBackendError maps backend error kinds back onto HTTP statuses.
func (s *Server) writeBackendError(w http.ResponseWriter, err error) {
	var be *backend.Error
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	if errors.As(err, &be) {
		switch {
		case be.Status != 0:
			status = be.Status
		case be.Kind == backend.KindAuthRequired:
			status = http.StatusForbidden
		case be.Kind == backend.KindNotFound:
			status = http.StatusNotFound
		case be.Kind == backend.KindClient:
			status = http.StatusBadRequest
		}
		code = strings.ToUpper(strings.ReplaceAll(be.Kind.String(), " ", "_"))
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("devserver: backend error", "error", err)
	}
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("devserver: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
