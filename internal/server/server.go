// Package server exposes family trees over HTTP.
//
// The server is stateless: every request loads the tree afresh, applies the
// collapse state given in the query string and renders. Only rendered
// artifacts and exports are cached.
//
// # Routes
//
//	GET /healthz
//	GET /metrics
//	GET /api/trees/{treeID}                  tree header and counts
//	GET /api/trees/{treeID}/hierarchy        built hierarchy (JSON)
//	GET /api/trees/{treeID}/layout           positioned nodes and links (JSON)
//	GET /api/trees/{treeID}/diagnostics      data problems found while building
//	GET /api/trees/{treeID}/render/{format}  svg, png, jpeg, pdf, dot, graphviz, json
//	GET /api/trees/{treeID}/export           JPEG download (?quality=HD|4K)
//
// Tree routes accept ?collapsed=3,7 and ?collapse_all=true. Render accepts
// ?scale, ?photos and ?refresh as well.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/stemma/pkg/buildinfo"
	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/pipeline"
	"github.com/matzehuels/stemma/pkg/render"
	"github.com/matzehuels/stemma/pkg/view"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 15 * time.Second

// Options are the rendering settings applied to every request.
type Options struct {
	Layout    layout.Options
	Theme     render.Theme
	Padding   float64
	JPEG      int
	PhotoBase string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	runner  *pipeline.Runner
	metrics *Metrics
	logger  *log.Logger
	opts    Options
	router  chi.Router
}

// New builds the router. metrics may be nil, which disables /metrics.
func New(runner *pipeline.Runner, metrics *Metrics, logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	s := &Server{runner: runner, metrics: metrics, logger: logger, opts: opts}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/api/trees/{treeID}", func(r chi.Router) {
		r.Get("/", s.tree)
		r.Get("/hierarchy", s.hierarchy)
		r.Get("/layout", s.layout)
		r.Get("/diagnostics", s.diagnostics)
		r.Get("/render/{format}", s.render)
		r.Get("/export", s.export)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "version", buildinfo.Version)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// observe logs each request and records it in the metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		d := time.Since(start)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.observeRequest(route, r.Method, code, d)
		}
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", code,
			"bytes", ww.BytesWritten(),
			"duration", d,
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildinfo.Version})
}

type treeSummary struct {
	Tree          family.Tree `json:"tree"`
	Persons       int         `json:"persons"`
	Relationships int         `json:"relationships"`
	Marriages     int         `json:"marriages"`
	LoadedAt      time.Time   `json:"loaded_at"`
}

func (s *Server) tree(w http.ResponseWriter, r *http.Request) {
	id, err := treeID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.runner.Load(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, treeSummary{
		Tree:          snap.Tree,
		Persons:       len(snap.Persons),
		Relationships: len(snap.Relationships),
		Marriages:     len(snap.Marriages),
		LoadedAt:      snap.LoadedAt,
	})
}

// build loads the tree of the request and builds its hierarchy with the
// requested collapse state.
func (s *Server) build(r *http.Request) (*family.Hierarchy, family.Diagnostics, pipeline.Options, error) {
	opts, err := s.options(r)
	if err != nil {
		return nil, family.Diagnostics{}, opts, err
	}
	snap, err := s.runner.Load(r.Context(), opts.TreeID)
	if err != nil {
		return nil, family.Diagnostics{}, opts, err
	}
	h, diag := s.runner.Build(r.Context(), snap, opts)
	return h, diag, opts, nil
}

func (s *Server) hierarchy(w http.ResponseWriter, r *http.Request) {
	h, _, _, err := s.build(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) layout(w http.ResponseWriter, r *http.Request) {
	h, _, opts, err := s.build(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.runner.Layout(r.Context(), h, opts))
}

type diagnosticsResponse struct {
	family.Diagnostics
	Warnings []string `json:"warnings"`
}

func (s *Server) diagnostics(w http.ResponseWriter, r *http.Request) {
	_, diag, _, err := s.build(r)
	if err != nil {
		writeError(w, err)
		return
	}
	warnings := diag.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{Diagnostics: diag, Warnings: warnings})
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, err)
		return
	}
	format := chi.URLParam(r, "format")
	if err := pipeline.ValidateFormat(format); err != nil {
		writeError(w, err)
		return
	}
	opts.Formats = []string{format}

	res, err := s.runner.Execute(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	cache := "miss"
	if res.CacheInfo.RenderHit {
		cache = "hit"
	}
	w.Header().Set("X-Cache", cache)
	w.Header().Set("X-Layout-Hash", res.LayoutHash)
	writeBytes(w, pipeline.ContentType(format), res.Artifacts[format])
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	opts, err := s.options(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := view.QualityHD
	if name := r.URL.Query().Get("quality"); name != "" {
		if q, err = view.ParseQuality(name); err != nil {
			writeError(w, err)
			return
		}
	}

	ctx := r.Context()
	sess := view.New(s.runner, opts.TreeID,
		view.WithLayout(opts.Layout),
		view.WithTheme(opts.Theme),
		view.WithExportPadding(opts.Padding),
		view.WithJPEGQuality(opts.JPEG))
	if err := sess.Reload(ctx); err != nil {
		writeError(w, err)
		return
	}
	switch {
	case opts.CollapseAll:
		sess.CollapseAll(ctx)
	case len(opts.Collapsed) > 0:
		if err := sess.SetCollapsed(ctx, opts.Collapsed); err != nil {
			writeError(w, err)
			return
		}
	}

	exp, err := sess.Export(ctx, q)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.Header().Set("X-Export-Id", exp.ID)
	w.Header().Set("X-Export-Scale", strconv.FormatFloat(exp.Scale, 'g', -1, 64))
	writeBytes(w, exp.ContentType(), exp.Data)
}

// =============================================================================
// Request parsing
// =============================================================================

func treeID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "treeID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInvalidInput, "invalid tree id %q", raw)
	}
	return id, errors.ValidateTreeID(id)
}

// options reads the tree id and query parameters into validated pipeline
// options.
func (s *Server) options(r *http.Request) (pipeline.Options, error) {
	id, err := treeID(r)
	if err != nil {
		return pipeline.Options{}, err
	}
	q := r.URL.Query()
	opts := pipeline.Options{
		TreeID:  id,
		Layout:  s.opts.Layout,
		Theme:   s.opts.Theme,
		Padding: s.opts.Padding,
		JPEG:    s.opts.JPEG,
		Logger:  s.logger,
	}

	if opts.Collapsed, err = parseIDs(q.Get("collapsed")); err != nil {
		return opts, err
	}
	if opts.CollapseAll, err = parseBool(q, "collapse_all"); err != nil {
		return opts, err
	}
	if opts.Refresh, err = parseBool(q, "refresh"); err != nil {
		return opts, err
	}
	if opts.Detailed, err = parseBool(q, "detailed"); err != nil {
		return opts, err
	}
	photos, err := parseBool(q, "photos")
	if err != nil {
		return opts, err
	}
	if photos && s.opts.PhotoBase != "" {
		opts.PhotoBase = s.opts.PhotoBase
	}
	if v := q.Get("scale"); v != "" {
		if opts.Scale, err = strconv.ParseFloat(v, 64); err != nil {
			return opts, errors.New(errors.ErrCodeInvalidInput, "invalid scale %q", v)
		}
	}

	if err := opts.ValidateAndSetDefaults(); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidInput, "invalid collapsed id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseBool(q map[string][]string, key string) (bool, error) {
	vs := q[key]
	if len(vs) == 0 || vs[0] == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(vs[0])
	if err != nil {
		return false, errors.New(errors.ErrCodeInvalidInput, "invalid %s %q", key, vs[0])
	}
	return b, nil
}

// =============================================================================
// Responses
// =============================================================================

// envelope mirrors the response shape of the family-tree backend.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: v})
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(envelope{Code: string(code), Message: errors.UserMessage(err)})
}

func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
