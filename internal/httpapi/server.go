// Package httpapi exposes one-shot feed scans over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"feedguard/internal/config"
	"feedguard/internal/dom"
	"feedguard/internal/engine"
	"feedguard/internal/fetcher"
	"feedguard/internal/metrics"
	"feedguard/internal/models"
)

// batchLimit bounds concurrent fetches per batch request.
const batchLimit = 10

// Fetcher loads remote pages. *fetcher.HTTPClient implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
}

type classifyReq struct {
	URL      string          `json:"url"`
	HTML     string          `json:"html"`
	Location string          `json:"location"`
	Settings *models.Settings `json:"settings,omitempty"`
}

type batchReq struct {
	URLs []string `json:"urls"`
}

type classifyResp struct {
	*engine.Report
	HTML string `json:"html,omitempty"`
}

type batchItem struct {
	URL    string          `json:"url"`
	Result *engine.Report `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Server holds what handlers share.
type Server struct {
	cfg     *config.Config
	fetch   Fetcher
	log     *slog.Logger
	metrics *metrics.Metrics
	gather  prometheus.Gatherer

	mu     sync.Mutex
	totals Totals
}

// Totals accumulate over every scan the server ran.
type Totals struct {
	Scans     int `json:"scans"`
	Processed int `json:"processed"`
	Hidden    int `json:"hidden"`
	Sponsored int `json:"sponsored"`
}

// New returns a Server. reg receives the engine metrics and is served on
// /metrics.
func New(cfg *config.Config, fetch Fetcher, log *slog.Logger, reg *prometheus.Registry) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, fetch: fetch, log: log, metrics: metrics.New(reg), gather: reg}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequest)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	r.Get("/rules", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"settings": s.cfg.Settings, "rules": []string{
			models.RuleSponsored, models.RuleSuggested, models.RuleReels, models.RuleGIFs, models.RuleKeywords,
		}})
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		t := s.totals
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, t)
	})
	r.Post("/classify", s.classify)
	r.Post("/classify/batch", s.classifyBatch)
	return r
}

// POST /classify
//
//	text/html body: the page itself; ?location= sets its address
//	JSON body: {"url": "..."} or {"html": "...", "location": "..."}
//
// ?render=1 adds the filtered page to the response.
func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		doc      *html.Node
		location = r.URL.Query().Get("location")
		settings = s.cfg.Settings
		fetchMs  int64
		err      error
	)
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		doc, err = dom.Parse(body, r.Header.Get("Content-Type"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
	default:
		var req classifyReq
		if err := json.NewDecoder(body).Decode(&req); err != nil || (req.URL == "" && req.HTML == "") {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		if req.Settings != nil {
			settings = *req.Settings
		}
		if req.URL != "" {
			ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Server.FetchTimeout)
			defer cancel()
			page, err := s.fetch.Fetch(ctx, req.URL)
			if err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			doc, location, fetchMs = page.Doc, page.Location, page.Took.Milliseconds()
		} else {
			doc, err = dom.ParseString(req.HTML)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, err)
				return
			}
			location = req.Location
		}
	}

	rep, err := s.scan(r.Context(), doc, location, settings)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	rep.FetchMs = fetchMs
	resp := classifyResp{Report: rep}
	if r.URL.Query().Get("render") == "1" {
		var buf bytes.Buffer
		if err := html.Render(&buf, doc); err == nil {
			resp.HTML = buf.String()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /classify/batch {"urls": [...]}
func (s *Server) classifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)).Decode(&req); err != nil || len(req.URLs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	results := make([]batchItem, len(req.URLs))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(batchLimit)
	for i, u := range req.URLs {
		g.Go(func() error {
			results[i] = s.scanURL(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) scanURL(ctx context.Context, u string) batchItem {
	if strings.TrimSpace(u) == "" {
		return batchItem{URL: u, Error: "empty url"}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Server.FetchTimeout)
	defer cancel()
	page, err := s.fetch.Fetch(ctx, u)
	if err != nil {
		return batchItem{URL: u, Error: err.Error()}
	}
	rep, err := s.scan(ctx, page.Doc, page.Location, s.cfg.Settings)
	if err != nil {
		return batchItem{URL: u, Error: err.Error()}
	}
	rep.FetchMs = page.Took.Milliseconds()
	return batchItem{URL: u, Result: rep}
}

func (s *Server) scan(ctx context.Context, doc *html.Node, location string, settings models.Settings) (*engine.Report, error) {
	rep, err := engine.Scan(ctx, doc, location, engine.ScanOptions{
		Options: engine.Options{
			Settings: settings,
			Engine:   s.cfg.Engine,
			Logger:   s.log,
			Metrics:  s.metrics,
		},
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.totals.Scans++
	s.totals.Processed += rep.Stats.Processed
	s.totals.Hidden += rep.Stats.Hidden
	s.totals.Sponsored += rep.Stats.Sponsored
	s.mu.Unlock()
	return rep, nil
}

func statusFor(err error) int {
	var invalid = []error{config.ErrInvalidVerbosity, config.ErrBlankKeyword}
	for _, e := range invalid {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
