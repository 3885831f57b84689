package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
	apimw "github.com/hamed0406/uptimeticks/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeticks/internal/live"
	"github.com/hamed0406/uptimeticks/internal/probe"
	"github.com/hamed0406/uptimeticks/internal/query"
	"github.com/hamed0406/uptimeticks/internal/registry"
)

type Server struct {
	Logger   *zap.Logger
	Registry registry.Store
	Query    *query.Service
	Checker  probe.Checker

	// optional
	Hub          *live.Hub
	Metrics      http.Handler
	Resolver     probe.Resolver
	ProbeTimeout time.Duration
}

func NewServer(l *zap.Logger, reg registry.Store, q *query.Service, c probe.Checker) *Server {
	return &Server{
		Logger:       l,
		Registry:     reg,
		Query:        q,
		Checker:      c,
		ProbeTimeout: 10 * time.Second,
	}
}

// Limits are per-IP request budgets for the public and admin route groups.
type Limits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
}

func (s *Server) Router(keys apimw.Keys, lim Limits) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(apimw.Authenticate(keys))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(lim.PublicRPM, lim.PublicBurst))
		r.Use(apimw.Require(apimw.RoleReader))

		r.Get("/api/targets", s.handleListTargets)
		r.Get("/api/targets/{id}", s.handleGetTarget)
		r.Get("/api/regions", s.handleListRegions)

		r.Get("/monitor", s.handleMonitorOverview)
		r.Get("/monitor/live", s.handleLive)
		r.Get("/monitor/{id}", s.handleRange)
		r.Get("/monitor/{id}/downtime", s.handleDowntime)
		r.Get("/monitor/{id}/last_downtime", s.handleLastDowntime)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(lim.AdminRPM, lim.AdminBurst))
		r.Use(apimw.Require(apimw.RoleAdmin))

		r.Post("/api/targets", s.handleAddTarget)
		r.Delete("/api/targets/{id}", s.handleDeleteTarget)
		r.Post("/api/regions", s.handleAddRegion)
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	apimw.WriteError(w, code, msg)
}

// writeQueryError maps read-path failures: bad identifiers are the
// caller's fault, anything else is the store's.
func (s *Server) writeQueryError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, domain.ErrInvalidIdentifier) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Logger.Warn("query_failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusBadGateway, "time-series store unavailable")
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Hostname() != ""
}

// normalizeHTTPURL lowercases scheme and host, drops default ports and a
// bare trailing slash so the same site is not registered twice.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
