package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
	apimw "github.com/hamed0406/uptimeticks/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeticks/internal/probe"
	"github.com/hamed0406/uptimeticks/internal/tsdb"
)

type addPayload struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	RegionID string `json:"region_id"`
}

// summary is the result of the one-off check run when a target is added.
// It is informational only and is not recorded.
type summary struct {
	TargetID   domain.TargetID `json:"target_id"`
	Up         bool            `json:"up"`
	HTTPStatus int             `json:"http_status"`
	LatencyMS  int64           `json:"latency_ms"`
	Reason     string          `json:"reason,omitempty"`
	CheckedAt  time.Time       `json:"checked_at"`
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.URL == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if !isValidHTTPURL(p.URL) {
		writeError(w, http.StatusBadRequest, "url must be http(s) with a host")
		return
	}
	if p.RegionID != "" && !tsdb.ValidIdentifier(p.RegionID) {
		writeError(w, http.StatusBadRequest, "invalid region_id")
		return
	}

	t := &domain.Target{
		URL:       normalizeHTTPURL(p.URL),
		Name:      strings.TrimSpace(p.Name),
		RegionID:  p.RegionID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Registry.AddTarget(r.Context(), t); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			writeError(w, http.StatusConflict, "target already registered")
			return
		}
		s.Logger.Error("add_target_failed", zap.String("url", t.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}

	sum := s.checkNow(r.Context(), t)

	s.Logger.Info("added_target",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.Stringer("role", apimw.RoleFrom(r.Context())),
		zap.Bool("up", sum.Up),
		zap.Int64("latency_ms", sum.LatencyMS),
	)
	writeJSON(w, http.StatusOK, map[string]any{"target": t, "summary": sum})
}

// checkNow runs a single check for immediate feedback. A transport failure
// is annotated with the DNS class of the host.
func (s *Server) checkNow(ctx context.Context, t *domain.Target) summary {
	cctx, cancel := context.WithTimeout(ctx, s.ProbeTimeout)
	defer cancel()

	checkedAt := time.Now().UTC()
	out := s.Checker.Check(cctx, t.URL)

	reason := out.Reason
	if out.TransportFailure() {
		// a timed out check has spent its deadline; the lookup gets its own
		dns := probe.DiagnoseURL(context.WithoutCancel(ctx), s.Resolver, t.URL)
		s.Logger.Info("dns_check",
			zap.String("domain", dns.Domain),
			zap.String("class", dns.Class),
			zap.Bool("has_a_or_aaaa", dns.HasAOrAAAA),
			zap.Strings("nameservers", dns.Nameservers),
			zap.String("cname", dns.CNAME),
			zap.String("resolver_error", dns.ResolverError),
		)
		reason = strings.TrimSpace(fmt.Sprintf("%s dns=%s", out.Reason, dns.Class))
	}

	return summary{
		TargetID:   t.ID,
		Up:         out.Status == domain.StatusUp,
		HTTPStatus: out.StatusCode,
		LatencyMS:  out.LatencyMS,
		Reason:     reason,
		CheckedAt:  checkedAt,
	}
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Registry.ListTargets(r.Context())
	if err != nil {
		s.Logger.Warn("list_targets_failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleGetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := s.Registry.GetTarget(r.Context(), domain.TargetID(chi.URLParam(r, "id")))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if err != nil {
		s.Logger.Warn("get_target_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := domain.TargetID(chi.URLParam(r, "id"))
	err := s.Registry.DeleteTarget(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if err != nil {
		s.Logger.Warn("delete_target_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.Logger.Info("deleted_target", zap.String("target_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

type regionPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleAddRegion(w http.ResponseWriter, r *http.Request) {
	var p regionPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || strings.TrimSpace(p.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if p.ID != "" && !tsdb.ValidIdentifier(p.ID) {
		writeError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	reg := &domain.Region{ID: p.ID, Name: strings.TrimSpace(p.Name)}
	if err := s.Registry.AddRegion(r.Context(), reg); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			writeError(w, http.StatusConflict, "region already exists")
			return
		}
		s.Logger.Error("add_region_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add")
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	rs, err := s.Registry.ListRegions(r.Context())
	if err != nil {
		s.Logger.Warn("list_regions_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if rs == nil {
		rs = []domain.Region{}
	}
	writeJSON(w, http.StatusOK, rs)
}
