package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

type overviewRow struct {
	Target domain.Target        `json:"target"`
	Latest *domain.TargetStatus `json:"latest"`
}

// handleMonitorOverview lists every target with its most recent sample.
func (s *Server) handleMonitorOverview(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Registry.ListTargets(r.Context())
	if err != nil {
		s.Logger.Warn("list_targets_failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	out := make([]overviewRow, 0, len(ts))
	for _, t := range ts {
		row := overviewRow{Target: t}
		st, ok, err := s.Query.Latest(r.Context(), t.ID)
		if err != nil {
			s.writeQueryError(w, "latest", err)
			return
		}
		if ok {
			row.Latest = &st
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	id, region, days := rangeParams(r)
	pts, err := s.Query.Range(r.Context(), id, region, days)
	if err != nil {
		s.writeQueryError(w, "range", err)
		return
	}
	writeJSON(w, http.StatusOK, pts)
}

func (s *Server) handleDowntime(w http.ResponseWriter, r *http.Request) {
	id, region, days := rangeParams(r)
	pts, err := s.Query.DowntimeRange(r.Context(), id, region, days)
	if err != nil {
		s.writeQueryError(w, "downtime", err)
		return
	}
	writeJSON(w, http.StatusOK, pts)
}

// handleLastDowntime answers with a single point or JSON null.
func (s *Server) handleLastDowntime(w http.ResponseWriter, r *http.Request) {
	id, region, _ := rangeParams(r)
	p, err := s.Query.LastDowntime(r.Context(), id, region)
	if err != nil {
		s.writeQueryError(w, "last_downtime", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// rangeParams reads {id}, ?region= and ?days=. An unparsable days value is
// passed on as 0 and falls back to one day.
func rangeParams(r *http.Request) (domain.TargetID, string, int) {
	q := r.URL.Query()
	days, _ := strconv.Atoi(q.Get("days"))
	return domain.TargetID(chi.URLParam(r, "id")), q.Get("region"), days
}
