package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeticks/internal/domain"
)

const liveWriteTimeout = 5 * time.Second

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(r.Host), strings.TrimSpace(u.Host))
	},
}

// handleLive streams every probe result as it is produced.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		writeError(w, http.StatusNotFound, "live feed disabled")
		return
	}
	conn, err := liveUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Debug("live_upgrade_failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := s.Hub.Subscribe()
	defer s.Hub.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case res, ok := <-ch:
			if !ok {
				return
			}
			if err := writeLive(conn, res); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeLive(conn *websocket.Conn, res domain.ProbeResult) error {
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return conn.WriteJSON(res)
}
