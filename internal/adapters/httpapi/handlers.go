package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/alejandrodnm/signalbot/internal/analytics"
	"github.com/alejandrodnm/signalbot/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.Len()
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"ok":         true,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"ws_clients": clients,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.analytics.Summary(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

func (s *Server) handleAccuracyOverTime(w http.ResponseWriter, r *http.Request) {
	seq, err := s.analytics.AccuracyOverTime(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	points := []domain.AccuracyPoint{}
	for minute, acc := range seq {
		points = append(points, domain.AccuracyPoint{Minute: minute, AccuracyPct: acc})
	}
	writeJSON(w, r, http.StatusOK, points)
}

func (s *Server) handleAccuracyByCoin(w http.ResponseWriter, r *http.Request) {
	byCoin, err := s.analytics.AccuracyByCoin(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, byCoin)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.analytics.Ranking(r.Context(), mux.Vars(r)["dimension"])
	if errors.Is(err, analytics.ErrUnknownDimension) {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	hm, err := s.analytics.Heatmap(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hm)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.analytics.Leaderboard(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

func (s *Server) handleRolling(w http.ResponseWriter, r *http.Request) {
	points, err := s.analytics.RollingWinRate(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, points)
}

func (s *Server) handleProfit(w http.ResponseWriter, r *http.Request) {
	points, err := s.analytics.CumulativeProfit(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, points)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = min(n, s.cfg.MaxRecent)
	}
	rows, err := s.analytics.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSignalsJSON(rows))
}

func (s *Server) handleHighConfidence(w http.ResponseWriter, r *http.Request) {
	threshold := 0.0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 || f > 100 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid threshold %q", raw))
			return
		}
		threshold = f
	}
	rows, err := s.analytics.HighConfidence(r.Context(), threshold)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toSignalsJSON(rows))
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("http encode failed", "request_id", requestID(r), "err", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("http handler failed", "request_id", requestID(r), "path", r.URL.Path, "err", err)
	}
	writeJSON(w, r, status, errorJSON{Error: err.Error(), RequestID: requestID(r)})
}
