package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/voltbora/volt/internal/ingest"
	"github.com/voltbora/volt/internal/models"
	"github.com/voltbora/volt/internal/storage"
	"github.com/voltbora/volt/internal/tracker"
)

const (
	maxBodyBytes       = 10 << 20
	defaultLeaderboard = 20
	defaultImportLogs  = 50
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	hosted := s.deps.Health != nil
	if hosted {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.log.Warn("hosted store ping failed", "error", err)
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"hosted":          hosted,
		"active_trackers": s.deps.Trackers.Active(),
	})
}

// refresh runs a recomputation pass for the caller. A tracker torn down
// between Init and Refresh is replaced once.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) (*tracker.Result, bool) {
	uid := UserID(r.Context())
	res, err := s.deps.Trackers.Init(r.Context(), uid).Refresh(r.Context())
	if errors.Is(err, tracker.ErrTornDown) {
		res, err = s.deps.Trackers.Init(r.Context(), uid).Refresh(r.Context())
	}
	if err != nil {
		s.log.Error("refresh failed", "user_id", uid, "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return nil, false
	}
	return res, true
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	res, ok := s.refresh(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	res, ok := s.refresh(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"achievements":   res.Achievements,
		"newly_unlocked": res.NewlyUnlocked,
		"degraded":       res.Degraded,
	})
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	res, ok := s.refresh(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"streak":   res.Streak,
		"degraded": res.Degraded,
	})
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, s.deps.HistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uid := UserID(r.Context())
	sessions, stale, err := s.deps.History.GetWorkoutHistory(r.Context(), uid, limit)
	if err != nil {
		s.log.Error("history read failed", "user_id", uid, "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.WorkoutSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"stale":    stale,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultLeaderboard)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uid := UserID(r.Context())
	lb, err := s.deps.Trackers.Init(r.Context(), uid).Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	released := s.deps.Trackers.Teardown(UserID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

// decodeSessions accepts a single session object or an array of them.
func decodeSessions(r io.Reader) ([]ingest.SessionPayload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var payloads []ingest.SessionPayload
		if err := json.Unmarshal(data, &payloads); err != nil {
			return nil, err
		}
		return payloads, nil
	}
	var p ingest.SessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return []ingest.SessionPayload{p}, nil
}

func (s *Server) handleRecordWorkouts(w http.ResponseWriter, r *http.Request) {
	payloads, err := decodeSessions(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	uid := UserID(r.Context())
	sessions, result := ingest.NormalizeAll(payloads, uid, s.deps.Location)
	if len(sessions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no valid sessions", "ingest": result})
		return
	}
	if err := ingest.Store(r.Context(), s.deps.History, sessions, result); err != nil {
		s.log.Error("recording sessions failed", "user_id", uid, "error", err)
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	res, ok := s.refresh(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ingest": result, "progress": res})
}

func (s *Server) handleAlphaImport(w http.ResponseWriter, r *http.Request) {
	uid := UserID(r.Context())
	start := time.Now()
	result, err := s.deps.Alpha.Ingest(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes), uid)
	s.logImport(uid, "alpha", result, err, int(time.Since(start).Milliseconds()))
	if err != nil {
		s.log.Error("alpha import error", "user_id", uid, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, ok := s.refresh(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"import": result, "progress": res})
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Imports == nil {
		writeError(w, http.StatusNotFound, "import logs require the hosted store")
		return
	}
	limit, err := queryLimit(r, defaultImportLogs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := s.deps.Imports.QueryImportLogs(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// logImport records an import operation's result to the import_logs table.
func (s *Server) logImport(uid int, source string, result *ingest.Result, importErr error, durationMs int) {
	if s.deps.Imports == nil || uid == models.AnonymousUserID {
		return
	}
	status := "success"
	var errMsg *string
	if importErr != nil {
		status = "error"
		msg := importErr.Error()
		errMsg = &msg
	}
	if result == nil {
		result = &ingest.Result{}
	}

	log := storage.ImportLog{
		UserID:           uid,
		Source:           source,
		Status:           status,
		SessionsReceived: result.SessionsReceived,
		SessionsInserted: result.SessionsInserted,
		SessionsRejected: result.SessionsRejected,
		SetsReceived:     result.SetsReceived,
		DurationMs:       &durationMs,
		ErrorMessage:     errMsg,
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	if _, err := s.deps.Imports.InsertImportLog(ctx, log); err != nil {
		s.log.Error("failed to log import", "source", source, "error", err)
	}
}

// contextWithTimeout returns a background context with a 5-second timeout for import logging.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd
}

// queryLimit parses the optional limit parameter.
func queryLimit(r *http.Request, def int) (int, error) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, nil
	}
	n, err := strconv.Atoi(l)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", l)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
