package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meltforce/liftlog/internal/estimator"
	"github.com/meltforce/liftlog/internal/logtext"
	"github.com/meltforce/liftlog/internal/models"
)

type logSetRequest struct {
	Program models.ProgramContext `json:"program"`
	Set     models.SetLog         `json:"set"`
}

func (s *Server) handleLogSet(w http.ResponseWriter, r *http.Request) {
	var req logSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Set.ExerciseName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise_name required"})
		return
	}
	if req.Set.Reps < 0 || req.Set.Weight < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reps and weight must not be negative"})
		return
	}

	rec, err := s.history.LogSet(r.Context(), req.Program, req.Set)
	if err != nil {
		s.log.Error("logging set", "exercise", req.Set.ExerciseName, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	estimate := s.cache.UpdateExercise(r.Context(), rec.ExerciseName)
	writeJSON(w, http.StatusCreated, map[string]any{
		"record":   rec,
		"estimate": estimate,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.history.CompletedSessions(r.Context(), limit))
}

func (s *Server) handleSessionRecords(w http.ResponseWriter, r *http.Request) {
	date, programID, ok := sessionKey(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.history.SessionRecords(r.Context(), date, programID))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	date, programID, ok := sessionKey(w, r)
	if !ok {
		return
	}

	var (
		n   int64
		err error
	)
	exercise := r.URL.Query().Get("exercise")
	if exercise != "" {
		n, err = s.history.DeleteExercise(r.Context(), date, programID, exercise)
	} else {
		n, err = s.history.DeleteSession(r.Context(), date, programID)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// Tombstoned rows no longer feed estimates.
	s.cache.RebuildAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type moveSessionRequest struct {
	Date      string `json:"date"`
	ProgramID string `json:"program_id"`
	NewDate   string `json:"new_date"`
}

func (s *Server) handleMoveSession(w http.ResponseWriter, r *http.Request) {
	var req moveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if _, err := time.Parse(models.DateLayout, req.NewDate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "new_date must be YYYY-MM-DD"})
		return
	}
	if req.Date == "" || req.ProgramID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date and program_id required"})
		return
	}

	n, err := s.history.MoveSession(r.Context(), req.Date, req.ProgramID, req.NewDate)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// Estimates weight samples by date, so a moved session shifts decay.
	s.cache.RebuildAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]int64{"moved": n})
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.ExerciseNames(r.Context()))
}

func (s *Server) handleExerciseHistory(w http.ResponseWriter, r *http.Request) {
	name, ok := exerciseName(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.history.ExerciseHistory(r.Context(), name))
}

func (s *Server) handleWeekPerformance(w http.ResponseWriter, r *http.Request) {
	name, ok := exerciseName(w, r)
	if !ok {
		return
	}
	programID := r.URL.Query().Get("program")
	if programID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "program parameter required"})
		return
	}
	week, err := strconv.Atoi(r.URL.Query().Get("week"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "week parameter required"})
		return
	}
	writeJSON(w, http.StatusOK, s.history.WeekPerformance(r.Context(), name, programID, week))
}

func (s *Server) handleListEstimates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Entries())
}

func (s *Server) handleGetEstimate(w http.ResponseWriter, r *http.Request) {
	name, ok := exerciseName(w, r)
	if !ok {
		return
	}
	entry, found := s.cache.Lookup(name)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no estimate for " + name})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"estimate":      entry,
		"effective_trm": entry.EffectiveTRM(),
		"trend":         s.exerciseTrend(r, name),
	})
}

// exerciseTrend recomputes the recent direction from effective history.
// Too cheap to cache: one exercise's records at interactive rates.
func (s *Server) exerciseTrend(r *http.Request, name string) estimator.Trend {
	var samples []estimator.Sample
	for _, rec := range s.history.ExerciseHistory(r.Context(), name) {
		if rec.IsCompoundParent || !rec.Completed || rec.Reps <= 0 || rec.Weight <= 0 {
			continue
		}
		samples = append(samples, estimator.Sample{
			Date:   rec.Date,
			Weight: rec.Weight,
			Reps:   rec.Reps,
			RPE:    rec.RPE,
		})
	}
	return estimator.TrendOf(samples)
}

type overrideRequest struct {
	TRM float64 `json:"trm"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	name, ok := exerciseName(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.TRM <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "trm must be positive"})
		return
	}
	writeJSON(w, http.StatusOK, s.cache.SetOverride(r.Context(), name, req.TRM))
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	name, ok := exerciseName(w, r)
	if !ok {
		return
	}
	s.cache.ClearOverride(r.Context(), name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="liftlog-export.txt"`)
	if err := s.history.ExportText(r.Context(), w); err != nil {
		s.log.Error("export failed", "error", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	recs, dropped, err := logtext.DecodeAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(recs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no importable records", "dropped": strconv.Itoa(dropped)})
		return
	}

	if err := s.history.AppendRecords(r.Context(), recs); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.checkpoint(r)
	s.cache.RebuildAll(r.Context())

	writeJSON(w, http.StatusOK, map[string]int{
		"imported": len(recs),
		"dropped":  dropped,
	})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	purged, err := s.db.CompactRecords(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.checkpoint(r)
	writeJSON(w, http.StatusOK, map[string]int64{"purged": purged})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.db.VerifyIntegrity(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// checkpoint records post-bulk-change integrity metadata. Failures are
// logged only; checkpoints are advisory.
func (s *Server) checkpoint(r *http.Request) {
	ctx := r.Context()
	count, err := s.db.CountRecords(ctx)
	if err != nil {
		s.log.Warn("checkpoint count failed", "error", err)
		return
	}
	latest, err := s.db.LatestRecordTime(ctx)
	if err != nil {
		s.log.Warn("checkpoint latest-ts failed", "error", err)
		return
	}
	if err := s.db.SaveCheckpoint(ctx, count, latest); err != nil {
		s.log.Warn("saving checkpoint failed", "error", err)
	}
}

func sessionKey(w http.ResponseWriter, r *http.Request) (date, programID string, ok bool) {
	date = r.URL.Query().Get("date")
	programID = r.URL.Query().Get("program")
	if date == "" || programID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date and program parameters required"})
		return "", "", false
	}
	return date, programID, true
}

func exerciseName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise name"})
		return "", false
	}
	return name, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
