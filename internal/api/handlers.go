package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/foosdb/rankingsd/internal/job"
	"github.com/foosdb/rankingsd/internal/pipeline"
	"github.com/foosdb/rankingsd/internal/rankings"
)

// storeTimeout bounds read-path store calls; ingestion runs manage their own
// lifetimes through the supervisor.
const storeTimeout = 3 * time.Second

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// listPlayers handles GET /v1/players. Each entry carries the license
// number and the name, not the full profile.
func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		s.logger.Error("list players failed", zap.Error(err))
		writeError(w, storeStatus(err), "failed to list players")
		return
	}
	if players == nil {
		players = []rankings.PlayerSummary{}
	}
	writeData(w, http.StatusOK, map[string]any{
		"players": players,
		"count":   len(players),
	})
}

// getPlayer handles GET /v1/players/{itsf_id}. The profile is served with
// its singles and doubles placements, newest year first; combined placements
// are an ingestion artifact and stay out of the profile view.
func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	itsfID, err := strconv.Atoi(chi.URLParam(r, "itsf_id"))
	if err != nil || itsfID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid itsf_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	player, err := s.store.GetPlayer(ctx, itsfID)
	if err != nil {
		if errors.Is(err, rankings.ErrNotFound) {
			writeError(w, http.StatusNotFound, "player not found")
			return
		}
		s.logger.Error("get player failed", zap.Error(err))
		writeError(w, storeStatus(err), "failed to load player")
		return
	}

	placements, err := s.store.ListRankings(ctx, itsfID)
	if err != nil {
		s.logger.Error("list player rankings failed", zap.Error(err))
		writeError(w, storeStatus(err), "failed to load rankings")
		return
	}
	visible := make([]rankings.PlayerPlacement, 0, len(placements))
	for _, p := range placements {
		if p.Class == rankings.ClassCombined {
			continue
		}
		visible = append(visible, p)
	}

	writeData(w, http.StatusOK, map[string]any{
		"player":   player,
		"rankings": visible,
	})
}

// ingestStatus handles GET /v1/ingest/status.
func (s *Server) ingestStatus(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.supervisor.Status())
}

// ingestITSF handles POST /v1/ingest/itsf?year=&max_rank=&force=.
func (s *Server) ingestITSF(w http.ResponseWriter, r *http.Request) {
	s.startYearRun(w, r, rankings.SourceITSF)
}

// ingestITSFAll handles POST /v1/ingest/itsf/all?max_rank=&force=.
func (s *Server) ingestITSFAll(w http.ResponseWriter, r *http.Request) {
	s.startAllYearsRun(w, r, rankings.SourceITSF)
}

// ingestDTFB handles POST /v1/ingest/dtfb?year=&max_rank=&force=.
func (s *Server) ingestDTFB(w http.ResponseWriter, r *http.Request) {
	s.startYearRun(w, r, rankings.SourceDTFB)
}

// ingestDTFBAll handles POST /v1/ingest/dtfb/all?max_rank=&force=.
func (s *Server) ingestDTFBAll(w http.ResponseWriter, r *http.Request) {
	s.startAllYearsRun(w, r, rankings.SourceDTFB)
}

type playersRequest struct {
	IDs   []int `json:"ids"`
	Force bool  `json:"force"`
}

// ingestPlayers handles POST /v1/ingest/players with an explicit ID list.
func (s *Server) ingestPlayers(w http.ResponseWriter, r *http.Request) {
	var req playersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	for _, id := range req.IDs {
		if id <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid player id %d", id))
			return
		}
	}
	title := fmt.Sprintf("ingest %d player profile(s)", len(req.IDs))
	s.admit(w, title, len(req.IDs), s.pipeline.PlayersRun(req.IDs, req.Force))
}

func (s *Server) startYearRun(w http.ResponseWriter, r *http.Request, source rankings.Source) {
	year := s.nowYear()
	if raw := r.URL.Query().Get("year"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = val
	}
	if year < s.cfg.Scrape.MinYear || year > s.nowYear() {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("year must be between %d and %d", s.cfg.Scrape.MinYear, s.nowYear()))
		return
	}
	s.startRankingsRun(w, r, source, []int{year}, fmt.Sprintf("%s rankings %d", source, year))
}

func (s *Server) startAllYearsRun(w http.ResponseWriter, r *http.Request, source rankings.Source) {
	var years []int
	for year := s.cfg.Scrape.MinYear; year <= s.nowYear(); year++ {
		years = append(years, year)
	}
	title := fmt.Sprintf("%s rankings %d-%d", source, s.cfg.Scrape.MinYear, s.nowYear())
	s.startRankingsRun(w, r, source, years, title)
}

func (s *Server) startRankingsRun(w http.ResponseWriter, r *http.Request, source rankings.Source, years []int, title string) {
	q := r.URL.Query()

	maxRank := s.cfg.Scrape.MaxRankDefault
	if raw := q.Get("max_rank"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			writeError(w, http.StatusBadRequest, "invalid max_rank")
			return
		}
		maxRank = val
	}
	force := false
	if raw := q.Get("force"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid force")
			return
		}
		force = val
	}

	// Absent category/class parameters select every list.
	var categories []rankings.RankingCategory
	if raw := q.Get("category"); raw != "" {
		category, err := rankings.ParseRankingCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		categories = []rankings.RankingCategory{category}
	}
	var classes []rankings.RankingClass
	if raw := q.Get("class"); raw != "" {
		class, err := rankings.ParseRankingClass(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		classes = []rankings.RankingClass{class}
	}

	params := pipeline.RankingsParams{
		Source:     source,
		Years:      years,
		Categories: categories,
		Classes:    classes,
		MaxRank:    maxRank,
		Force:      force,
	}
	s.admit(w, title, params.EstimatedPages(), s.pipeline.RankingsRun(params))
}

// admit claims the single run slot. A second submission while a run is
// active gets 409 and changes nothing.
func (s *Server) admit(w http.ResponseWriter, title string, estimatedMax int, run job.WorkFunc) {
	if err := s.supervisor.TryStart(title, estimatedMax, run); err != nil {
		if errors.Is(err, job.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("start run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	s.logger.Info("run admitted", zap.String("job", title))
	writeData(w, http.StatusAccepted, map[string]string{"job": title, "status": "accepted"})
}

func storeStatus(err error) int {
	if errors.Is(err, rankings.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeData(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, map[string]any{"data": payload})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
