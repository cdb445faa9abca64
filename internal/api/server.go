// Package api provides the read-only dashboard API. It exposes round state,
// settlement progress, contributions and referral stats. All settlement
// writes go through the state machine; this surface never mutates a round.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/launchpad-settlement/internal/errors"
	"github.com/launchpad-settlement/internal/logging"
	"github.com/launchpad-settlement/internal/models"
	"github.com/launchpad-settlement/internal/storage"
	"github.com/launchpad-settlement/internal/types"
)

// RoundReader reads round state
type RoundReader interface {
	Get(ctx context.Context, id string) (*models.Round, error)
	ListByStatus(ctx context.Context, status types.RoundStatus, limit int) ([]*models.Round, error)
}

// ContributionReader reads contributions
type ContributionReader interface {
	ListByRound(ctx context.Context, roundID string) ([]*models.Contribution, error)
}

// ReferralStatsProvider aggregates referral stats
type ReferralStatsProvider interface {
	GetStats(ctx context.Context, referrerID string) (*models.ReferralStats, error)
}

// Server represents the dashboard HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server

	rounds        RoundReader
	contributions ContributionReader
	referrals     ReferralStatsProvider
	cache         *storage.RedisCache // optional

	config *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host          string
	Port          string
	RatePerSecond int
	RateBurst     int
}

// NewServer creates a new dashboard API server.
func NewServer(
	config *ServerConfig,
	rounds RoundReader,
	contributions ContributionReader,
	referrals ReferralStatsProvider,
	cache *storage.RedisCache,
) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		rounds:        rounds,
		contributions: contributions,
		referrals:     referrals,
		cache:         cache,
		config:        config,
	}

	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(s.config.RatePerSecond, s.config.RateBurst))

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rounds", s.handleListRounds).Methods("GET")
	api.HandleFunc("/rounds/{id}", s.handleGetRound).Methods("GET")
	api.HandleFunc("/rounds/{id}/settlement", s.handleGetSettlement).Methods("GET")
	api.HandleFunc("/rounds/{id}/contributions", s.handleListContributions).Methods("GET")
	api.HandleFunc("/referrers/{id}/stats", s.handleGetReferralStats).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Dashboard API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the router, used by tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	status := types.RoundStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = types.RoundActive
	}

	rounds, err := s.rounds.ListByStatus(r.Context(), status, 100)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if rounds == nil {
		rounds = []*models.Round{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rounds": rounds})
}

// handleGetRound serves round state, preferring the short-TTL cache. Cache
// misses and cache errors both fall through to Postgres.
func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	if s.cache != nil {
		if cached, err := s.cache.GetRound(ctx, id); err == nil && cached != nil {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	round, err := s.rounds.Get(ctx, id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if round == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "round not found", nil)
		return
	}

	if s.cache != nil {
		if err := s.cache.SetRound(ctx, round); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to cache round")
		}
	}

	respondJSON(w, http.StatusOK, round)
}

// settlementView is the operator-facing settlement progress of a round.
type settlementView struct {
	RoundID        string            `json:"roundId"`
	Status         types.RoundStatus `json:"status"`
	Flags          types.PhaseFlags  `json:"flags"`
	Snapshot       types.Snapshot    `json:"snapshot"`
	AllocationRoot string            `json:"allocationRoot,omitempty"`
	LPLockID       string            `json:"lpLockId,omitempty"`
	BurnedAmount   string            `json:"burnedAmount"`
	FailReason     string            `json:"failReason,omitempty"`
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	round, err := s.rounds.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if round == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "round not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, settlementView{
		RoundID:        round.ID,
		Status:         round.Status,
		Flags:          round.PhaseFlags(),
		Snapshot:       round.Snapshot(),
		AllocationRoot: round.AllocationRoot,
		LPLockID:       round.LPLockID,
		BurnedAmount:   round.BurnedAmount,
		FailReason:     round.FailReason,
	})
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	round, err := s.rounds.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if round == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "round not found", nil)
		return
	}

	contributions, err := s.contributions.ListByRound(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if contributions == nil {
		contributions = []*models.Contribution{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"roundId":       id,
		"contributions": contributions,
	})
}

func (s *Server) handleGetReferralStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "referrer id is required", nil)
		return
	}

	stats, err := s.referrals.GetStats(r.Context(), id)
	if err != nil {
		respondError(w, apperrors.GetHTTPStatusCode(err), apperrors.Categorize(err).Code, "failed to load referral stats", nil)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
