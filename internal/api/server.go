// Package api exposes a read-only HTTP inspection surface over the
// running funnel: pool standings, a candidate's full event history, and
// liveness/metrics endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/metrics"
	"github.com/poorman/alphafunnel/internal/model"
	"github.com/poorman/alphafunnel/internal/pool"
	"github.com/poorman/alphafunnel/internal/store"
)

var log = logger.Named("api")

// CandidateReader is the read side of the candidate store this server
// needs; narrower than the full store.CandidateStore surface.
type CandidateReader interface {
	Get(ctx context.Context, id string) (model.Candidate, error)
	List(ctx context.Context, status model.Status) ([]model.Candidate, error)
}

// EventReader is the read side of the evaluation event log.
type EventReader interface {
	ForCandidate(ctx context.Context, candidateID string) ([]store.Event, error)
}

// Server wraps the collaborators the inspection endpoints read from.
type Server struct {
	engine     *gin.Engine
	candidates CandidateReader
	events     EventReader
	pool       *pool.Manager
	startedAt  time.Time
}

// NewServer builds the gin engine and registers every route.
func NewServer(candidates CandidateReader, events EventReader, poolMgr *pool.Manager) *Server {
	s := &Server{
		engine:     gin.New(),
		candidates: candidates,
		events:     events,
		pool:       poolMgr,
		startedAt:  time.Now(),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.handleHealthz)
	s.engine.GET("/pool", s.handleGetPool)
	s.engine.GET("/candidates/:id", s.handleGetCandidate)
	s.engine.GET("/candidates/:id/events", s.handleGetCandidateEvents)
	s.engine.GET("/candidates", s.handleListCandidates)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	return s
}

// Run starts the HTTP listener on addr, blocking until it returns.
func (s *Server) Run(addr string) error {
	log.Infof("api: listening on %s", addr)
	return s.engine.Run(addr)
}

// ServeHTTP satisfies http.Handler, letting callers (and tests) drive the
// server with httptest.Recorder instead of a real listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"uptime_secs":  time.Since(s.startedAt).Seconds(),
		"pool_size":    s.pool.Size(),
	})
}

func (s *Server) handleGetPool(c *gin.Context) {
	entries := s.pool.Snapshot()
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"candidate_id":      e.CandidateID,
			"score":             e.Score,
			"last_evaluated_at": e.LastEvaluatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"pool": out})
}

func (s *Server) handleGetCandidate(c *gin.Context) {
	id := c.Param("id")
	cand, err := s.candidates.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found"})
		return
	}
	c.JSON(http.StatusOK, candidateJSON(cand))
}

func (s *Server) handleGetCandidateEvents(c *gin.Context) {
	id := c.Param("id")
	events, err := s.events.ForCandidate(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events: " + err.Error()})
		return
	}
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		out = append(out, gin.H{
			"stage":      e.Stage,
			"outcome":    e.Outcome,
			"reason":     e.Reason,
			"created_at": e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"candidate_id": id, "events": out})
}

func (s *Server) handleListCandidates(c *gin.Context) {
	status := model.Status(c.Query("status"))
	if status == "" {
		status = model.StatusActive
	}
	list, err := s.candidates.List(c.Request.Context(), status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list candidates: " + err.Error()})
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, cand := range list {
		out = append(out, candidateJSON(cand))
	}
	c.JSON(http.StatusOK, gin.H{"candidates": out})
}

func candidateJSON(cand model.Candidate) gin.H {
	return gin.H{
		"id":                cand.ID,
		"name":              cand.Name,
		"timeframe":         cand.Timeframe,
		"source_class":      cand.SourceClass,
		"status":            cand.Status,
		"parameters":        cand.Parameters,
		"score_backtest":    cand.ScoreBacktest,
		"last_evaluated_at": cand.LastEvaluatedAt,
		"created_at":        cand.CreatedAt,
		"updated_at":        cand.UpdatedAt,
	}
}
