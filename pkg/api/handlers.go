package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/satishdosapati/solutionbuilder-core/pkg/events"
	"github.com/satishdosapati/solutionbuilder-core/pkg/orchestrator"
)

// handleSolutionStream consumes the request envelope and streams
// newline-delimited JSON events until the terminal complete/failed line.
func (s *Server) handleSolutionStream(c *gin.Context) {
	var req orchestrator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	switch req.Mode {
	case orchestrator.ModeBrainstorm, orchestrator.ModeAnalyze, orchestrator.ModeGenerate:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be one of brainstorm, analyze, generate"})
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	// The request context carries client disconnect; the encoder stops
	// writing promptly once it fires.
	ctx := c.Request.Context()
	enc := events.NewStreamEncoder(ctx, c.Writer)

	if err := s.runner.Run(ctx, req, enc); err != nil {
		// The orchestrator already emitted the terminal failed event when
		// the stream was still writable; nothing more to send here.
		s.logger.Debug("Solution request ended with error", "error", err)
	}
}

// handleGetSession returns a read-only snapshot of one session.
func (s *Server) handleGetSession(c *gin.Context) {
	sess := s.sessions.Get(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// handleDeleteSession evicts a session explicitly.
func (s *Server) handleDeleteSession(c *gin.Context) {
	if !s.sessions.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleHealth reports pool counters and session store size.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": s.sessions.Len(),
		"pools":    s.pools.Stats(),
		"total":    s.pools.AggregateStats(),
	})
}
