package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gamifyx/gradehub/internal/application/query"
	"github.com/gamifyx/gradehub/internal/infrastructure/realtime"
	"github.com/gamifyx/gradehub/internal/interface/http/handlers"
	"github.com/gamifyx/gradehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(c *gin.Context) {
	handlers.RespondOK(c, gin.H{
		"name":    "GradeHub API",
		"version": handlers.APIVersion,
		"endpoints": gin.H{
			"health":      "/health",
			"ready":       "/ready",
			"push":        "/webhook/push",
			"leaderboard": "/api/v1/leaderboard/:window",
			"stream":      "/api/v1/realtime/stream",
		},
	})
}

// handleHealth reports every check. It never fails the probe itself.
func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if status.Uptime == "" {
		status.Uptime = s.Uptime().Round(time.Second).String()
	}
	c.JSON(http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": status.Message,
			"checks": status.Checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handlePush grades a signed push delivery.
func (s *Server) handlePush(c *gin.Context) {
	switch kind := handlers.EventKind(c); kind {
	case handlers.EventPing:
		handlers.RespondOK(c, gin.H{"status": "pong"})
		return
	case handlers.EventPush, "":
	default:
		handlers.Respond(c, http.StatusAccepted, gin.H{"status": "ignored", "event": kind}, nil)
		return
	}

	if s.deps.PushHandler == nil {
		handlers.AbortWithError(c, http.StatusServiceUnavailable, "unavailable", "push processing is not configured")
		return
	}

	cmd, err := handlers.ReadPushCommand(c)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	res, err := s.deps.PushHandler.Handle(c.Request.Context(), cmd)
	if err != nil {
		_ = c.Error(err)
		handlers.RespondError(c, err)
		return
	}

	if res.ProgressionErr != nil {
		logger.FromContext(c.Request.Context()).Warn("progression failed after grading",
			logger.SubmissionID(res.Submission.ID),
			logger.Err(res.ProgressionErr),
		)
	}
	handlers.RespondOK(c, handlers.NewPushResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard returns the top of a ranking window.
func (s *Server) handleGetLeaderboard(c *gin.Context) {
	if s.deps.GetLeaderboardHandler == nil {
		handlers.AbortWithError(c, http.StatusServiceUnavailable, "unavailable", "leaderboard is not configured")
		return
	}

	q := query.GetLeaderboardQuery{Window: c.Param("window")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			handlers.AbortWithError(c, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}

	result, err := s.deps.GetLeaderboardHandler.Handle(c.Request.Context(), q)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	handlers.Respond(c, http.StatusOK, result, &handlers.ResponseMeta{
		TotalCount: result.TotalCount,
		HasMore:    result.HasMore,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REALTIME HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRealtimeStream opens an SSE stream. A valid token authenticates the
// channel immediately; without one the channel receives broadcasts only until
// it authenticates through handleRealtimeAuthenticate.
func (s *Server) handleRealtimeStream(c *gin.Context) {
	if s.deps.Registry == nil {
		handlers.AbortWithError(c, http.StatusServiceUnavailable, "unavailable", "realtime is not configured")
		return
	}

	var userID string
	if token := bearerToken(c); token != "" {
		uid, err := s.verifyToken(token)
		if err != nil {
			handlers.RespondError(c, err)
			return
		}
		userID = uid
	}

	ch := realtime.NewChannel(s.config.ChannelBuffer)
	s.deps.Registry.Connect(ch)
	defer s.deps.Registry.Disconnect(ch.ID)

	if userID != "" {
		if err := s.deps.Registry.Authenticate(ch.ID, userID); err != nil {
			handlers.RespondError(c, err)
			return
		}
	}

	log := logger.FromContext(c.Request.Context()).With(logger.ChannelID(ch.ID))
	log.Info("observer connected", logger.UserID(userID))

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	if err := realtime.Stream(c.Request.Context(), c.Writer, ch, s.config.Heartbeat); err != nil {
		log.Warn("observer stream ended", logger.Err(err))
		return
	}
	log.Info("observer disconnected")
}

// authenticateRequest binds an already connected channel to a user.
type authenticateRequest struct {
	ChannelID string `json:"channel_id" binding:"required"`
	Token     string `json:"token" binding:"required"`
}

// handleRealtimeAuthenticate upgrades an anonymous channel.
func (s *Server) handleRealtimeAuthenticate(c *gin.Context) {
	if s.deps.Registry == nil {
		handlers.AbortWithError(c, http.StatusServiceUnavailable, "unavailable", "realtime is not configured")
		return
	}

	var req authenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.AbortWithError(c, http.StatusBadRequest, "bad_request", "channel_id and token are required")
		return
	}

	userID, err := s.verifyToken(req.Token)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	if err := s.deps.Registry.Authenticate(req.ChannelID, userID); err != nil {
		handlers.RespondError(c, err)
		return
	}

	handlers.RespondOK(c, gin.H{"channel_id": req.ChannelID, "user_id": userID})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) verifyToken(token string) (string, error) {
	if s.deps.TokenVerifier == nil {
		return "", realtime.ErrInvalidToken
	}
	return s.deps.TokenVerifier.Verify(token)
}

// bearerToken reads ?token= first since EventSource cannot set headers.
func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	auth := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
