package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/agentdir"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/config"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/core"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/dbstore"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/qa"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/session"
	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/tier"
)

// server wraps the core's transport-agnostic operations with the HTTP API.
type server struct {
	engine *core.Core
	hub    *wsHub
	db     *dbstore.Client
	cfg    *config.Config
	log    *zap.Logger
}

func newServer(engine *core.Core, hub *wsHub, db *dbstore.Client, cfg *config.Config, log *zap.Logger) *server {
	return &server{engine: engine, hub: hub, db: db, cfg: cfg, log: log}
}

func (s *server) run(ctx context.Context, addr string) error {
	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/ws", gin.WrapF(s.hub.HandleConnection))

	api := router.Group("/api")
	{
		api.POST("/sessions", s.handleCreateSession)
		api.GET("/sessions", s.handleListSessions)
		api.GET("/sessions/:id", s.handleGetSession)
		api.POST("/sessions/:id/messages", s.handlePostMessage)
		api.POST("/sessions/:id/responses", s.handlePostResponse)
		api.POST("/sessions/:id/mode", s.handleRequestMode)
		api.POST("/sessions/:id/complete", s.handleCompleteSession)
		api.POST("/sessions/:id/escalate", s.handleEscalate)
		api.GET("/sessions/:id/queue-status", s.handleQueueStatus)

		api.POST("/agents", s.handleRegisterAgent)
		api.GET("/agents", s.handleListAgents)
		api.GET("/agents/:id", s.handleGetAgent)
		api.PUT("/agents/:id/status", s.handleSetAgentStatus)
		api.GET("/agents/:id/evaluations", s.handleListEvaluations)

		api.GET("/escalation-rules", s.handleEscalationRules)

		api.GET("/knowledge", s.handleSearchKnowledge)

		api.POST("/evaluations", s.handleCreateEvaluation)
		api.GET("/evaluations/:id", s.handleGetEvaluation)
		api.POST("/evaluations/:id/criteria/:critId", s.handleScoreCriterion)
		api.POST("/evaluations/:id/complete", s.handleCompleteEvaluation)

		api.GET("/prompts", s.handleListPrompts)
		api.GET("/prompts/:id", s.handleGetPrompt)
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// writeError maps the core's error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, coreerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, coreerr.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, coreerr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, coreerr.ErrNoMatchingRule):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, coreerr.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case coreerr.IsValidationError(err):
		status = http.StatusBadRequest
	case coreerr.IsTransientIO(err):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *server) handleHealth(c *gin.Context) {
	stats := s.cfg.Stats()
	resp := gin.H{
		"status":  "healthy",
		"service": "dispatchd",
		"configuration": gin.H{
			"escalation_rules": stats.EscalationRules,
			"scorecards":       stats.Scorecards,
			"prompts":          len(s.engine.ListPrompts()),
			"knowledge_seeds":  stats.KnowledgeSeeds,
		},
	}

	if s.db != nil {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := dbstore.Health(reqCtx, s.db.DB())
		resp["database"] = dbHealth
		if err != nil {
			resp["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

type createSessionRequest struct {
	CustomerID    string `json:"customer_id" binding:"required"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	CustomerTier  string `json:"customer_tier"`
	Category      string `json:"category"`
	Urgency       string `json:"urgency"`
	VIP           bool   `json:"vip"`
	Premium       bool   `json:"premium"`
}

func (s *server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.engine.CreateSession(session.CustomerData{
		Customer: session.Customer{
			ID:    req.CustomerID,
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
			Tier:  session.CustomerTier(req.CustomerTier),
		},
		Category: req.Category,
		Urgency:  session.Urgency(req.Urgency),
		VIP:      req.VIP,
		Premium:  req.Premium,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sess.ID, "priority": sess.Priority, "status": sess.Status})
}

func (s *server) handleListSessions(c *gin.Context) {
	switch c.Query("state") {
	case "active":
		c.JSON(http.StatusOK, gin.H{"sessions": s.engine.ListActive()})
	default:
		c.JSON(http.StatusOK, gin.H{"sessions": s.engine.ListWaiting()})
	}
}

func (s *server) handleGetSession(c *gin.Context) {
	sess, err := s.engine.GetSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *server) handlePostMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted, err := s.engine.PostCustomerMessage(c.Param("id"), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

func (s *server) handlePostResponse(c *gin.Context) {
	var req struct {
		AgentID      string `json:"agent_id" binding:"required"`
		Content      string `json:"content" binding:"required"`
		ResponseType string `json:"response_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt := session.ResponseType(req.ResponseType)
	if rt == "" {
		rt = session.ResponseSimpleAnswer
	}
	if err := s.engine.PostAgentResponse(c.Request.Context(), c.Param("id"), req.AgentID, req.Content, rt); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *server) handleRequestMode(c *gin.Context) {
	var req struct {
		PromptID string `json:"prompt_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.RequestMode(c.Param("id"), req.PromptID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) handleCompleteSession(c *gin.Context) {
	sess, err := s.engine.CompleteSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": sess.Status, "resolution_time_ms": sess.ResolutionTimeMS})
}

func (s *server) handleEscalate(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.engine.EscalateSession(c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": sess.Status, "tier": sess.Tier, "sla": sess.EscalationSLA})
}

func (s *server) handleQueueStatus(c *gin.Context) {
	st, err := s.engine.QueueStatus(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"position":          st.Position,
		"queue_length":      st.QueueLength,
		"estimated_wait_ms": st.EstimatedWait.Milliseconds(),
	})
}

type registerAgentRequest struct {
	Name                  string   `json:"name" binding:"required"`
	Email                 string   `json:"email"`
	Tier                  int      `json:"tier"`
	Skills                []string `json:"skills"`
	Certifications        []string `json:"certifications"`
	MaxConcurrentSessions int      `json:"max_concurrent_sessions"`
	SupervisorID          string   `json:"supervisor_id"`
}

func (s *server) handleRegisterAgent(c *gin.Context) {
	var req registerAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.engine.RegisterAgent(agentdir.Agent{
		Name:                  req.Name,
		Email:                 req.Email,
		Tier:                  tier.Tier(req.Tier),
		Skills:                req.Skills,
		Certifications:        req.Certifications,
		MaxConcurrentSessions: req.MaxConcurrentSessions,
		SupervisorID:          req.SupervisorID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"agent_id": id})
}

func (s *server) handleListAgents(c *gin.Context) {
	var filter core.AgentFilter
	if t := c.Query("tier"); t != "" {
		if parsed, err := strconv.Atoi(t); err == nil {
			tt := tier.Tier(parsed)
			filter.Tier = &tt
		}
	}
	filter.Status = agentdir.Status(c.Query("status"))
	c.JSON(http.StatusOK, gin.H{"agents": s.engine.ListAgents(filter)})
}

func (s *server) handleGetAgent(c *gin.Context) {
	agent, err := s.engine.GetAgent(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (s *server) handleSetAgentStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.SetAgentStatus(c.Param("id"), agentdir.Status(req.Status)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) handleEscalationRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rules": s.engine.EscalationRules()})
}

// handleSearchKnowledge lists or searches knowledge entries at the given
// caller tier; entries above the tier are never returned.
func (s *server) handleSearchKnowledge(c *gin.Context) {
	callerTier := 0
	if t := c.Query("tier"); t != "" {
		if parsed, err := strconv.Atoi(t); err == nil {
			callerTier = parsed
		}
	}
	kb := s.engine.Knowledge()
	if q := c.Query("q"); q != "" {
		c.JSON(http.StatusOK, gin.H{"entries": kb.Search(q, callerTier)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": kb.ListForTier(callerTier)})
}

func (s *server) handleCreateEvaluation(c *gin.Context) {
	var req struct {
		InteractionID string `json:"interaction_id" binding:"required"`
		AgentID       string `json:"agent_id" binding:"required"`
		CustomerID    string `json:"customer_id"`
		Channel       string `json:"channel"`
		ScorecardID   string `json:"scorecard_id" binding:"required"`
		QAAgentID     string `json:"qa_agent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eval, err := s.engine.CreateEvaluation(qa.Interaction{
		ID:         req.InteractionID,
		AgentID:    req.AgentID,
		CustomerID: req.CustomerID,
		Channel:    req.Channel,
	}, req.ScorecardID, req.QAAgentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"evaluation_id": eval.ID})
}

func (s *server) handleGetEvaluation(c *gin.Context) {
	eval, err := s.engine.GetEvaluation(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *server) handleScoreCriterion(c *gin.Context) {
	var req struct {
		QAAgentID string    `json:"qa_agent_id" binding:"required"`
		SubScores []float64 `json:"sub_scores" binding:"required"`
		Notes     string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eval, err := s.engine.ScoreCriterion(c.Param("id"), c.Param("critId"), req.QAAgentID, req.SubScores, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_score":    eval.TotalScore,
		"weighted_score": eval.WeightedScore,
		"auto_failed":    eval.AutoFailed,
		"passed":         eval.Passed,
	})
}

func (s *server) handleCompleteEvaluation(c *gin.Context) {
	var req struct {
		QAAgentID       string   `json:"qa_agent_id" binding:"required"`
		Notes           string   `json:"notes"`
		Recommendations []string `json:"recommendations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	eval, err := s.engine.CompleteEvaluation(c.Param("id"), req.QAAgentID, req.Notes, req.Recommendations)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":               eval.Status,
		"weighted_score":       eval.WeightedScore,
		"passed":               eval.Passed,
		"calibration_required": eval.CalibrationRequired,
	})
}

func (s *server) handleListEvaluations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"evaluations": s.engine.ListEvaluationsByAgent(c.Param("id"))})
}

func (s *server) handleListPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prompts": s.engine.ListPrompts()})
}

func (s *server) handleGetPrompt(c *gin.Context) {
	p, err := s.engine.GetPrompt(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
