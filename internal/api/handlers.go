package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"consensus-trading-bot/internal/auth"
	"consensus-trading-bot/internal/database"
	"consensus-trading-bot/internal/exchange"
	"consensus-trading-bot/internal/tasks"
)

// submitSignalRequest is the inbound signal payload. Every field is
// required; binding rejects anything missing.
type submitSignalRequest struct {
	Ticker    string   `json:"ticker" binding:"required"`
	Side      string   `json:"side" binding:"required"`
	Timeframe string   `json:"timeframe" binding:"required"`
	Strategy  string   `json:"strategy" binding:"required"`
	Price     *float64 `json:"price" binding:"required"`
}

// handleSubmitSignal stores a signal and enqueues its ingestion. The caller
// gets an acknowledgment, never the eventual consensus outcome.
func (s *Server) handleSubmitSignal(c *gin.Context) {
	var req submitSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
		return
	}
	switch req.Side {
	case database.SideBuy, database.SideSell, database.SideHold:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be buy, sell or hold"})
		return
	}

	signal := &database.Signal{
		ID:        uuid.New().String(),
		Ticker:    req.Ticker,
		Side:      req.Side,
		Timeframe: req.Timeframe,
		Strategy:  req.Strategy,
		Price:     *req.Price,
	}
	if err := s.repo.CreateSignal(c.Request.Context(), signal); err != nil {
		s.log.Error("Failed to store signal", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store signal"})
		return
	}
	if err := s.handlers.IngestSignal(c.Request.Context(), signal.ID); err != nil {
		s.log.Error("Failed to enqueue signal", "signal_id", signal.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue signal"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"signal_id": signal.ID, "status": "accepted"})
}

func (s *Server) handleListSignals(c *gin.Context) {
	limit, offset := pagination(c)
	signals, err := s.repo.ListSignals(c.Request.Context(), limit, offset)
	if err != nil {
		s.log.Error("Failed to list signals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) handleListGroups(c *gin.Context) {
	limit, offset := pagination(c)
	groups, err := s.repo.ListSignalGroups(c.Request.Context(), limit, offset)
	if err != nil {
		s.log.Error("Failed to list groups", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (s *Server) handleGetGroup(c *gin.Context) {
	group, err := s.repo.GetSignalGroupByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		s.log.Error("Failed to load group", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}
	c.JSON(http.StatusOK, group)
}

func (s *Server) handleStartBot(c *gin.Context) {
	s.controlBot(c, tasks.TypeStartBot)
}

func (s *Server) handleStopBot(c *gin.Context) {
	s.controlBot(c, tasks.TypeStopBot)
}

func (s *Server) handleRestartBot(c *gin.Context) {
	s.controlBot(c, tasks.TypeRestartBot)
}

func (s *Server) controlBot(c *gin.Context, taskType string) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	if err := s.handlers.ControlBot(c.Request.Context(), taskType, userID); err != nil {
		s.log.Error("Failed to enqueue bot control", "type", taskType, "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue bot control"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "action": taskType})
}

func (s *Server) handleBotStatus(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	bot, err := s.repo.GetBot(c.Request.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": database.BotIdle})
		return
	}
	if err != nil {
		s.log.Error("Failed to load bot", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bot"})
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) handleListOperations(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	status := c.Query("status")
	switch status {
	case "", database.OperationOpen, database.OperationClosed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or closed"})
		return
	}

	limit, offset := pagination(c)
	operations, err := s.repo.GetOperationsByUser(c.Request.Context(), userID, status, limit, offset)
	if err != nil {
		s.log.Error("Failed to list operations", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list operations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": operations})
}

func (s *Server) handleGetOperation(c *gin.Context) {
	op, err := s.repo.GetOperationByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
		return
	}
	if err != nil {
		s.log.Error("Failed to load operation", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load operation"})
		return
	}
	c.JSON(http.StatusOK, op)
}

func (s *Server) handleGetSettings(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	settings, err := s.repo.GetTradingSettings(c.Request.Context(), userID)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "settings not found"})
		return
	}
	if err != nil {
		s.log.Error("Failed to load settings", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

type putSettingsRequest struct {
	Symbol            string  `json:"symbol" binding:"required"`
	InvestmentPercent float64 `json:"investment_percent" binding:"required,gt=0,lte=100"`
	Leverage          int     `json:"leverage" binding:"required,gte=1,lte=125"`
	TakeProfit        float64 `json:"take_profit" binding:"required,gt=0"`
	StopLoss          float64 `json:"stop_loss" binding:"required,gt=0"`
	TelegramChatID    string  `json:"telegram_chat_id"`
}

func (s *Server) handlePutSettings(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	var req putSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
		return
	}

	settings := &database.TradingSettings{
		UserID:            userID,
		Symbol:            req.Symbol,
		InvestmentPercent: req.InvestmentPercent,
		Leverage:          req.Leverage,
		TakeProfit:        req.TakeProfit,
		StopLoss:          req.StopLoss,
		TelegramChatID:    req.TelegramChatID,
	}
	if err := s.repo.UpsertTradingSettings(c.Request.Context(), settings); err != nil {
		s.log.Error("Failed to save settings", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save settings"})
		return
	}
	c.JSON(http.StatusOK, settings)
}

type putCredentialsRequest struct {
	APIKey    string `json:"api_key" binding:"required"`
	SecretKey string `json:"secret_key" binding:"required"`
}

func (s *Server) handlePutCredentials(c *gin.Context) {
	userID := s.userID(c)
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	if s.vault == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credential store unavailable"})
		return
	}

	var req putCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed: " + err.Error()})
		return
	}

	creds := exchange.Credentials{APIKey: req.APIKey, SecretKey: req.SecretKey}
	if err := s.vault.StoreCredentials(c.Request.Context(), userID, creds); err != nil {
		s.log.Error("Failed to store credentials", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

// userID resolves the acting user: the authenticated identity when auth is
// enabled, otherwise an explicit user_id query parameter.
func (s *Server) userID(c *gin.Context) string {
	if s.jwtManager != nil {
		return auth.GetUserID(c)
	}
	return c.Query("user_id")
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
