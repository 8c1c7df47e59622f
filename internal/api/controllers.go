package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"execution-core/internal/botconfig"
	"execution-core/internal/engine"
	"execution-core/internal/order"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses.
func respondEngineError(c *gin.Context, err error) {
	var (
		rejection *order.RejectionError
		exhausted *order.SubmissionExhaustedError
		invalid   validator.ValidationErrors
	)
	switch {
	case errors.As(err, &invalid), errors.Is(err, order.ErrValidation):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, botconfig.ErrBotNotFound):
		respondError(c, http.StatusNotFound, "BOT_NOT_FOUND", err.Error())
	case errors.Is(err, botconfig.ErrBotExists):
		respondError(c, http.StatusConflict, "BOT_EXISTS", err.Error())
	case errors.Is(err, order.ErrPositionNotFound):
		respondError(c, http.StatusNotFound, "POSITION_NOT_FOUND", err.Error())
	case errors.Is(err, engine.ErrTrailNotRunning):
		respondError(c, http.StatusNotFound, "TRAIL_NOT_RUNNING", err.Error())
	case errors.Is(err, order.ErrSession):
		respondError(c, http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", err.Error())
	case errors.As(err, &rejection):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":   "ORDER_REJECTED",
			"error":  err.Error(),
			"result": rejection.Result,
		})
	case errors.As(err, &exhausted):
		c.JSON(http.StatusBadGateway, gin.H{
			"code":     "SUBMISSION_EXHAUSTED",
			"error":    err.Error(),
			"attempts": exhausted.Attempts,
			"result":   exhausted.LastResult,
		})
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func parseTicket(c *gin.Context) (uint64, bool) {
	ticket, err := strconv.ParseUint(c.Param("ticket"), 10, 64)
	if err != nil || ticket == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_TICKET", "ticket must be a positive integer")
		return 0, false
	}
	return ticket, true
}

// --- System ---

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.GetSystemStatus(c.Request.Context()))
}

// --- Bots ---

func (s *Server) listBots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bots": s.Engine.ListBots()})
}

func (s *Server) getBot(c *gin.Context) {
	cfg, err := s.Engine.Bot(c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) registerBot(c *gin.Context) {
	var cfg botconfig.BotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid bot configuration")
		return
	}
	if err := s.Engine.RegisterBot(cfg); err != nil {
		respondEngineError(c, err)
		return
	}
	stored, err := s.Engine.Bot(cfg.BotID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (s *Server) reconfigureBot(c *gin.Context) {
	var cfg botconfig.BotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid bot configuration")
		return
	}
	id := c.Param("id")
	if cfg.BotID != "" && cfg.BotID != id {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "bot id in body does not match path")
		return
	}
	cfg.BotID = id
	if err := s.Engine.ReconfigureBot(cfg); err != nil {
		respondEngineError(c, err)
		return
	}
	stored, err := s.Engine.Bot(id)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// --- Orders ---

type openPositionRequest struct {
	Side       string  `json:"side" binding:"required"`
	Volume     float64 `json:"volume" binding:"gte=0"`
	StopLoss   float64 `json:"sl" binding:"gte=0"`
	TakeProfit float64 `json:"tp" binding:"gte=0"`
}

func (s *Server) openPosition(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "side is required; volume, sl and tp must not be negative")
		return
	}
	res, err := s.Engine.OpenPosition(c.Request.Context(), c.Param("id"), req.Side, order.Overrides{
		Volume:     req.Volume,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// --- Positions ---

func (s *Server) getPosition(c *gin.Context) {
	ticket, ok := parseTicket(c)
	if !ok {
		return
	}
	pos, err := s.Engine.GetPosition(c.Request.Context(), ticket)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) getProfit(c *gin.Context) {
	ticket, ok := parseTicket(c)
	if !ok {
		return
	}
	profit, err := s.Engine.GetProfit(c.Request.Context(), ticket)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket, "profit": profit})
}

func (s *Server) closePosition(c *gin.Context) {
	ticket, ok := parseTicket(c)
	if !ok {
		return
	}
	res, err := s.Engine.ClosePosition(c.Request.Context(), ticket)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) closeAllForSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	report, err := s.Engine.CloseAllForSymbol(c.Request.Context(), symbol)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	status := http.StatusOK
	if report.Status() == order.CloseFailed {
		status = http.StatusBadGateway
	} else if report.Status() == order.ClosePartial {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{
		"symbol":   report.Symbol,
		"status":   report.Status(),
		"closed":   report.Closed(),
		"outcomes": report.Outcomes,
	})
}

// --- Trailing stops ---

type trailingRequest struct {
	DistancePoints float64 `json:"distance_points" binding:"required,gt=0"`
}

func (s *Server) startTrailingStop(c *gin.Context) {
	ticket, ok := parseTicket(c)
	if !ok {
		return
	}
	var req trailingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "distance_points must be greater than zero")
		return
	}
	h, err := s.Engine.StartTrailingStop(c.Request.Context(), ticket, req.DistancePoints)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.Status())
}

func (s *Server) stopTrailingStop(c *gin.Context) {
	ticket, ok := parseTicket(c)
	if !ok {
		return
	}
	status, err := s.Engine.StopTrailingStop(ticket)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) listTrailingStops(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"trailing": s.Engine.TrailingStops()})
}

// --- Account ---

func (s *Server) getAccount(c *gin.Context) {
	info, err := s.Engine.GetAccount(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) getBalance(c *gin.Context) {
	balance, err := s.Engine.GetBalance(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
