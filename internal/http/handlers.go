package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/HikmatBaniya/NorthstarCapital/internal/domain"
	"github.com/HikmatBaniya/NorthstarCapital/internal/paper"
)

type Server struct {
	R        *gin.Engine
	Store    *paper.Store
	Executor *paper.Executor
	Logger   *zap.Logger
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewServer wires the router, store, executor, and middleware.
func NewServer(store *paper.Store, executor *paper.Executor, logger *zap.Logger, corsOrigin string) *Server {
	g := gin.New()

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		logger.Info("http_request",
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	g.Use(gin.Recovery())

	// CORS
	g.Use(func(cn *gin.Context) {
		origin := cn.GetHeader("Origin")
		cn.Writer.Header().Set("Vary", "Origin")
		cn.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		cn.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		cn.Writer.Header().Set("Access-Control-Max-Age", "86400")
		if corsOrigin == "*" {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && origin == corsOrigin {
			cn.Writer.Header().Set("Access-Control-Allow-Origin", corsOrigin)
		}
		if cn.Request.Method == http.MethodOptions {
			cn.AbortWithStatus(http.StatusNoContent)
			return
		}
		cn.Next()
	})

	s := &Server{R: g, Store: store, Executor: executor, Logger: logger}

	g.GET("/health", func(cn *gin.Context) { cn.JSON(http.StatusOK, gin.H{"ok": true}) })

	g.POST("/paper/portfolios", s.createPortfolio)
	g.GET("/paper/portfolios", s.listPortfolios)
	g.GET("/paper/portfolios/:id", s.getPortfolio)
	g.GET("/paper/portfolios/:id/positions", s.listPositions)
	g.GET("/paper/portfolios/:id/trades", s.listTrades)
	g.GET("/paper/portfolios/:id/proposals", s.listProposals)
	g.GET("/paper/portfolios/:id/summary", s.portfolioSummary)

	g.POST("/paper/trades/propose", s.proposeTrade)
	g.POST("/paper/trades/:id/approve", s.approveProposal)
	g.POST("/paper/trades/:id/reject", s.rejectProposal)
	g.POST("/paper/trades/:id/cancel", s.cancelProposal)

	g.POST("/paper/cash", s.adjustCash)

	return s
}

// --- Helpers ---

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

// domainError maps ledger errors onto the HTTP surface. Anything
// unrecognized, including a detected inconsistency, is a 500.
func (s *Server) domainError(c *gin.Context, where string, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, paper.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, paper.ErrInvalidAmount):
		status, code = http.StatusUnprocessableEntity, "invalid_amount"
	case errors.Is(err, paper.ErrInsufficientCash):
		status, code = http.StatusConflict, "insufficient_cash"
	case errors.Is(err, paper.ErrInsufficientShares):
		status, code = http.StatusConflict, "insufficient_shares"
	case errors.Is(err, paper.ErrProposalNotPending):
		status, code = http.StatusConflict, "proposal_not_pending"
	case errors.Is(err, paper.ErrPriceUnavailable):
		status, code = http.StatusServiceUnavailable, "price_unavailable"
	default:
		s.Logger.Error("internal_error", zap.String("where", where), zap.Error(err))
		c.JSON(http.StatusInternalServerError, apiError{Code: "internal_server_error", Message: "internal server error"})
		return
	}
	c.JSON(status, apiError{Code: code, Message: err.Error()})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: "invalid id"})
		return uuid.UUID{}, false
	}
	return id, true
}

func parseLimit(v string, def, min, max int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

// --- Handlers ---

type createPortfolioRequest struct {
	Name        string          `json:"name"`
	InitialCash decimal.Decimal `json:"initial_cash"`
	Currency    string          `json:"currency"`
}

func (s *Server) createPortfolio(c *gin.Context) {
	var req createPortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid body: "+err.Error())
		return
	}
	p, err := s.Store.CreatePortfolio(c.Request.Context(), req.Name, req.Currency, req.InitialCash)
	if err != nil {
		s.domainError(c, "CreatePortfolio", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) listPortfolios(c *gin.Context) {
	c.JSON(http.StatusOK, s.Store.List())
}

func (s *Server) getPortfolio(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := s.Store.Get(id)
	if err != nil {
		s.domainError(c, "Get", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) listPositions(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rows, err := s.Store.Positions(id)
	if err != nil {
		s.domainError(c, "Positions", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) listTrades(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit := parseLimit(c.Query("limit"), 200, 1, 1000)
	rows, err := s.Store.Trades(id, limit)
	if err != nil {
		s.domainError(c, "Trades", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) listProposals(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var filter *domain.ProposalStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			s.badRequest(c, "invalid status (use pending, approved, rejected or cancelled)")
			return
		}
		filter = &st
	}
	rows, err := s.Store.Proposals(id, filter)
	if err != nil {
		s.domainError(c, "Proposals", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) portfolioSummary(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sum, err := s.Executor.Summary(c.Request.Context(), id)
	if err != nil {
		s.domainError(c, "Summary", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type proposeRequest struct {
	PortfolioID string          `json:"portfolio_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason"`
	Model       string          `json:"model"`
}

func (s *Server) proposeTrade(c *gin.Context) {
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid body: "+err.Error())
		return
	}
	portfolioID, err := uuid.Parse(strings.TrimSpace(req.PortfolioID))
	if err != nil {
		s.badRequest(c, "invalid portfolio_id")
		return
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		s.badRequest(c, "invalid side (use 'buy' or 'sell')")
		return
	}
	pr, err := s.Executor.ProposeTrade(c.Request.Context(), paper.ProposeRequest{
		PortfolioID: portfolioID,
		Symbol:      req.Symbol,
		Side:        side,
		Quantity:    req.Quantity,
		Reason:      req.Reason,
		Model:       req.Model,
	})
	if err != nil {
		s.domainError(c, "ProposeTrade", err)
		return
	}
	c.JSON(http.StatusCreated, pr)
}

func (s *Server) approveProposal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	trade, err := s.Executor.Approve(c.Request.Context(), id)
	if err != nil {
		s.domainError(c, "Approve", err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) rejectProposal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pr, err := s.Store.Reject(c.Request.Context(), id)
	if err != nil {
		s.domainError(c, "Reject", err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

func (s *Server) cancelProposal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	pr, err := s.Store.Cancel(c.Request.Context(), id)
	if err != nil {
		s.domainError(c, "Cancel", err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

type adjustCashRequest struct {
	PortfolioID string          `json:"portfolio_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
}

func (s *Server) adjustCash(c *gin.Context) {
	var req adjustCashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid body: "+err.Error())
		return
	}
	portfolioID, err := uuid.Parse(strings.TrimSpace(req.PortfolioID))
	if err != nil {
		s.badRequest(c, "invalid portfolio_id")
		return
	}
	p, err := s.Store.AdjustCash(c.Request.Context(), portfolioID, req.Amount, req.Reason)
	if err != nil {
		s.domainError(c, "AdjustCash", err)
		return
	}
	c.JSON(http.StatusOK, p)
}
