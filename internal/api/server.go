package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Varma0717/tradingbot/internal/models"
	"github.com/Varma0717/tradingbot/internal/risk"
	"github.com/Varma0717/tradingbot/internal/scheduler"
)

// Server is the operator control surface: start and stop symbols, read
// performance snapshots, flip the emergency stop. It never touches an
// engine directly; everything goes through the scheduler and the guard.
type Server struct {
	sched  *scheduler.Scheduler
	guard  *risk.Guard
	logger *zap.SugaredLogger
	http   *http.Server
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewServer builds the router and binds it to addr.
func NewServer(addr string, sched *scheduler.Scheduler, guard *risk.Guard, logger *zap.SugaredLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{sched: sched, guard: guard, logger: logger}

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	v1 := router.Group("/api/v1")
	{
		v1.POST("/symbols", s.startSymbol)
		v1.DELETE("/symbols/:symbol", s.stopSymbol)
		v1.GET("/symbols/:symbol/snapshot", s.snapshot)
		v1.GET("/snapshots", s.snapshots)
		v1.POST("/emergency-stop", s.engageEmergencyStop)
		v1.DELETE("/emergency-stop", s.releaseEmergencyStop)
	}

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infow("control api listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) startSymbol(c *gin.Context) {
	var req models.SymbolStart
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: models.CodeConfigError, Message: err.Error()})
		return
	}

	if err := s.sched.StartSymbol(c.Request.Context(), req); err != nil {
		s.writeError(c, err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"symbol": req.Symbol.Symbol, "status": "started"})
}

func (s *Server) stopSymbol(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.sched.StopSymbol(c.Request.Context(), symbol); err != nil {
		// The only config error here is "not running".
		s.writeError(c, err, http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "status": "stopped"})
}

func (s *Server) snapshot(c *gin.Context) {
	symbol := c.Param("symbol")
	snap, ok := s.sched.Snapshot(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{
			Code:    models.CodeConfigError,
			Message: "symbol " + symbol + " is not running",
		})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) snapshots(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.Snapshots())
}

func (s *Server) engageEmergencyStop(c *gin.Context) {
	s.guard.SetEmergencyStop(true)
	c.JSON(http.StatusOK, gin.H{"emergency_stop": true})
}

func (s *Server) releaseEmergencyStop(c *gin.Context) {
	s.guard.SetEmergencyStop(false)
	c.JSON(http.StatusOK, gin.H{"emergency_stop": false})
}

// writeError maps taxonomy errors to HTTP statuses. configStatus is the
// status for config errors, which differ by endpoint (bad request on
// start, not found on stop).
func (s *Server) writeError(c *gin.Context, err error, configStatus int) {
	code := models.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case models.CodeConfigError:
		status = configStatus
	case models.CodeGatewayError:
		status = http.StatusBadGateway
	case models.CodeRiskDenied:
		status = http.StatusForbidden
	}
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	c.JSON(status, errorResponse{Code: code, Message: err.Error()})
}
