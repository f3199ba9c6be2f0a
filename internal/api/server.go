// Package api exposes the ledger over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Martian-dev/ai-brain-ledger/internal/access"
	"github.com/Martian-dev/ai-brain-ledger/internal/auth"
	"github.com/Martian-dev/ai-brain-ledger/internal/collector"
	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
	requestIDKey       = "request_id"
)

// ReportSource exposes the collector's last run. *collector.Scheduler
// satisfies it.
type ReportSource interface {
	LastReport() (collector.Report, bool)
}

type Server struct {
	ledger  *ledger.Service
	access  *access.Controller
	reports ReportSource
	schemas *schemas
	logger  *slog.Logger
}

// NewServer builds the API. reports may be nil when the collector is disabled.
func NewServer(svc *ledger.Service, ctrl *access.Controller, reports ReportSource, logger *slog.Logger) (*Server, error) {
	sch, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Server{
		ledger:  svc,
		access:  ctrl,
		reports: reports,
		schemas: sch,
		logger:  logger.With("system", "api"),
	}, nil
}

// Router returns the gin engine. Every /v1 route requires a bearer token
// accepted by verifier.
func (s *Server) Router(verifier auth.Verifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(auth.Middleware(verifier, unauthenticated))

	v1.POST("/users/:owner/batches", s.commitBatch)
	v1.GET("/users/:owner/batches", s.userBatchIDs)
	v1.GET("/batches/:id", s.getBatch)
	v1.GET("/users/:owner/recent", s.getRecent)
	v1.GET("/users/:owner/entries/:emailId", s.findEntry)

	v1.PUT("/users/:owner/records/:emailId", s.putRecord)
	v1.GET("/users/:owner/records/:emailId", s.getRecord)
	v1.DELETE("/users/:owner/records/:emailId", s.deleteRecord)

	v1.GET("/roles/:role/members/:principal", s.hasRole)
	v1.PUT("/roles/:role/members/:principal", s.grantRole)
	v1.DELETE("/roles/:role/members/:principal", s.revokeRole)

	v1.GET("/collector/status", s.collectorStatus)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)

		c.Next()

		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", id)
	}
}

func caller(c *gin.Context) access.Principal {
	p, _ := auth.PrincipalFrom(c)
	return p
}
