package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xhad/ragd/pkg/ingest"
	"github.com/xhad/ragd/pkg/llm"
	"github.com/xhad/ragd/pkg/query"
	"go.uber.org/zap"
)

type Config struct {
	Port        int
	CORSOrigins []string
}

// Server is the synchronous HTTP facade over the submission and query
// services. Ingestion itself stays asynchronous: /ingest-url only
// persists and schedules, the worker does the rest.
type Server struct {
	config Config
	ingest *ingest.Service
	query  *query.Service
	chat   *llm.ChatEngine
	logger *zap.Logger
}

func New(config Config, ingestSvc *ingest.Service, querySvc *query.Service, chat *llm.ChatEngine, logger *zap.Logger) *Server {
	if config.Port == 0 {
		config.Port = 8080
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		config: config,
		ingest: ingestSvc,
		query:  querySvc,
		chat:   chat,
		logger: logger,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(corsMiddleware(s.config.CORSOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ragd is running"})
	})

	router.POST("/ingest-url", s.handleIngestURL)
	router.POST("/query", s.handleQuery)
	router.GET("/jobs/:id", s.handleGetJob)
	router.GET("/ws", s.handleWebSocket)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.Int("port", s.config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}
