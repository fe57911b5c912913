package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-cough/classify"
	"github.com/RyanBlaney/sonido-cough/configs"
	"github.com/RyanBlaney/sonido-cough/logging"
)

// Classifier is the part of classify.Service the transport needs
type Classifier interface {
	ClassifyReader(ctx context.Context, r io.Reader, filename string) (*classify.Result, error)
	ModelInfo() map[string]any
}

// Options configures the HTTP server
type Options struct {
	Config     configs.ServerConfig
	Classifier Classifier
	Version    string
	Debug      bool
	// Decoder describes the audio backend for /health
	Decoder map[string]any
}

// Server bundles the gin engine and the net/http server around it
type Server struct {
	config     configs.ServerConfig
	classifier Classifier
	version    string
	decoder    map[string]any
	engine     *gin.Engine
	logger     logging.Logger
}

// New builds the router with recovery, request ids, access logging and CORS
func New(opts Options) (*Server, error) {
	if opts.Classifier == nil {
		return nil, fmt.Errorf("http server requires a classifier")
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:     opts.Config,
		classifier: opts.Classifier,
		version:    opts.Version,
		decoder:    opts.Decoder,
		engine:     gin.New(),
		logger: logging.WithFields(logging.Fields{
			"component": "http_server",
		}),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestIDMiddleware())
	s.engine.Use(loggingMiddleware(s.logger))
	s.engine.Use(cors.New(corsConfig(opts.Config.CORSOrigins)))

	s.engine.GET("/", s.handleIndex)
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/predict", s.handlePredict)

	return s, nil
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", logging.Fields{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
