package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"ag2api-go/internal/common"
	"ag2api-go/internal/config"
	"ag2api-go/internal/constants"
	"ag2api-go/internal/credential"
	"ag2api-go/internal/handlers/openai"
	"ag2api-go/internal/middleware"
	"ag2api-go/internal/oauth"
	"ag2api-go/internal/streaming"
	"ag2api-go/internal/upstream"
)

// Server owns the assembled gateway: credential pool, upstream engine,
// streaming controller, and the HTTP front door.
type Server struct {
	cfg  *config.Config
	pool *credential.Pool
	http *http.Server
}

// New wires every component from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	pool, err := credential.NewPool(ctx, credential.Options{
		Store:             credential.NewFileStore(cfg.AccountsFile),
		Refreshers:        buildRefreshers(cfg),
		RotationThreshold: int32(cfg.CallsPerRotation),
		AutoDisable: credential.AutoDisableConfig{
			Enabled:              cfg.AutoDisableEnabled,
			DisableCodes:         cfg.AutoDisableCodes,
			Threshold429:         cfg.AutoDisable429Threshold,
			Threshold401:         cfg.AutoDisable401Threshold,
			ConsecutiveFailLimit: cfg.AutoDisableConsecutive,
		},
		RefreshAhead: time.Duration(cfg.RefreshAheadSec) * time.Second,
		Coordinator:  credential.NewInflightCoordinator(),
	})
	if err != nil {
		return nil, fmt.Errorf("credential pool: %w", err)
	}

	engine := upstream.NewEngine(upstream.EngineOptions{
		Pool:   pool,
		Client: upstream.NewHTTPClient(cfg.ProxyURL),
		Config: cfg,
	})

	ctrl := streaming.NewController(engine, streaming.ControllerOptions{
		Marker:    common.NewMarker(cfg.DoneMarker),
		MaxRounds: cfg.AntiTruncationMax,
		Enabled:   cfg.AntiTruncationEnabled,
	})
	emu := streaming.NewEmulator(ctrl, streaming.FakeStreamConfig{
		Heartbeat: time.Duration(cfg.FakeStreamingHeartbeatSec) * time.Second,
		ChunkSize: cfg.FakeStreamingChunkSize,
		Delay:     time.Duration(cfg.FakeStreamingDelayMs) * time.Millisecond,
	})

	router := buildRouter(cfg, openai.New(cfg, ctrl, emu, engine))

	return &Server{
		cfg:  cfg,
		pool: pool,
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// buildRefreshers maps each account family to its OAuth client identity.
// A configured client id/secret overrides both families.
func buildRefreshers(cfg *config.Config) map[credential.Family]credential.TokenRefresher {
	geminiID, geminiSecret := oauth.GeminiCLIClientID, oauth.GeminiCLIClientSecret
	antID, antSecret := oauth.AntigravityClientID, oauth.AntigravityClientSecret
	if cfg.OAuthClientID != "" {
		geminiID, antID = cfg.OAuthClientID, cfg.OAuthClientID
		geminiSecret, antSecret = cfg.OAuthClientSecret, cfg.OAuthClientSecret
	}
	return map[credential.Family]credential.TokenRefresher{
		credential.FamilyGeminiCLI:   oauth.NewManager(geminiID, geminiSecret),
		credential.FamilyAntigravity: oauth.NewManager(antID, antSecret),
	}
}

func buildRouter(cfg *config.Config, h *openai.Handler) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.RequestLogger(),
		middleware.HTTPMetrics(),
		middleware.CORS(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", middleware.MetricsHandler)

	v1 := r.Group("/v1",
		middleware.APIKeyAuth(cfg.APIKeys),
		middleware.RateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	)
	v1.POST("/chat/completions", h.ChatCompletions)
	v1.GET("/models", h.ListModels)

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully. The
// accounts file watcher runs alongside when enabled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.WatchAccounts {
		go func() {
			if err := s.pool.WatchStore(ctx, s.cfg.AccountsFile); err != nil {
				log.WithError(err).Warn("accounts file watcher stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.http.Addr).Info("server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	s.pool.Close()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
