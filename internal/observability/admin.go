package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edgerpc/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusFunc reports node-specific runtime state for GET /status.
type StatusFunc func() any

// AdminConfig wires the admin HTTP surface of one node.
type AdminConfig struct {
	Node   string
	Status StatusFunc
	// RPC, when set, is mounted at GET /rpc for WebSocket upgrades.
	RPC http.Handler
	// Auth, when set, guards /status and /rpc. /health and /metrics stay open.
	Auth auth.Validator
}

// NewAdminRouter builds health, metrics, status and optional /rpc routes.
func NewAdminRouter(cfg AdminConfig) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	started := time.Now()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log.Logger))
	r.Use(RequestMetricsMiddleware(cfg.Node))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(started).String(),
			"node":   cfg.Node,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	guarded := r.Group("/")
	if cfg.Auth != nil {
		guarded.Use(RequireToken(cfg.Auth))
	}

	guarded.GET("/status", func(c *gin.Context) {
		if cfg.Status == nil {
			c.JSON(http.StatusOK, gin.H{"node": cfg.Node})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"node":   cfg.Node,
			"status": cfg.Status(),
		})
	})

	if cfg.RPC != nil {
		guarded.GET("/rpc", gin.WrapH(cfg.RPC))
	}
	return r
}

// ServeAdmin runs handler on addr until ctx is canceled.
func ServeAdmin(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
