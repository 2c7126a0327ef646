package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/keytrust/internal/application/service"
	"github.com/turtacn/keytrust/internal/config"
	domainService "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/internal/infrastructure/monitoring"
	"github.com/turtacn/keytrust/internal/interfaces/http/handlers"
	"github.com/turtacn/keytrust/internal/interfaces/http/middleware"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

// Dependencies are the application services the router exposes.
type Dependencies struct {
	Lifecycle   service.KeyLifecycleService
	Issuer      service.TokenIssuer
	Verifier    service.TokenVerifier
	Revocation  service.RevocationService
	Permissions domainService.PermissionLoader
	Health      map[string]handlers.Pinger
	Tracing     *monitoring.TracingManager
	Metrics     middleware.HTTPObserver
	Gatherer    prometheus.Gatherer
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	config *config.Config
	logger logger.Logger
	deps   Dependencies
	server *http.Server
}

// NewRouter 创建路由器并注册全部路由
func NewRouter(cfg *config.Config, deps Dependencies, log logger.Logger) *Router {
	// 设置 Gin 模式
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		logger: log.WithComponent("http"),
		deps:   deps,
	}
	r.setupRoutes()
	r.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           r.engine,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return r
}

// Handler returns the configured engine.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 全局中间件
	r.engine.Use(handlers.RecoveryMiddleware(r.logger))
	r.engine.Use(handlers.RequestIDMiddleware())
	if r.deps.Tracing != nil {
		r.engine.Use(middleware.Observability(r.deps.Tracing, r.deps.Metrics))
	}
	r.engine.Use(handlers.LoggingMiddleware(r.logger))

	// CORS 配置
	corsConfig := cors.Config{
		AllowOrigins:  r.config.Server.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "If-None-Match"},
		ExposeHeaders: []string{"X-Request-ID", "ETag"},
		MaxAge:        12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 || (len(corsConfig.AllowOrigins) == 1 && corsConfig.AllowOrigins[0] == "*") {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	r.engine.Use(cors.New(corsConfig))

	// 健康检查路由（不需要认证）
	health := handlers.NewHealthHandler(r.deps.Health, r.logger)
	r.engine.GET("/health", health.HealthCheck)
	r.engine.GET("/ready", health.ReadinessCheck)
	r.engine.GET("/live", health.LivenessCheck)

	// Prometheus metrics
	gatherer := r.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Pprof 性能分析（仅在非生产环境）
	if !r.config.IsProduction() {
		pprof.Register(r.engine)
	}

	jwks := handlers.NewJWKSHandler(r.deps.Lifecycle, r.logger)
	r.engine.GET("/.well-known/jwks.json", jwks.GetJWKS)

	requireAuth := middleware.RequireAuth(r.deps.Verifier, r.deps.Permissions, r.logger)

	v1 := r.engine.Group("/api/v1")
	{
		auth := handlers.NewAuthHandler(r.deps.Revocation, r.logger)
		authGroup := v1.Group("/auth", requireAuth)
		{
			authGroup.POST("/logout", auth.Logout)
			authGroup.GET("/me", auth.Me)
		}

		admin := handlers.NewAdminHandler(r.deps.Lifecycle, r.deps.Issuer, r.logger)
		adminGroup := v1.Group("/admin", requireAuth)
		{
			adminGroup.GET("/keys", middleware.RequirePermission(constants.PermissionKeyQuery), admin.ListKeys)
			adminGroup.POST("/keys/rotate", middleware.RequirePermission(constants.PermissionKeyRotate), admin.RotateKey)
			adminGroup.POST("/keys/purge", middleware.RequirePermission(constants.PermissionKeyRotate), admin.PurgeKeys)
			adminGroup.POST("/tokens", middleware.RequirePermission(constants.PermissionTokenIssue), admin.IssueToken)
		}
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Start 启动 HTTP 服务器，阻塞直到服务器关闭
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}
