package server

import (
	"context"
	"net/http"
	"time"

	"github.com/densematrix/resumeforge/internal/catalog"
	"github.com/densematrix/resumeforge/internal/config"
	entitlementdomain "github.com/densematrix/resumeforge/internal/entitlement/domain"
	"github.com/densematrix/resumeforge/internal/generation"
	"github.com/densematrix/resumeforge/internal/observability"
	obslogger "github.com/densematrix/resumeforge/internal/observability/logger"
	obsmetrics "github.com/densematrix/resumeforge/internal/observability/metrics"
	obstracing "github.com/densematrix/resumeforge/internal/observability/tracing"
	paymentdomain "github.com/densematrix/resumeforge/internal/payment/domain"
	"github.com/densematrix/resumeforge/internal/ratelimit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(corsMiddleware(cfg))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "resume-builder"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        cfg.AppName,
			"description": "Free AI Resume Builder",
			"version":     cfg.AppVersion,
		})
	})

	return r
}

func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Device-ID", "X-Request-Id")
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	return cors.New(corsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	catalog        *catalog.Catalog
	entitlementSvc entitlementdomain.Service
	paymentSvc     paymentdomain.Service
	generationSvc  generation.Service
	metrics        *obsmetrics.Metrics
	limiter        *ratelimit.DeviceLimiter
}

type ServerParams struct {
	fx.In

	Engine         *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	Catalog        *catalog.Catalog
	EntitlementSvc entitlementdomain.Service
	PaymentSvc     paymentdomain.Service
	GenerationSvc  generation.Service
	Metrics        *obsmetrics.Metrics      `optional:"true"`
	Limiter        *ratelimit.DeviceLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Engine,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		catalog:        p.Catalog,
		entitlementSvc: p.EntitlementSvc,
		paymentSvc:     p.PaymentSvc,
		generationSvc:  p.GenerationSvc,
		metrics:        p.Metrics,
		limiter:        p.Limiter,
	}
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api/v1")

	resume := api.Group("/resume")
	resume.Use(s.limiter.Middleware(headerDeviceID))
	resume.POST("/generate", s.GenerateResume)
	resume.POST("/cover-letter", s.GenerateCoverLetter)
	resume.GET("/tokens", s.TokenStatus)

	payment := api.Group("/payment")
	payment.GET("/products", s.ListProducts)
	payment.POST("/create-checkout", s.CreateCheckout)
	payment.POST("/webhooks/creem", s.HandleCreemWebhook)
}
