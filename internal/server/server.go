package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/cache"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	costdomain "github.com/vilosource/cielo-azure-billing/internal/costentry/domain"
	customerdomain "github.com/vilosource/cielo-azure-billing/internal/customer/domain"
	meterdomain "github.com/vilosource/cielo-azure-billing/internal/meter/domain"
	"github.com/vilosource/cielo-azure-billing/internal/observability"
	obsmiddleware "github.com/vilosource/cielo-azure-billing/internal/observability/logger"
	obsmetrics "github.com/vilosource/cielo-azure-billing/internal/observability/metrics"
	obstracing "github.com/vilosource/cielo-azure-billing/internal/observability/tracing"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	snapshotdomain "github.com/vilosource/cielo-azure-billing/internal/snapshot/domain"
	subscriptiondomain "github.com/vilosource/cielo-azure-billing/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	observability.HTTPModule,
	cache.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http.server")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	clock           clock.Clock
	cache           cache.Store
	sourceSvc       sourcedomain.Service
	snapshotSvc     snapshotdomain.Service
	costSvc         costdomain.Service
	customerSvc     customerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	resourceSvc     resourcedomain.Service
	meterSvc        meterdomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	Cache           cache.Store
	SourceSvc       sourcedomain.Service
	SnapshotSvc     snapshotdomain.Service
	CostSvc         costdomain.Service
	CustomerSvc     customerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ResourceSvc     resourcedomain.Service
	MeterSvc        meterdomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.handlers"),
		clock:           p.Clock,
		cache:           p.Cache,
		sourceSvc:       p.SourceSvc,
		snapshotSvc:     p.SnapshotSvc,
		costSvc:         p.CostSvc,
		customerSvc:     p.CustomerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		resourceSvc:     p.ResourceSvc,
		meterSvc:        p.MeterSvc,
		obsMetrics:      p.ObsMetrics,
	}
	if svc.cache == nil {
		svc.cache = cache.NewNoopStore()
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	costs := api.Group("/costs")
	{
		costs.GET("/subscription-summary", s.SubscriptionSummary)
		costs.GET("/virtual-machines-summary", s.VirtualMachinesSummary)
		costs.GET("/resource-group-summary", s.ResourceGroupSummary)
		costs.GET("/meter-category-summary", s.MeterCategorySummary)
		costs.GET("/region-summary", s.RegionSummary)
		costs.GET("/resource-group-totals", s.ResourceGroupTotals)
		costs.GET("/available-report-dates", s.AvailableReportDates)
	}

	api.GET("/reports/available-report-dates", s.SnapshotReportDates)

	entries := api.Group("/cost-entries")
	{
		entries.GET("", s.ListCostEntries)
		entries.GET("/aggregate", s.AggregateCostEntries)
	}

	snapshots := api.Group("/snapshots")
	{
		snapshots.GET("", s.ListSnapshots)
		snapshots.GET("/latest", s.LatestSnapshots)
		snapshots.GET("/for-date", s.SnapshotForDate)
		snapshots.GET("/latest-per-subscription", s.LatestSnapshotPerSubscription)
		snapshots.GET("/:id", s.GetSnapshot)
	}

	api.GET("/sources", s.ListSources)
	api.GET("/sources/:id", s.GetSource)
	api.GET("/customers", s.ListCustomers)
	api.GET("/customers/:id", s.GetCustomer)
	api.GET("/subscriptions", s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.GetSubscription)
	api.GET("/resources", s.ListResources)
	api.GET("/resources/:id", s.GetResource)
	api.GET("/meters", s.ListMeters)
	api.GET("/meters/:id", s.GetMeter)
}
