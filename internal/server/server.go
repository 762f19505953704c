package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	adjustmentdomain "github.com/smallbiznis/billingcore/internal/adjustment/domain"
	billingdomain "github.com/smallbiznis/billingcore/internal/billing/domain"
	"github.com/smallbiznis/billingcore/internal/clock"
	"github.com/smallbiznis/billingcore/internal/config"
	customerdomain "github.com/smallbiznis/billingcore/internal/customer/domain"
	"github.com/smallbiznis/billingcore/internal/idempotency"
	invoicedomain "github.com/smallbiznis/billingcore/internal/invoice/domain"
	obslogger "github.com/smallbiznis/billingcore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billingcore/internal/observability/metrics"
	obstracing "github.com/smallbiznis/billingcore/internal/observability/tracing"
	plandomain "github.com/smallbiznis/billingcore/internal/plan/domain"
	"github.com/smallbiznis/billingcore/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/billingcore/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the billing and scheduler HTTP surfaces. Domain modules are
// composed by the binary.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterBillingRoutes()
		s.RegisterSchedulerRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, classifyErrorForLog))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(obsmetrics.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
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
	log             *zap.Logger
	clock           clock.Clock
	billingCfg      *config.BillingConfigHolder
	billingSvc      billingdomain.Service
	planSvc         plandomain.Service
	customerSvc     customerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	adjustmentSvc   adjustmentdomain.Service
	idempotency     idempotency.Store
	scheduler       *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	Clock           clock.Clock
	BillingCfg      *config.BillingConfigHolder
	BillingSvc      billingdomain.Service
	PlanSvc         plandomain.Service
	CustomerSvc     customerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	AdjustmentSvc   adjustmentdomain.Service
	Idempotency     idempotency.Store    `optional:"true"`
	Scheduler       *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		clock:           p.Clock,
		billingCfg:      p.BillingCfg,
		billingSvc:      p.BillingSvc,
		planSvc:         p.PlanSvc,
		customerSvc:     p.CustomerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		adjustmentSvc:   p.AdjustmentSvc,
		idempotency:     p.Idempotency,
		scheduler:       p.Scheduler,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// idempotent deduplicates mutating requests carrying an Idempotency-Key.
// Scope is resolved per caller, so it must run after CallerRequired.
func (s *Server) idempotent() gin.HandlerFunc {
	return idempotency.Middleware(idempotency.MiddlewareConfig{
		Store: s.idempotency,
		TTL: func() time.Duration {
			return s.billingCfg.Get().IdempotencyTTL
		},
		Scope:   idempotencyScope,
		OnError: abortIdempotency,
		Log:     s.log,
		Clock:   s.clock,
	})
}

func (s *Server) RegisterBillingRoutes() {
	billing := s.engine.Group("/billing", CallerRequired())
	write := s.idempotent()

	billing.GET("/plans", s.ListPlans)
	billing.POST("/plans", AdminOnly(), write, s.CreatePlan)
	billing.POST("/plans/:id/price", AdminOnly(), write, s.UpdatePlanPrice)

	billing.POST("/customers", AdminOnly(), write, s.CreateCustomer)
	billing.GET("/customers", AdminOnly(), s.ListCustomers)
	billing.GET("/customers/:id", s.GetCustomer)
	billing.PATCH("/customers/:id", AdminOnly(), write, s.UpdateCustomerBillingDetails)

	billing.POST("/subscription", AdminOnly(), write, s.CreateSubscription)
	billing.GET("/subscription/:id", s.GetSubscription)
	billing.POST("/subscription/:id/change-plan", write, s.ChangePlan)
	billing.POST("/subscription/:id/cancel", write, s.CancelSubscription)
	billing.GET("/subscription/:id/history", s.GetSubscriptionHistory)
	billing.GET("/subscription/:id/invoices", s.ListSubscriptionInvoices)
	billing.GET("/subscription/:id/adjustments", s.ListAdjustments)
	billing.GET("/subscription/:id/adjustments/summary", s.AdjustmentSummary)

	billing.GET("/invoice/:id", s.GetInvoice)
	billing.POST("/invoice/:id/finalize", write, s.FinalizeInvoice)
	billing.POST("/invoice/:id/mark-paid", AdminOnly(), write, s.MarkInvoicePaid)

	billing.POST("/adjustment", AdminOnly(), write, s.CreateAdjustment)
	billing.POST("/adjustment/:id/void", AdminOnly(), write, s.VoidAdjustment)
}

func (s *Server) RegisterSchedulerRoutes() {
	admin := s.engine.Group("/scheduler", CallerRequired(), AdminOnly())

	admin.GET("/status", s.SchedulerStatus)
	admin.POST("/start", s.idempotent(), s.StartScheduler)
	admin.POST("/stop", s.idempotent(), s.StopScheduler)
	admin.POST("/run-job/:jobName", s.idempotent(), s.RunJob)
	admin.POST("/generate-invoice", s.idempotent(), s.GenerateInvoice)
}
