package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/practicebooks/internal/audit"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	"github.com/smallbiznis/practicebooks/internal/client"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/contractor"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	"github.com/smallbiznis/practicebooks/internal/invoice"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/notification"
	"github.com/smallbiznis/practicebooks/internal/observability"
	obsmiddleware "github.com/smallbiznis/practicebooks/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/practicebooks/internal/observability/metrics"
	obstracing "github.com/smallbiznis/practicebooks/internal/observability/tracing"
	"github.com/smallbiznis/practicebooks/internal/organization"
	organizationdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	"github.com/smallbiznis/practicebooks/internal/payment"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	"github.com/smallbiznis/practicebooks/internal/providers"
	"github.com/smallbiznis/practicebooks/internal/ratelimit"
	"github.com/smallbiznis/practicebooks/internal/scheduler"
	"github.com/smallbiznis/practicebooks/internal/servicetype"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	"github.com/smallbiznis/practicebooks/internal/session"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domains wires every service the HTTP API and the scheduler depend on.
var Domains = fx.Options(
	authorization.Module,
	audit.Module,
	organization.Module,
	client.Module,
	contractor.Module,
	servicetype.Module,
	invoice.Module,
	session.Module,
	payment.Module,
	providers.Module,
	notification.Module,
	ratelimit.Module,
)

var Module = fx.Module("http.server",
	Domains,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if obsCfg.PrometheusEnabled {
		r.Use(obsmetrics.GinMiddleware(httpMetrics))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if obsCfg.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	port := strings.TrimSpace(cfg.HTTPPort)
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	orgSvc         organizationdomain.Service
	clientSvc      clientdomain.Service
	contractorSvc  contractordomain.Service
	serviceTypeSvc servicetypedomain.Service
	sessionSvc     sessiondomain.Service
	invoiceSvc     invoicedomain.Service
	paymentSvc     paymentdomain.Service

	webhookLimiter *ratelimit.WebhookLimiter
	scheduler      *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	OrgSvc         organizationdomain.Service
	ClientSvc      clientdomain.Service
	ContractorSvc  contractordomain.Service
	ServiceTypeSvc servicetypedomain.Service
	SessionSvc     sessiondomain.Service
	InvoiceSvc     invoicedomain.Service
	PaymentSvc     paymentdomain.Service
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
	Scheduler      *scheduler.Scheduler      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		orgSvc:         p.OrgSvc,
		clientSvc:      p.ClientSvc,
		contractorSvc:  p.ContractorSvc,
		serviceTypeSvc: p.ServiceTypeSvc,
		sessionSvc:     p.SessionSvc,
		invoiceSvc:     p.InvoiceSvc,
		paymentSvc:     p.PaymentSvc,
		webhookLimiter: p.WebhookLimiter,
		scheduler:      p.Scheduler,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Payment Webhooks --------
	// Providers authenticate with a payload signature, not an org actor.
	api.POST("/payments/webhooks/:provider", s.WebhookRateLimit(), s.HandlePaymentWebhook)

	api.Use(s.ActorContext())

	api.POST("/organizations", s.CreateOrganization)

	org := api.Group("", s.OrgContext())

	// -------- Organization --------
	org.GET("/organization", s.GetOrganization)
	org.PATCH("/organization/batch-settings", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationManage), s.UpdateBatchSettings)

	// -------- Clients --------
	org.GET("/clients", s.authorizeOrgAction(authorization.ObjectClient, authorization.ActionClientView), s.ListClients)
	org.POST("/clients", s.authorizeOrgAction(authorization.ObjectClient, authorization.ActionClientManage), s.CreateClient)
	org.GET("/clients/:id", s.authorizeOrgAction(authorization.ObjectClient, authorization.ActionClientView), s.GetClientByID)
	org.POST("/clients/:id/batch-invoices", s.authorizeOrgAction(authorization.ObjectBatchInvoice, authorization.ActionBatchInvoiceGenerate), s.GenerateBatchInvoice)

	// -------- Contractors --------
	org.GET("/contractors", s.authorizeOrgAction(authorization.ObjectContractor, authorization.ActionContractorView), s.ListContractors)
	org.POST("/contractors", s.authorizeOrgAction(authorization.ObjectContractor, authorization.ActionContractorManage), s.CreateContractor)
	org.GET("/contractors/:id", s.authorizeOrgAction(authorization.ObjectContractor, authorization.ActionContractorView), s.GetContractorByID)

	// -------- Service Types --------
	org.GET("/service-types", s.authorizeOrgAction(authorization.ObjectServiceType, authorization.ActionServiceTypeView), s.ListServiceTypes)
	org.POST("/service-types", s.authorizeOrgAction(authorization.ObjectServiceType, authorization.ActionServiceTypeManage), s.CreateServiceType)
	org.GET("/service-types/:id", s.authorizeOrgAction(authorization.ObjectServiceType, authorization.ActionServiceTypeView), s.GetServiceTypeByID)
	org.PUT("/service-types/:id", s.authorizeOrgAction(authorization.ObjectServiceType, authorization.ActionServiceTypeManage), s.UpdateServiceType)
	org.POST("/service-types/:id/archive", s.authorizeOrgAction(authorization.ObjectServiceType, authorization.ActionServiceTypeManage), s.ArchiveServiceType)
	org.PUT("/rate-overrides", s.authorizeOrgAction(authorization.ObjectServiceType, authorization.ActionServiceTypeManage), s.SetRateOverride)
	org.DELETE("/rate-overrides/:contractor_id/:service_type_id", s.authorizeOrgAction(authorization.ObjectServiceType, authorization.ActionServiceTypeManage), s.ClearRateOverride)

	// -------- Sessions --------
	org.GET("/sessions", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionView), s.ListSessions)
	org.POST("/sessions", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionCreate), s.CreateSession)
	org.GET("/sessions/:id", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionView), s.GetSession)
	org.DELETE("/sessions/:id", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionDelete), s.DeleteSession)
	org.POST("/sessions/:id/submit", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionSubmit), s.SubmitSession)
	org.POST("/sessions/:id/approve", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionApprove), s.ApproveSession)
	org.POST("/sessions/:id/reject", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionReject), s.RejectSession)
	org.POST("/sessions/:id/cancel", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionCancel), s.CancelSession)
	org.POST("/sessions/:id/no-show", s.authorizeOrgAction(authorization.ObjectSession, authorization.ActionSessionNoShow), s.MarkSessionNoShow)

	// -------- Invoices --------
	org.GET("/invoices", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	org.GET("/invoices/:id", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	org.POST("/invoices/:id/send", s.authorizeOrgAction(authorization.ObjectInvoice, authorization.ActionInvoiceSend), s.SendInvoice)

	// -------- Batch Sweeps --------
	org.POST("/batch-sweeps", s.authorizeOrgAction(authorization.ObjectSweep, authorization.ActionSweepRun), s.RunBatchSweep)

	// -------- Audit Logs --------
	org.GET("/audit-logs", s.authorizeOrgAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}
