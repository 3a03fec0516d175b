package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	"github.com/smallbiznis/practicebooks/internal/clock"
	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/practicebooks/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	"github.com/smallbiznis/practicebooks/internal/payment/adapters"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	SessionRepo sessiondomain.Repository
	ClientRepo  clientdomain.Repository
	OrgRepo     orgdomain.Repository
	Payments    *adapters.Registry          `optional:"true"`
	Billing     *config.BillingConfigHolder `optional:"true"`
	AuditSvc    auditdomain.Service         `optional:"true"`
	Metrics     *obsmetrics.Metrics         `optional:"true"`
	Clock       clock.Clock                 `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	repo        domain.Repository
	sessionRepo sessiondomain.Repository
	clientRepo  clientdomain.Repository
	orgRepo     orgdomain.Repository
	payments    *adapters.Registry
	billing     *config.BillingConfigHolder
	auditSvc    auditdomain.Service
	metrics     *obsmetrics.Metrics
	clock       clock.Clock
}

func NewService(p Params) domain.Service {
	return New(p)
}

// New returns the concrete service; tests use it to reach unexported helpers.
func New(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,

		repo:        p.Repo,
		sessionRepo: p.SessionRepo,
		clientRepo:  p.ClientRepo,
		orgRepo:     p.OrgRepo,
		payments:    p.Payments,
		billing:     p.Billing,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
		clock:       clk,
	}
}

func (s *Service) GetByID(ctx context.Context, orgID, invoiceID snowflake.ID) (*domain.Invoice, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if invoiceID == 0 {
		return nil, domain.ErrInvalidInvoiceID
	}

	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if invoice.InvoiceType == domain.InvoiceTypeBatch {
		items, err := s.repo.ListLineItems(ctx, s.db, invoice.ID)
		if err != nil {
			return nil, err
		}
		invoice.LineItems = items
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	if orgID == 0 {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{OrgID: orgID, Limit: req.Limit() + 1}

	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		switch domain.InvoiceStatus(status) {
		case domain.InvoiceStatusPending, domain.InvoiceStatusSent, domain.InvoiceStatusPaid:
			filter.Status = domain.InvoiceStatus(status)
		default:
			return domain.ListInvoiceResponse{}, domain.ErrInvalidStatus
		}
	}
	if kind := strings.ToLower(strings.TrimSpace(req.InvoiceType)); kind != "" {
		switch domain.InvoiceType(kind) {
		case domain.InvoiceTypeSingle, domain.InvoiceTypeBatch:
			filter.InvoiceType = domain.InvoiceType(kind)
		default:
			return domain.ListInvoiceResponse{}, domain.ErrMalformedInvoice
		}
	}
	if clientID := strings.TrimSpace(req.ClientID); clientID != "" {
		parsed, err := snowflake.ParseString(clientID)
		if err != nil {
			return domain.ListInvoiceResponse{}, domain.ErrInvalidClient
		}
		filter.ClientID = parsed
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	if cursor != nil && cursor.ID != "" {
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListInvoiceResponse{}, err
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	page, info := pagination.Page(items, req.Limit(), func(i *domain.Invoice) string {
		return i.ID.String()
	})
	invoices := make([]domain.Invoice, 0, len(page))
	for _, item := range page {
		invoices = append(invoices, *item)
	}
	return domain.ListInvoiceResponse{PageInfo: info, Invoices: invoices}, nil
}

func (s *Service) billingConfig() config.BillingConfig {
	return s.billing.Get()
}

// organization returns nil when the org row is missing; callers fall back to defaults.
func (s *Service) organization(ctx context.Context, orgID snowflake.ID) *orgdomain.Organization {
	if s.orgRepo == nil {
		return nil
	}
	org, err := s.orgRepo.FindByID(ctx, s.db, orgID)
	if err != nil {
		s.log.Warn("failed to load organization", zap.String("org_id", orgID.String()), zap.Error(err))
		return nil
	}
	return org
}

func (s *Service) dueDate(org *orgdomain.Organization, from time.Time) time.Time {
	days := s.billingConfig().InvoiceDueDays
	if org != nil && org.InvoiceDueDays > 0 {
		days = org.InvoiceDueDays
	}
	return from.AddDate(0, 0, days)
}

func orgLocation(org *orgdomain.Organization) *time.Location {
	if org == nil {
		return time.UTC
	}
	return org.Location()
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, invoice *domain.Invoice, metadata map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["invoice_type"] = string(invoice.InvoiceType)
	metadata["amount"] = invoice.Amount.String()
	if err := s.auditSvc.AuditLog(ctx, orgID, action, "invoice", invoice.ID.String(), metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
