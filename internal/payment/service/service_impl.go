package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/clock"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/practicebooks/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	InvoiceSvc invoicedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	invoiceSvc invoicedomain.Service
	obsMetrics *obsmetrics.Metrics
	clock      clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		obsMetrics: p.ObsMetrics,
		clock:      clk,
	}
}

// ProcessEvent records a provider status event once and applies it to the invoice.
// Redelivered events that were already applied return ErrEventAlreadyProcessed.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.InvoiceStatusEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:                s.genID.Generate(),
		Provider:          event.Provider,
		ProviderEventID:   event.ProviderEventID,
		EventType:         event.Type,
		ProviderInvoiceID: event.ProviderInvoiceID,
		Payload:           datatypes.JSON(event.RawPayload),
		ReceivedAt:        now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}
	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}

	var orgID snowflake.ID
	switch event.Type {
	case paymentdomain.EventTypeInvoiceFailed:
		// Failed deliveries leave the invoice sent; staff resend from the provider.
		s.log.Warn("provider reported failed invoice",
			zap.String("provider", event.Provider),
			zap.String("provider_invoice_id", event.ProviderInvoiceID),
		)
	default:
		invoice, err := s.invoiceSvc.ApplyProviderStatus(ctx, invoicedomain.ProviderStatusUpdate{
			Provider:          event.Provider,
			ProviderInvoiceID: event.ProviderInvoiceID,
			Status:            statusFor(event.Type),
			PaidAt:            event.PaidAt,
		})
		if err != nil {
			if errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
				s.log.Warn("payment event for unknown invoice",
					zap.String("provider", event.Provider),
					zap.String("provider_invoice_id", event.ProviderInvoiceID),
				)
			}
			return err
		}
		orgID = invoice.OrgID
	}

	return s.repo.MarkProcessed(ctx, s.db, stored.ID, orgID, now)
}

func validateEvent(event *paymentdomain.InvoiceStatusEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.ProviderInvoiceID = strings.TrimSpace(event.ProviderInvoiceID)
	if event.ProviderEventID == "" || event.ProviderInvoiceID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.ToLower(strings.TrimSpace(event.Type))
	switch event.Type {
	case paymentdomain.EventTypeInvoiceSent, paymentdomain.EventTypeInvoicePaid, paymentdomain.EventTypeInvoiceFailed:
	default:
		return paymentdomain.ErrEventIgnored
	}
	if len(event.RawPayload) == 0 {
		event.RawPayload = []byte("{}")
	}
	return nil
}

func statusFor(eventType string) invoicedomain.InvoiceStatus {
	if eventType == paymentdomain.EventTypeInvoicePaid {
		return invoicedomain.InvoiceStatusPaid
	}
	return invoicedomain.InvoiceStatusSent
}
