package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	"go.uber.org/zap"
)

// SendSessionInvoice pushes a session's pending single invoice to the payment
// provider. It returns nil when the session has no single invoice.
func (s *Service) SendSessionInvoice(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.Invoice, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	invoice, err := s.repo.FindSingleBySession(ctx, s.db, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, nil
	}
	return s.send(ctx, invoice)
}

func (s *Service) SendInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) (*domain.Invoice, error) {
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
	return s.send(ctx, invoice)
}

func (s *Service) send(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error) {
	if invoice.Status != domain.InvoiceStatusPending {
		return nil, domain.ErrInvoiceNotPending
	}

	provider, err := s.payments.Active()
	if err != nil {
		return nil, err
	}

	recipient := ""
	if s.clientRepo != nil {
		client, err := s.clientRepo.FindByID(ctx, s.db, invoice.OrgID, invoice.ClientID)
		if err != nil {
			return nil, err
		}
		if client != nil {
			recipient = client.Email
		}
	}

	result, err := provider.SendInvoice(ctx, paymentdomain.SendInvoiceRequest{
		Amount:         invoice.Amount,
		Description:    invoice.Description,
		DueDate:        invoice.DueDate,
		RecipientEmail: recipient,
		ReferenceID:    invoice.ID.String(),
	})
	if err != nil {
		s.metrics.RecordPaymentSend(ctx, provider.Name(), "error")
		return nil, fmt.Errorf("send invoice %s via %s: %w", invoice.ID, provider.Name(), err)
	}
	s.metrics.RecordPaymentSend(ctx, provider.Name(), "sent")

	now := s.clock.Now()
	providerName := provider.Name()
	providerInvoiceID := strings.TrimSpace(result.ProviderInvoiceID)
	invoice.PaymentProvider = &providerName
	invoice.ProviderInvoiceID = &providerInvoiceID
	if url := strings.TrimSpace(result.PaymentURL); url != "" {
		invoice.PaymentURL = &url
	}
	invoice.SentAt = &now
	invoice.UpdatedAt = now

	updated, err := s.repo.MarkSent(ctx, s.db, invoice)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrInvoiceNotPending
	}
	invoice.Status = domain.InvoiceStatusSent

	s.audit(ctx, invoice.OrgID, "invoice.sent", invoice, map[string]any{
		"provider":            providerName,
		"provider_invoice_id": providerInvoiceID,
	})
	s.log.Info("invoice sent",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("provider", providerName),
		zap.String("provider_invoice_id", providerInvoiceID),
	)
	return invoice, nil
}

// ApplyProviderStatus records a provider-reported status. Only sent invoices can be
// marked paid; repeating a paid notification is a no-op.
func (s *Service) ApplyProviderStatus(ctx context.Context, update domain.ProviderStatusUpdate) (*domain.Invoice, error) {
	provider := strings.ToLower(strings.TrimSpace(update.Provider))
	providerInvoiceID := strings.TrimSpace(update.ProviderInvoiceID)
	if provider == "" || providerInvoiceID == "" {
		return nil, domain.ErrInvalidInvoiceID
	}

	invoice, err := s.repo.FindByProviderInvoiceID(ctx, s.db, provider, providerInvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrInvoiceNotFound
	}

	switch update.Status {
	case domain.InvoiceStatusSent:
		if invoice.Status == domain.InvoiceStatusPending {
			return nil, domain.ErrInvalidStatusTransition
		}
		return invoice, nil
	case domain.InvoiceStatusPaid:
		if invoice.Status == domain.InvoiceStatusPaid {
			return invoice, nil
		}
		if invoice.Status != domain.InvoiceStatusSent {
			return nil, domain.ErrInvalidStatusTransition
		}
	default:
		return nil, domain.ErrInvalidStatus
	}

	paidAt := s.clock.Now()
	if update.PaidAt != nil && !update.PaidAt.IsZero() {
		paidAt = update.PaidAt.UTC()
	}
	updated, err := s.repo.MarkPaid(ctx, s.db, invoice.ID, paidAt)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrInvalidStatusTransition
	}
	invoice.Status = domain.InvoiceStatusPaid
	invoice.PaidAt = &paidAt
	invoice.UpdatedAt = paidAt

	s.audit(ctx, invoice.OrgID, "invoice.paid", invoice, map[string]any{
		"provider":            provider,
		"provider_invoice_id": providerInvoiceID,
		"paid_at":             paidAt.Format(time.RFC3339),
	})
	return invoice, nil
}
