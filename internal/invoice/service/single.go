package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateSingleInvoice stores the pending invoice for a submitted session.
// A session never has more than one single invoice.
func (s *Service) CreateSingleInvoice(ctx context.Context, in domain.SingleInvoiceInput) (*domain.Invoice, error) {
	if in.OrgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if in.SessionID == 0 {
		return nil, domain.ErrMalformedInvoice
	}
	if in.ClientID == 0 {
		return nil, domain.ErrInvalidClient
	}

	existing, err := s.repo.FindSingleBySession(ctx, s.db, in.OrgID, in.SessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrSingleInvoiceExists
	}

	now := s.clock.Now()
	org := s.organization(ctx, in.OrgID)
	sessionID := in.SessionID
	invoice := &domain.Invoice{
		ID:            s.genID.Generate(),
		OrgID:         in.OrgID,
		ClientID:      in.ClientID,
		InvoiceType:   domain.InvoiceTypeSingle,
		SessionID:     &sessionID,
		Amount:        in.Pricing.TotalAmount,
		PracticeCut:   in.Pricing.PracticeCut,
		ContractorPay: in.Pricing.ContractorPay,
		RentAmount:    in.Pricing.RentAmount,
		Status:        domain.InvoiceStatusPending,
		Description:   in.Description,
		DueDate:       s.dueDate(org, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := invoice.Variant(); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSingleInvoiceExists
		}
		return nil, err
	}

	s.metrics.RecordInvoiceCreated(ctx, string(domain.InvoiceTypeSingle))
	s.audit(ctx, in.OrgID, "invoice.single.created", invoice, map[string]any{
		"session_id": sessionID.String(),
	})
	s.log.Info("single invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("session_id", sessionID.String()),
		zap.String("amount", invoice.Amount.String()),
	)
	return invoice, nil
}

// DeleteSingleSessionInvoice removes a session's pending single invoice. Sent and
// paid invoices are left untouched and reported with ErrInvoiceFrozen.
func (s *Service) DeleteSingleSessionInvoice(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.Invoice, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}

	existing, err := s.repo.FindSingleBySession(ctx, s.db, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	var deleted *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return nil
		}
		if locked.Status.IsFrozen() {
			deleted = locked
			return domain.ErrInvoiceFrozen
		}
		if err := s.repo.Delete(ctx, tx, locked.ID); err != nil {
			return err
		}
		deleted = locked
		return nil
	})
	if errors.Is(err, domain.ErrInvoiceFrozen) {
		s.log.Warn("single invoice is frozen",
			zap.String("invoice_id", deleted.ID.String()),
			zap.String("status", string(deleted.Status)),
		)
		return deleted, err
	}
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		return nil, nil
	}

	s.audit(ctx, orgID, "invoice.single.deleted", deleted, map[string]any{
		"session_id": sessionID.String(),
	})
	return deleted, nil
}
