package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type detachOutcome string

const (
	detachRemoved        detachOutcome = "removed"
	detachInvoiceDeleted detachOutcome = "invoice_deleted"
	detachSkipped        detachOutcome = "skipped"
	detachFailed         detachOutcome = "failed"
)

// DetachSessionFromBatchInvoices strips a session from every batch invoice it is on.
// Each line item is handled in its own transaction so one failure does not undo the
// others. Invoices that already left the practice are skipped. A batch invoice left
// without line items is deleted.
func (s *Service) DetachSessionFromBatchInvoices(ctx context.Context, orgID, sessionID snowflake.ID) (domain.DetachReport, error) {
	var report domain.DetachReport
	if orgID == 0 {
		return report, domain.ErrInvalidOrganization
	}

	items, err := s.repo.ListLineItemsBySession(ctx, s.db, orgID, sessionID)
	if err != nil {
		return report, err
	}

	var errs []error
	for _, item := range items {
		outcome, invoice, err := s.detachLineItem(ctx, item)
		s.metrics.RecordLineItemDetached(ctx, string(outcome))

		switch outcome {
		case detachFailed:
			report.Failed++
			errs = append(errs, fmt.Errorf("line item %s: %w", item.ID, err))
			s.log.Error("failed to detach session from batch invoice",
				zap.String("session_id", sessionID.String()),
				zap.String("invoice_id", item.InvoiceID.String()),
				zap.Error(err),
			)
		case detachSkipped:
			report.Skipped++
			report.SkippedInvoices = append(report.SkippedInvoices, item.InvoiceID)
		case detachInvoiceDeleted:
			report.Processed++
			report.DeletedInvoices = append(report.DeletedInvoices, item.InvoiceID)
			s.audit(ctx, orgID, "invoice.batch.deleted", invoice, map[string]any{
				"session_id": sessionID.String(),
			})
		default:
			report.Processed++
			s.audit(ctx, orgID, "invoice.batch.line_item_removed", invoice, map[string]any{
				"session_id":   sessionID.String(),
				"line_item_id": item.ID.String(),
			})
		}
	}

	report.Err = errors.Join(errs...)
	return report, report.Err
}

func (s *Service) FrozenBatchInvoices(ctx context.Context, orgID, sessionID snowflake.ID) ([]snowflake.ID, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	items, err := s.repo.ListLineItemsBySession(ctx, s.db, orgID, sessionID)
	if err != nil {
		return nil, err
	}

	var frozen []snowflake.ID
	for _, item := range items {
		invoice, err := s.repo.FindByID(ctx, s.db, orgID, item.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice != nil && invoice.Status != domain.InvoiceStatusPending {
			frozen = append(frozen, invoice.ID)
		}
	}
	return frozen, nil
}

func (s *Service) detachLineItem(ctx context.Context, item domain.InvoiceLineItem) (detachOutcome, *domain.Invoice, error) {
	outcome := detachFailed
	var invoice *domain.Invoice

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, item.InvoiceID)
		if err != nil {
			return err
		}
		if locked == nil {
			// The invoice is gone; drop the orphaned line item.
			if err := s.repo.DeleteLineItem(ctx, tx, item.ID); err != nil {
				return err
			}
			outcome = detachRemoved
			return nil
		}
		invoice = locked
		if locked.Status != domain.InvoiceStatusPending {
			outcome = detachSkipped
			return nil
		}

		if err := s.repo.DeleteLineItem(ctx, tx, item.ID); err != nil {
			return err
		}
		remaining, err := s.repo.CountLineItems(ctx, tx, locked.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.repo.Delete(ctx, tx, locked.ID); err != nil {
				return err
			}
			outcome = detachInvoiceDeleted
			return nil
		}

		locked.Amount = locked.Amount.Sub(item.Amount)
		locked.PracticeCut = locked.PracticeCut.Sub(item.PracticeCut)
		locked.ContractorPay = locked.ContractorPay.Sub(item.ContractorPay)
		locked.RentAmount = locked.RentAmount.Sub(item.RentAmount)
		locked.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateTotals(ctx, tx, locked); err != nil {
			return err
		}
		outcome = detachRemoved
		return nil
	})
	if err != nil {
		return detachFailed, invoice, err
	}
	return outcome, invoice, nil
}
