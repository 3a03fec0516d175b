package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/notification"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	"github.com/smallbiznis/practicebooks/internal/session/domain"
	"go.uber.org/zap"
)

// Submit prices the session and, unless it is billed through batch statements,
// creates its pending single invoice before the status moves to submitted.
func (s *Service) Submit(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.TransitionResult, error) {
	detail, err := s.load(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, detail.ContractorID); err != nil {
		return nil, err
	}
	if !domain.CanTransition(detail.Status, domain.StatusSubmitted) {
		return nil, domain.ErrInvalidTransition
	}
	primary, ok := detail.PrimaryClient()
	if !ok {
		return nil, domain.ErrInvalidClient
	}

	result := &domain.TransitionResult{}
	if !detail.IsScholarshipPayer(s.billing.Get()) {
		priced, err := detail.Price(pricing.PayerStandard)
		if err != nil {
			return nil, err
		}
		invoice, err := s.invoiceSvc.CreateSingleInvoice(ctx, invoicedomain.SingleInvoiceInput{
			OrgID:       orgID,
			SessionID:   detail.ID,
			ClientID:    primary.ClientID,
			SessionDate: detail.SessionDate,
			Description: describe(detail),
			Pricing:     priced,
		})
		if err != nil {
			return nil, fmt.Errorf("create session invoice: %w", err)
		}
		result.Invoice = invoice
	}

	updated, err := s.transition(ctx, detail, domain.StatusSubmitted, nil)
	if err != nil || !updated {
		if result.Invoice != nil {
			if _, cerr := s.invoiceSvc.DeleteSingleSessionInvoice(ctx, orgID, detail.ID); cerr != nil {
				s.log.Error("failed to remove invoice after submit failed",
					zap.String("session_id", detail.ID.String()),
					zap.Error(cerr),
				)
			}
		}
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidTransition
	}

	result.Session = &detail.Session
	return result, nil
}

// Approve marks the session approved, then asks the payment provider to send the
// pending single invoice. Send failures are reported as warnings; the approval stands.
func (s *Service) Approve(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.TransitionResult, error) {
	detail, err := s.load(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(detail.Status, domain.StatusApproved) {
		return nil, domain.ErrInvalidTransition
	}
	updated, err := s.transition(ctx, detail, domain.StatusApproved, nil)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrInvalidTransition
	}

	result := &domain.TransitionResult{Session: &detail.Session}

	sendCtx := ctx
	if timeout := s.cfg.Payment.SendTimeout; timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	invoice, err := s.invoiceSvc.SendSessionInvoice(sendCtx, orgID, detail.ID)
	if err != nil {
		s.log.Warn("payment notification failed",
			zap.String("session_id", detail.ID.String()),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, fmt.Sprintf("invoice was not sent: %v", err))
		return result, nil
	}
	result.Invoice = invoice
	return result, nil
}

// Reject removes the session's pending invoices and returns it to draft with a reason.
func (s *Service) Reject(ctx context.Context, orgID, sessionID snowflake.ID, reason string) (*domain.TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrReasonRequired
	}
	detail, err := s.load(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if detail.Status != domain.StatusSubmitted && detail.Status != domain.StatusApproved {
		return nil, domain.ErrInvalidTransition
	}

	result, err := s.cleanup(ctx, detail)
	if err != nil {
		return result, err
	}
	updated, err := s.transition(ctx, detail, domain.StatusDraft, &reason)
	if err != nil {
		return result, err
	}
	if !updated {
		return result, domain.ErrInvalidTransition
	}
	detail.RejectionReason = &reason
	result.Session = &detail.Session

	s.notifyRejected(ctx, detail, reason)
	return result, nil
}

func (s *Service) Cancel(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.TransitionResult, error) {
	detail, err := s.load(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, detail.ContractorID); err != nil {
		return nil, err
	}
	if !domain.CanTransition(detail.Status, domain.StatusCancelled) {
		return nil, domain.ErrInvalidTransition
	}

	result, err := s.cleanup(ctx, detail)
	if err != nil {
		return result, err
	}
	updated, err := s.transition(ctx, detail, domain.StatusCancelled, nil)
	if err != nil {
		return result, err
	}
	if !updated {
		return result, domain.ErrInvalidTransition
	}
	result.Session = &detail.Session
	return result, nil
}

// MarkNoShow changes the status only; invoices are kept.
func (s *Service) MarkNoShow(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.TransitionResult, error) {
	detail, err := s.load(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(detail.Status, domain.StatusNoShow) {
		return nil, domain.ErrInvalidTransition
	}
	updated, err := s.transition(ctx, detail, domain.StatusNoShow, nil)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrInvalidTransition
	}
	return &domain.TransitionResult{Session: &detail.Session}, nil
}

// Delete removes the session from any status once its invoices are cleaned up.
// A session still listed on a sent batch invoice cannot be deleted.
func (s *Service) Delete(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.TransitionResult, error) {
	detail, err := s.load(ctx, orgID, sessionID)
	if err != nil {
		return nil, err
	}

	frozen, err := s.invoiceSvc.FrozenBatchInvoices(ctx, orgID, detail.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCleanupFailed, err)
	}
	if len(frozen) > 0 {
		return nil, fmt.Errorf("%w: batch invoice %s already left the practice: %w",
			domain.ErrCleanupFailed, frozen[0], invoicedomain.ErrInvoiceFrozen)
	}

	result, err := s.cleanup(ctx, detail)
	if err != nil {
		return result, err
	}
	if err := s.repo.Delete(ctx, s.db, orgID, detail.ID); err != nil {
		return result, fmt.Errorf("delete session: %w", err)
	}
	result.Session = &detail.Session

	s.audit(ctx, orgID, "session.deleted", &detail.Session, nil)
	s.log.Info("session deleted", zap.String("session_id", detail.ID.String()))
	return result, nil
}

// cleanup removes the session's pending single invoice and strips it from batch
// invoices. Every invoice is attempted; any failure is returned as one
// ErrCleanupFailed and the caller must leave the session status untouched.
func (s *Service) cleanup(ctx context.Context, detail *domain.SessionDetail) (*domain.TransitionResult, error) {
	result := &domain.TransitionResult{}
	var errs []error

	deleted, err := s.invoiceSvc.DeleteSingleSessionInvoice(ctx, detail.OrgID, detail.ID)
	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceFrozen) && deleted != nil:
		errs = append(errs, fmt.Errorf("invoice %s is already %s: %w", deleted.ID, deleted.Status, err))
	case err != nil:
		errs = append(errs, err)
	default:
		result.Invoice = deleted
	}

	report, err := s.invoiceSvc.DetachSessionFromBatchInvoices(ctx, detail.OrgID, detail.ID)
	result.Detach = &report
	if err != nil {
		errs = append(errs, fmt.Errorf("%d of %d batch line items failed: %w",
			report.Failed, report.Processed+report.Skipped+report.Failed, err))
	}
	for _, invoiceID := range report.SkippedInvoices {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("batch invoice %s was already sent and still lists this session", invoiceID))
	}

	if len(errs) > 0 {
		return result, fmt.Errorf("%w: %w", domain.ErrCleanupFailed, errors.Join(errs...))
	}
	return result, nil
}

// transition writes the new status only while the session is still in a status
// that may move to it.
func (s *Service) transition(ctx context.Context, detail *domain.SessionDetail, to domain.Status, reason *string) (bool, error) {
	from := detail.Status
	now := s.clock.Now()
	updated, err := s.repo.UpdateStatus(ctx, s.db, detail.OrgID, detail.ID, domain.SourcesFor(to), domain.StatusChange{
		To:              to,
		At:              now,
		RejectionReason: reason,
	})
	if err != nil {
		return false, fmt.Errorf("update session status: %w", err)
	}
	if !updated {
		return false, nil
	}

	detail.Status = to
	detail.UpdatedAt = now
	switch to {
	case domain.StatusSubmitted:
		detail.SubmittedAt = &now
		detail.RejectionReason = nil
	case domain.StatusApproved:
		detail.ApprovedAt = &now
	case domain.StatusDraft:
		if reason != nil {
			detail.RejectedAt = &now
		}
	case domain.StatusCancelled, domain.StatusNoShow:
		detail.CancelledAt = &now
	}

	s.metrics.RecordSessionTransition(ctx, string(from), string(to))
	action := "session." + string(to)
	if to == domain.StatusDraft && reason != nil {
		action = "session.rejected"
	}
	metadata := map[string]any{"from": string(from)}
	if reason != nil {
		metadata["reason"] = *reason
	}
	s.audit(ctx, detail.OrgID, action, &detail.Session, metadata)
	s.log.Info("session status changed",
		zap.String("session_id", detail.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return true, nil
}

func (s *Service) notifyRejected(ctx context.Context, detail *domain.SessionDetail, reason string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.SessionRejected(ctx, notification.SessionRejected{
		SessionID:       detail.ID.String(),
		ContractorName:  detail.ContractorName,
		ContractorEmail: detail.ContractorEmail,
		ServiceName:     detail.ServiceType.Name,
		SessionDate:     detail.SessionDate,
		Reason:          reason,
	})
	if err != nil {
		s.log.Warn("rejection notice failed", zap.String("session_id", detail.ID.String()), zap.Error(err))
	}
}

func describe(detail *domain.SessionDetail) string {
	name := detail.ServiceType.Name
	if name == "" {
		name = "Session"
	}
	return fmt.Sprintf("%s on %s", name, detail.SessionDate.Format("2006-01-02"))
}
