package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	"github.com/smallbiznis/practicebooks/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errLineItemInsert = errors.New("line_item_insert_failed")

// GenerateBatchInvoice bills every uninvoiced session the client was primary payer
// for during the period on one statement. Failures come back as *domain.BatchError.
func (s *Service) GenerateBatchInvoice(ctx context.Context, orgID, clientID snowflake.ID, period domain.BillingPeriod) (*domain.Invoice, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if clientID == 0 {
		return nil, domain.ErrInvalidClient
	}
	if period.IsZero() {
		return nil, domain.ErrInvalidBillingPeriod
	}

	invoice, err := s.generateBatch(ctx, orgID, clientID, period)
	if err != nil {
		reason, _ := domain.BatchReason(err)
		s.metrics.RecordBatchOutcome(ctx, string(reason))
		return nil, err
	}
	s.metrics.RecordBatchOutcome(ctx, "created")
	s.metrics.RecordInvoiceCreated(ctx, string(domain.InvoiceTypeBatch))
	return invoice, nil
}

func (s *Service) generateBatch(ctx context.Context, orgID, clientID snowflake.ID, period domain.BillingPeriod) (*domain.Invoice, error) {
	fail := func(reason domain.BatchFailureReason, cause error) error {
		return domain.NewBatchError(reason, clientID, period, cause)
	}
	periodKey := period.String()

	existing, err := s.repo.FindBatch(ctx, s.db, orgID, clientID, periodKey)
	if err != nil {
		return nil, fail(domain.ReasonPersistence, err)
	}
	if existing != nil {
		return nil, fail(domain.ReasonAlreadyExists, nil)
	}

	org := s.organization(ctx, orgID)
	from, to := period.Range(orgLocation(org))
	sessions, err := s.repo.ListClientSessions(ctx, s.db, orgID, clientID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fail(domain.ReasonPersistence, err)
	}
	if len(sessions) == 0 {
		return nil, fail(domain.ReasonNoEligibleSessions, nil)
	}

	ids := make([]snowflake.ID, 0, len(sessions))
	for _, sb := range sessions {
		ids = append(ids, sb.SessionID)
	}
	covered, err := s.repo.CoveredSessionIDs(ctx, s.db, orgID, ids)
	if err != nil {
		return nil, fail(domain.ReasonPersistence, err)
	}
	eligible := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := covered[id]; !ok {
			eligible = append(eligible, id)
		}
	}
	if len(eligible) == 0 {
		return nil, fail(domain.ReasonAllInvoiced, nil)
	}

	details, err := s.sessionRepo.LoadDetails(ctx, s.db, orgID, eligible)
	if err != nil {
		return nil, fail(domain.ReasonPersistence, err)
	}
	if len(details) == 0 {
		return nil, fail(domain.ReasonNoEligibleSessions, nil)
	}

	now := s.clock.Now()
	invoiceID := s.genID.Generate()
	items := make([]domain.InvoiceLineItem, 0, len(details))
	totals := pricing.Result{}
	for _, detail := range details {
		priced, err := detail.Price(pricing.PayerScholarship)
		if err != nil {
			return nil, fail(domain.ReasonPersistence, fmt.Errorf("price session %s: %w", detail.ID, err))
		}
		totals = totals.Add(priced)
		items = append(items, domain.InvoiceLineItem{
			ID:              s.genID.Generate(),
			OrgID:           orgID,
			InvoiceID:       invoiceID,
			SessionID:       detail.ID,
			Amount:          priced.TotalAmount,
			PracticeCut:     priced.PracticeCut,
			ContractorPay:   priced.ContractorPay,
			RentAmount:      priced.RentAmount,
			SessionDate:     detail.SessionDate,
			DurationMinutes: detail.DurationMinutes,
			ServiceName:     detail.ServiceType.Name,
			ContractorName:  detail.ContractorName,
			CreatedAt:       now,
		})
	}

	invoice := &domain.Invoice{
		ID:            invoiceID,
		OrgID:         orgID,
		ClientID:      clientID,
		InvoiceType:   domain.InvoiceTypeBatch,
		BillingPeriod: &periodKey,
		Amount:        totals.TotalAmount,
		PracticeCut:   totals.PracticeCut,
		ContractorPay: totals.ContractorPay,
		RentAmount:    totals.RentAmount,
		Status:        domain.InvoiceStatusPending,
		Description:   fmt.Sprintf("Statement for %s (%d sessions)", periodKey, len(items)),
		DueDate:       s.dueDate(org, now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.repo.InsertLineItems(ctx, tx, items); err != nil {
			return fmt.Errorf("%w: %w", errLineItemInsert, err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, errLineItemInsert) && db.IsDuplicateKeyErr(err) {
			return nil, fail(domain.ReasonAlreadyExists, err)
		}
		s.compensate(ctx, invoiceID)
		if db.IsDuplicateKeyErr(err) {
			// Another statement claimed one of the sessions first.
			return nil, fail(domain.ReasonAllInvoiced, err)
		}
		return nil, fail(domain.ReasonPersistence, err)
	}

	invoice.LineItems = items
	s.audit(ctx, orgID, "invoice.batch.created", invoice, map[string]any{
		"client_id":      clientID.String(),
		"billing_period": periodKey,
		"line_items":     len(items),
	})
	s.log.Info("batch invoice created",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("billing_period", periodKey),
		zap.Int("line_items", len(items)),
		zap.String("amount", invoice.Amount.String()),
	)
	return invoice, nil
}

// compensate removes whatever a failed batch write left behind.
func (s *Service) compensate(ctx context.Context, invoiceID snowflake.ID) {
	if err := s.repo.Delete(ctx, s.db, invoiceID); err != nil {
		s.log.Error("failed to remove partial batch invoice",
			zap.String("invoice_id", invoiceID.String()),
			zap.Error(err),
		)
	}
}

// ListBatchGroups groups unbilled scholarship sessions dated before the cutoff by
// primary client and billing month in loc.
func (s *Service) ListBatchGroups(ctx context.Context, orgID snowflake.ID, before time.Time, loc *time.Location) ([]domain.BatchGroup, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if loc == nil {
		loc = time.UTC
	}

	methods := s.billingConfig().ScholarshipMethods
	sessions, err := s.repo.ListUnbilledScholarshipSessions(ctx, s.db, orgID, methods, before.UTC())
	if err != nil {
		return nil, err
	}

	type key struct {
		client snowflake.ID
		period domain.BillingPeriod
	}
	index := map[key]int{}
	groups := make([]domain.BatchGroup, 0)
	for _, sb := range sessions {
		k := key{client: sb.ClientID, period: domain.PeriodOf(sb.SessionDate.In(loc))}
		pos, ok := index[k]
		if !ok {
			pos = len(groups)
			index[k] = pos
			groups = append(groups, domain.BatchGroup{ClientID: k.client, BillingPeriod: k.period})
		}
		groups[pos].SessionIDs = append(groups[pos].SessionIDs, sb.SessionID)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.BillingPeriod != b.BillingPeriod {
			if a.BillingPeriod.Year != b.BillingPeriod.Year {
				return a.BillingPeriod.Year < b.BillingPeriod.Year
			}
			return a.BillingPeriod.Month < b.BillingPeriod.Month
		}
		return a.ClientID < b.ClientID
	})
	return groups, nil
}
