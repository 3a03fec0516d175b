package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/invoice/domain"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// A no-show is still billed.
var billableStatuses = []string{
	string(sessiondomain.StatusSubmitted),
	string(sessiondomain.StatusApproved),
	string(sessiondomain.StatusNoShow),
}

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) InsertLineItems(ctx context.Context, db *gorm.DB, items []domain.InvoiceLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

// FindByIDForUpdate row-locks the invoice on dialects that support it.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindSingleBySession(ctx context.Context, db *gorm.DB, orgID, sessionID snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND session_id = ? AND invoice_type = ?", orgID, sessionID, domain.InvoiceTypeSingle).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindBatch(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID, period string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND client_id = ? AND billing_period = ? AND invoice_type = ?",
			orgID, clientID, period, domain.InvoiceTypeBatch).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, provider, providerInvoiceID string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).
		Where("payment_provider = ? AND provider_invoice_id = ?", provider, providerInvoiceID).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ?", filter.OrgID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.InvoiceType != "" {
		stmt = stmt.Where("invoice_type = ?", filter.InvoiceType)
	}
	if filter.ClientID != 0 {
		stmt = stmt.Where("client_id = ?", filter.ClientID)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var invoices []*domain.Invoice
	if err := stmt.Order("id asc").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).
		Where("invoice_id = ?", id).
		Delete(&domain.InvoiceLineItem{}).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Invoice{}).Error
}

func (r *repo) UpdateTotals(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, domain.InvoiceStatusPending).
		Updates(map[string]any{
			"amount":         invoice.Amount,
			"practice_cut":   invoice.PracticeCut,
			"contractor_pay": invoice.ContractorPay,
			"rent_amount":    invoice.RentAmount,
			"updated_at":     invoice.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvoiceNotPending
	}
	return nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", invoice.ID, domain.InvoiceStatusPending).
		Updates(map[string]any{
			"status":              domain.InvoiceStatusSent,
			"payment_provider":    invoice.PaymentProvider,
			"provider_invoice_id": invoice.ProviderInvoiceID,
			"payment_url":         invoice.PaymentURL,
			"sent_at":             invoice.SentAt,
			"updated_at":          invoice.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, domain.InvoiceStatusSent).
		Updates(map[string]any{
			"status":     domain.InvoiceStatusPaid,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceLineItem, error) {
	var items []domain.InvoiceLineItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("session_date asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListLineItemsBySession(ctx context.Context, db *gorm.DB, orgID, sessionID snowflake.ID) ([]domain.InvoiceLineItem, error) {
	var items []domain.InvoiceLineItem
	err := db.WithContext(ctx).
		Where("org_id = ? AND session_id = ?", orgID, sessionID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.InvoiceLineItem{}).
		Where("invoice_id = ?", invoiceID).
		Count(&count).Error
	return count, err
}

func (r *repo) DeleteLineItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.InvoiceLineItem{}).Error
}

type sessionBillingRow struct {
	SessionID   int64
	ClientID    int64
	SessionDate time.Time
}

func toSessionBilling(rows []sessionBillingRow) []domain.SessionBilling {
	out := make([]domain.SessionBilling, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.SessionBilling{
			SessionID:   snowflake.ID(row.SessionID),
			ClientID:    snowflake.ID(row.ClientID),
			SessionDate: row.SessionDate,
		})
	}
	return out
}

func (r *repo) ListClientSessions(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID, from, to time.Time) ([]domain.SessionBilling, error) {
	var rows []sessionBillingRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.id AS session_id, a.client_id AS client_id, s.session_date AS session_date
		 FROM sessions s
		 JOIN session_attendees a ON a.session_id = s.id AND a.position = 0
		 WHERE s.org_id = ? AND a.client_id = ?
		   AND s.status IN ?
		   AND s.session_date >= ? AND s.session_date < ?
		 ORDER BY s.session_date ASC, s.id ASC`,
		orgID,
		clientID,
		billableStatuses,
		from.UTC(),
		to.UTC(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toSessionBilling(rows), nil
}

func (r *repo) CoveredSessionIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]struct{}, error) {
	covered := make(map[snowflake.ID]struct{})
	if len(ids) == 0 {
		return covered, nil
	}
	raw := make([]int64, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, int64(id))
	}

	var found []int64
	err := db.WithContext(ctx).Raw(
		`SELECT session_id FROM invoices
		 WHERE org_id = ? AND invoice_type = ? AND session_id IN ?
		 UNION
		 SELECT session_id FROM invoice_line_items
		 WHERE org_id = ? AND session_id IN ?`,
		orgID,
		domain.InvoiceTypeSingle,
		raw,
		orgID,
		raw,
	).Scan(&found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		covered[snowflake.ID(id)] = struct{}{}
	}
	return covered, nil
}

func (r *repo) ListUnbilledScholarshipSessions(ctx context.Context, db *gorm.DB, orgID snowflake.ID, methods []string, before time.Time) ([]domain.SessionBilling, error) {
	normalized := make([]string, 0, len(methods))
	for _, m := range methods {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			normalized = append(normalized, m)
		}
	}
	if len(normalized) == 0 {
		// Keeps the IN clause valid; no client uses an empty method.
		normalized = append(normalized, "")
	}

	var rows []sessionBillingRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.id AS session_id, a.client_id AS client_id, s.session_date AS session_date
		 FROM sessions s
		 JOIN session_attendees a ON a.session_id = s.id AND a.position = 0
		 JOIN service_types st ON st.id = s.service_type_id
		 JOIN clients c ON c.id = a.client_id
		 WHERE s.org_id = ?
		   AND s.status IN ?
		   AND s.session_date < ?
		   AND (st.is_scholarship_eligible = ? OR c.payment_method IN ?)
		   AND NOT EXISTS (
		     SELECT 1 FROM invoices i
		     WHERE i.org_id = s.org_id AND i.session_id = s.id
		   )
		   AND NOT EXISTS (
		     SELECT 1 FROM invoice_line_items li
		     WHERE li.org_id = s.org_id AND li.session_id = s.id
		   )
		 ORDER BY a.client_id ASC, s.session_date ASC, s.id ASC`,
		orgID,
		billableStatuses,
		before.UTC(),
		true,
		normalized,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toSessionBilling(rows), nil
}
