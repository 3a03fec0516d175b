package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID       snowflake.ID
	Status      InvoiceStatus
	InvoiceType InvoiceType
	ClientID    snowflake.ID
	AfterID     snowflake.ID
	Limit       int
}

// SessionBilling is the billing-relevant view of a session.
type SessionBilling struct {
	SessionID   snowflake.ID
	ClientID    snowflake.ID
	SessionDate time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertLineItems(ctx context.Context, db *gorm.DB, items []InvoiceLineItem) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindSingleBySession(ctx context.Context, db *gorm.DB, orgID, sessionID snowflake.ID) (*Invoice, error)
	FindBatch(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID, period string) (*Invoice, error)
	FindByProviderInvoiceID(ctx context.Context, db *gorm.DB, provider, providerInvoiceID string) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	UpdateTotals(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	MarkSent(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error)

	ListLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceLineItem, error)
	ListLineItemsBySession(ctx context.Context, db *gorm.DB, orgID, sessionID snowflake.ID) ([]InvoiceLineItem, error)
	CountLineItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	DeleteLineItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	// ListClientSessions returns billable sessions within [from, to) whose primary
	// payer is the client. Other attendees of a group session are never billed for it.
	ListClientSessions(ctx context.Context, db *gorm.DB, orgID, clientID snowflake.ID, from, to time.Time) ([]SessionBilling, error)
	// CoveredSessionIDs returns the subset of ids already on a single invoice or a line item.
	CoveredSessionIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) (map[snowflake.ID]struct{}, error)
	// ListUnbilledScholarshipSessions returns billable, uninvoiced sessions before the cutoff
	// whose service type is scholarship-eligible or whose primary client pays by one of methods.
	ListUnbilledScholarshipSessions(ctx context.Context, db *gorm.DB, orgID snowflake.ID, methods []string, before time.Time) ([]SessionBilling, error)
}
