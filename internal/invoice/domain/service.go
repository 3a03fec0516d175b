package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
)

type ListInvoiceRequest struct {
	pagination.Pagination
	Status      string `form:"status"`
	InvoiceType string `form:"invoice_type"`
	ClientID    string `form:"client_id"`
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// SingleInvoiceInput describes the pending invoice created when a session is submitted.
type SingleInvoiceInput struct {
	OrgID       snowflake.ID
	SessionID   snowflake.ID
	ClientID    snowflake.ID
	SessionDate time.Time
	Description string
	Pricing     pricing.Result
}

// BatchGroup is one (client, month) bucket of unbilled scholarship sessions.
type BatchGroup struct {
	ClientID      snowflake.ID
	BillingPeriod BillingPeriod
	SessionIDs    []snowflake.ID
}

// ProviderStatusUpdate is a status change reported by the payment provider.
type ProviderStatusUpdate struct {
	Provider          string
	ProviderInvoiceID string
	Status            InvoiceStatus
	PaidAt            *time.Time
}

type Service interface {
	CreateSingleInvoice(ctx context.Context, in SingleInvoiceInput) (*Invoice, error)
	// DeleteSingleSessionInvoice removes the pending single invoice for a session.
	// It returns the deleted invoice, nil when there was none, or ErrInvoiceFrozen.
	DeleteSingleSessionInvoice(ctx context.Context, orgID, sessionID snowflake.ID) (*Invoice, error)
	DetachSessionFromBatchInvoices(ctx context.Context, orgID, sessionID snowflake.ID) (DetachReport, error)
	// FrozenBatchInvoices returns the batch invoices listing the session that can no
	// longer be changed.
	FrozenBatchInvoices(ctx context.Context, orgID, sessionID snowflake.ID) ([]snowflake.ID, error)

	GenerateBatchInvoice(ctx context.Context, orgID, clientID snowflake.ID, period BillingPeriod) (*Invoice, error)
	ListBatchGroups(ctx context.Context, orgID snowflake.ID, before time.Time, loc *time.Location) ([]BatchGroup, error)

	SendSessionInvoice(ctx context.Context, orgID, sessionID snowflake.ID) (*Invoice, error)
	SendInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) (*Invoice, error)
	ApplyProviderStatus(ctx context.Context, update ProviderStatusUpdate) (*Invoice, error)

	GetByID(ctx context.Context, orgID, invoiceID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, orgID snowflake.ID, req ListInvoiceRequest) (ListInvoiceResponse, error)
}
