// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/practicebooks/internal/pricing"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// IsFrozen reports whether the invoice has left the practice and must not be altered.
func (s InvoiceStatus) IsFrozen() bool {
	return s == InvoiceStatusSent || s == InvoiceStatusPaid
}

type InvoiceType string

const (
	InvoiceTypeSingle InvoiceType = "single"
	InvoiceTypeBatch  InvoiceType = "batch"
)

// Invoice is either a single-session invoice or a monthly batch statement.
// Use Variant to work with the type-specific fields.
type Invoice struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoices_single_session,priority:1;uniqueIndex:ux_invoices_batch_period,priority:1" json:"organization_id"`
	ClientID          snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_invoices_batch_period,priority:2" json:"client_id"`
	InvoiceType       InvoiceType     `gorm:"type:text;not null;uniqueIndex:ux_invoices_batch_period,priority:4" json:"invoice_type"`
	SessionID         *snowflake.ID   `gorm:"uniqueIndex:ux_invoices_single_session,priority:2" json:"session_id,omitempty"`
	BillingPeriod     *string         `gorm:"type:text;uniqueIndex:ux_invoices_batch_period,priority:3" json:"billing_period,omitempty"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PracticeCut       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"practice_cut"`
	ContractorPay     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"contractor_pay"`
	RentAmount        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"rent_amount"`
	Status            InvoiceStatus   `gorm:"type:text;not null;default:'pending';index" json:"status"`
	Description       string          `gorm:"type:text" json:"description"`
	DueDate           time.Time       `gorm:"not null" json:"due_date"`
	PaymentProvider   *string         `gorm:"type:text" json:"payment_provider,omitempty"`
	ProviderInvoiceID *string         `gorm:"type:text;index" json:"provider_invoice_id,omitempty"`
	PaymentURL        *string         `gorm:"type:text" json:"payment_url,omitempty"`
	SentAt            *time.Time      `json:"sent_at,omitempty"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null" json:"updated_at"`

	LineItems []InvoiceLineItem `gorm:"-" json:"line_items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Totals returns the invoice's money fields as a pricing result.
func (i Invoice) Totals() pricing.Result {
	return pricing.Result{
		TotalAmount:   i.Amount,
		PracticeCut:   i.PracticeCut,
		ContractorPay: i.ContractorPay,
		RentAmount:    i.RentAmount,
	}
}

// InvoiceLineItem is one session on a batch invoice with its own pricing snapshot.
type InvoiceLineItem struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID    `gorm:"not null;index;uniqueIndex:ux_line_item_session,priority:1" json:"organization_id"`
	InvoiceID       snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	SessionID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_line_item_session,priority:2;index" json:"session_id"`
	Amount          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	PracticeCut     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"practice_cut"`
	ContractorPay   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"contractor_pay"`
	RentAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"rent_amount"`
	SessionDate     time.Time       `gorm:"not null" json:"session_date"`
	DurationMinutes int             `gorm:"not null" json:"duration_minutes"`
	ServiceName     string          `gorm:"type:text" json:"service_name"`
	ContractorName  string          `gorm:"type:text" json:"contractor_name"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

func (li InvoiceLineItem) Totals() pricing.Result {
	return pricing.Result{
		TotalAmount:   li.Amount,
		PracticeCut:   li.PracticeCut,
		ContractorPay: li.ContractorPay,
		RentAmount:    li.RentAmount,
	}
}
