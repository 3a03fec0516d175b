package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// EventRecord stores each provider webhook once so redeliveries are idempotent.
type EventRecord struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	OrgID             snowflake.ID   `json:"org_id" gorm:"not null;index"`
	Provider          string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID   string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType         string         `json:"event_type" gorm:"type:text;not null"`
	ProviderInvoiceID string         `json:"provider_invoice_id" gorm:"type:text;not null;index"`
	Payload           datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt       *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeInvoiceSent   = "invoice_sent"
	EventTypeInvoicePaid   = "invoice_paid"
	EventTypeInvoiceFailed = "invoice_failed"
)

// InvoiceStatusEvent is the canonical status change reported by a provider.
type InvoiceStatusEvent struct {
	Provider          string     `json:"-"`
	ProviderEventID   string     `json:"event_id"`
	ProviderInvoiceID string     `json:"provider_invoice_id"`
	Type              string     `json:"type"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	OccurredAt        time.Time  `json:"occurred_at"`
	RawPayload        []byte     `json:"-"`
}

// SendInvoiceRequest carries the final amount of an invoice to the provider.
type SendInvoiceRequest struct {
	Amount         decimal.Decimal
	Description    string
	DueDate        time.Time
	RecipientEmail string
	ReferenceID    string
}

type SendInvoiceResult struct {
	ProviderInvoiceID string
	PaymentURL        string
}
