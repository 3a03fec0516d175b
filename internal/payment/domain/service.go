package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Provider hands finalized invoices to an external payment collaborator.
type Provider interface {
	Name() string
	SendInvoice(ctx context.Context, req SendInvoiceRequest) (SendInvoiceResult, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id, orgID snowflake.ID, processedAt time.Time) error
}

// Service ingests provider webhooks.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

var (
	ErrProviderNotFound      = errors.New("payment_provider_not_found")
	ErrInvalidProvider       = errors.New("invalid_payment_provider")
	ErrInvalidPayload        = errors.New("invalid_payment_payload")
	ErrInvalidSignature      = errors.New("invalid_payment_signature")
	ErrInvalidEvent          = errors.New("invalid_payment_event")
	ErrEventIgnored          = errors.New("payment_event_ignored")
	ErrEventAlreadyProcessed = errors.New("payment_event_already_processed")
	ErrInvalidRequest        = errors.New("invalid_send_invoice_request")
)
