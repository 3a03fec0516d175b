package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateOrganizationRequest struct {
	Name                  string `json:"name" validate:"required,max=200"`
	Timezone              string `json:"timezone"`
	BatchInvoicingEnabled bool   `json:"batch_invoicing_enabled"`
	BatchBillingDays      []int  `json:"batch_billing_days" validate:"dive,gte=1,lte=31"`
	InvoiceDueDays        *int   `json:"invoice_due_days" validate:"omitempty,gte=0,lte=365"`
}

type UpdateBatchSettingsRequest struct {
	BatchInvoicingEnabled *bool  `json:"batch_invoicing_enabled"`
	BatchBillingDays      []int  `json:"batch_billing_days" validate:"omitempty,dive,gte=1,lte=31"`
	InvoiceDueDays        *int   `json:"invoice_due_days" validate:"omitempty,gte=0,lte=365"`
	Timezone              string `json:"timezone"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	UpdateBatchSettings(ctx context.Context, id snowflake.ID, req UpdateBatchSettingsRequest) (*Organization, error)
	ListBatchEnabled(ctx context.Context, afterID snowflake.ID, limit int) ([]*Organization, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidTimezone     = errors.New("invalid_timezone")
	ErrInvalidBillingDay   = errors.New("invalid_billing_day")
	ErrInvalidDueDays      = errors.New("invalid_due_days")
	ErrSlugTaken           = errors.New("slug_taken")
	ErrNotFound            = errors.New("organization_not_found")
)
