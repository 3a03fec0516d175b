package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type UpsertServiceTypeRequest struct {
	Name                  string           `json:"name" validate:"required,max=120"`
	BaseRate              decimal.Decimal  `json:"base_rate"`
	PerPersonRate         decimal.Decimal  `json:"per_person_rate"`
	CommissionPercent     decimal.Decimal  `json:"commission_percent"`
	RentPercent           decimal.Decimal  `json:"rent_percent"`
	ContractorCap         *decimal.Decimal `json:"contractor_cap"`
	IsScholarshipEligible bool             `json:"is_scholarship_eligible"`
	ScholarshipRate       *decimal.Decimal `json:"scholarship_rate"`
}

type SetOverrideRequest struct {
	ContractorID      string           `json:"contractor_id" validate:"required"`
	ServiceTypeID     string           `json:"service_type_id" validate:"required"`
	BaseRate          *decimal.Decimal `json:"base_rate"`
	PerPersonRate     *decimal.Decimal `json:"per_person_rate"`
	CommissionPercent *decimal.Decimal `json:"commission_percent"`
	ContractorCap     *decimal.Decimal `json:"contractor_cap"`
}

type Service interface {
	Create(ctx context.Context, req UpsertServiceTypeRequest) (*ServiceType, error)
	Update(ctx context.Context, id string, req UpsertServiceTypeRequest) (*ServiceType, error)
	Archive(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*ServiceType, error)
	List(ctx context.Context, includeArchived bool) ([]*ServiceType, error)
	SetOverride(ctx context.Context, req SetOverrideRequest) (*ContractorRateOverride, error)
	ClearOverride(ctx context.Context, contractorID, serviceTypeID string) error
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidRule         = errors.New("invalid_pricing_rule")
	ErrArchived            = errors.New("service_type_archived")
	ErrNotFound            = errors.New("service_type_not_found")
)
