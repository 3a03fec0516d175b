package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/practicebooks/internal/pricing"
)

// ServiceType is the pricing template applied when a session is priced. Editing it
// only affects sessions priced afterwards; invoices keep their own snapshot.
type ServiceType struct {
	ID                    snowflake.ID        `gorm:"primaryKey" json:"id"`
	OrgID                 snowflake.ID        `gorm:"not null;index" json:"organization_id"`
	Name                  string              `gorm:"not null" json:"name"`
	BaseRate              decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"base_rate"`
	PerPersonRate         decimal.Decimal     `gorm:"type:numeric(12,2);not null" json:"per_person_rate"`
	CommissionPercent     decimal.Decimal     `gorm:"type:numeric(5,2);not null" json:"commission_percent"`
	RentPercent           decimal.Decimal     `gorm:"type:numeric(5,2);not null" json:"rent_percent"`
	ContractorCap         decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"contractor_cap"`
	IsScholarshipEligible bool                `gorm:"not null;default:false" json:"is_scholarship_eligible"`
	ScholarshipRate       decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"scholarship_rate"`
	Archived              bool                `gorm:"not null;default:false" json:"archived"`
	CreatedAt             time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time           `gorm:"not null" json:"updated_at"`
}

func (ServiceType) TableName() string { return "service_types" }

// Rule converts the stored template into a pricing rule.
func (st ServiceType) Rule() pricing.Rule {
	return pricing.Rule{
		BaseRate:          st.BaseRate,
		PerPersonRate:     st.PerPersonRate,
		CommissionPercent: st.CommissionPercent,
		RentPercent:       st.RentPercent,
		ContractorCap:     nullable(st.ContractorCap),
		ScholarshipRate:   nullable(st.ScholarshipRate),
	}
}

// ContractorRateOverride adjusts a service type's pricing for one contractor.
type ContractorRateOverride struct {
	ID                snowflake.ID        `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID        `gorm:"not null;uniqueIndex:ux_rate_override_key,priority:1" json:"organization_id"`
	ContractorID      snowflake.ID        `gorm:"not null;uniqueIndex:ux_rate_override_key,priority:2" json:"contractor_id"`
	ServiceTypeID     snowflake.ID        `gorm:"not null;uniqueIndex:ux_rate_override_key,priority:3" json:"service_type_id"`
	BaseRate          decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"base_rate"`
	PerPersonRate     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"per_person_rate"`
	CommissionPercent decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"commission_percent"`
	ContractorCap     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"contractor_cap"`
	CreatedAt         time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"not null" json:"updated_at"`
}

func (ContractorRateOverride) TableName() string { return "contractor_rate_overrides" }

func (o *ContractorRateOverride) PricingOverride() *pricing.Override {
	if o == nil {
		return nil
	}
	return &pricing.Override{
		BaseRate:          nullable(o.BaseRate),
		PerPersonRate:     nullable(o.PerPersonRate),
		CommissionPercent: nullable(o.CommissionPercent),
		ContractorCap:     nullable(o.ContractorCap),
	}
}

func nullable(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	return &d
}
