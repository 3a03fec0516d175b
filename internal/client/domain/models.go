package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PaymentMethod string

const (
	PaymentMethodSelfPay     PaymentMethod = "self_pay"
	PaymentMethodInsurance   PaymentMethod = "insurance"
	PaymentMethodScholarship PaymentMethod = "scholarship"
)

type Client struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID         snowflake.ID      `gorm:"not null;index" json:"organization_id"`
	Name          string            `gorm:"not null" json:"name"`
	Email         string            `gorm:"not null" json:"email"`
	PaymentMethod PaymentMethod     `gorm:"column:payment_method;type:text;not null;default:'self_pay'" json:"payment_method"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }
