// Package domain contains persistence models for the org service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization represents a practice. Every client, session and invoice belongs to one.
type Organization struct {
	ID                    snowflake.ID             `gorm:"primaryKey" json:"id"`
	Name                  string                   `gorm:"type:text;not null" json:"name"`
	Slug                  string                   `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	TimezoneName          string                   `gorm:"column:timezone_name;type:text;not null;default:'UTC'" json:"timezone"`
	BatchInvoicingEnabled bool                     `gorm:"column:batch_invoicing_enabled;not null;default:false" json:"batch_invoicing_enabled"`
	BatchBillingDays      datatypes.JSONSlice[int] `gorm:"column:batch_billing_days;type:jsonb" json:"batch_billing_days"`
	InvoiceDueDays        int                      `gorm:"column:invoice_due_days;not null;default:14" json:"invoice_due_days"`
	Metadata              datatypes.JSONMap        `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt             time.Time                `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time                `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Location resolves the organization's timezone, falling back to UTC.
func (o Organization) Location() *time.Location {
	if o.TimezoneName == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.TimezoneName)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsBatchBillingDay reports whether now, in the org's timezone, is one of the
// configured billing days. Days past the end of a short month fire on its last day.
func (o Organization) IsBatchBillingDay(now time.Time) bool {
	if !o.BatchInvoicingEnabled {
		return false
	}
	local := now.In(o.Location())
	day := local.Day()
	lastDay := time.Date(local.Year(), local.Month()+1, 0, 0, 0, 0, 0, local.Location()).Day()
	for _, configured := range o.BatchBillingDays {
		if configured == day {
			return true
		}
		if configured > lastDay && day == lastDay {
			return true
		}
	}
	return false
}
