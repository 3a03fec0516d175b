// Package domain contains the session model and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Session is one billable event delivered by a contractor to one or more clients.
type Session struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID `gorm:"not null;index:idx_sessions_org_date,priority:1" json:"organization_id"`
	ContractorID    snowflake.ID `gorm:"not null;index" json:"contractor_id"`
	ServiceTypeID   snowflake.ID `gorm:"not null;index" json:"service_type_id"`
	SessionDate     time.Time    `gorm:"not null;index:idx_sessions_org_date,priority:2" json:"session_date"`
	DurationMinutes int          `gorm:"not null" json:"duration_minutes"`
	Status          Status       `gorm:"type:text;not null;default:'draft';index" json:"status"`
	RejectionReason *string      `gorm:"type:text" json:"rejection_reason,omitempty"`
	Notes           string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy       *string      `json:"created_by,omitempty"`
	SubmittedAt     *time.Time   `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	RejectedAt      *time.Time   `json:"rejected_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

// SessionAttendee links a client to a session. Position 0 is the primary payer.
type SessionAttendee struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"organization_id"`
	SessionID snowflake.ID `gorm:"not null;uniqueIndex:ux_session_attendee,priority:1" json:"session_id"`
	ClientID  snowflake.ID `gorm:"not null;uniqueIndex:ux_session_attendee,priority:2;index" json:"client_id"`
	Position  int          `gorm:"not null" json:"position"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (SessionAttendee) TableName() string { return "session_attendees" }
