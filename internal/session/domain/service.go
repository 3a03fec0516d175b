package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
)

type CreateSessionRequest struct {
	ContractorID    string    `json:"contractor_id" validate:"required"`
	ServiceTypeID   string    `json:"service_type_id" validate:"required"`
	ClientIDs       []string  `json:"client_ids" validate:"required,min=1,dive,required"`
	SessionDate     time.Time `json:"session_date" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=1,lte=1440"`
	Notes           string    `json:"notes" validate:"max=2000"`
}

type ListSessionRequest struct {
	pagination.Pagination
	Status       string     `form:"status"`
	ContractorID string     `form:"contractor_id"`
	ClientID     string     `form:"client_id"`
	From         *time.Time `form:"from" time_format:"2006-01-02"`
	To           *time.Time `form:"to" time_format:"2006-01-02"`
}

type ListSessionResponse struct {
	pagination.PageInfo
	Sessions []Session `json:"sessions"`
}

// TransitionResult reports what a lifecycle operation did beyond the status change.
type TransitionResult struct {
	Session  *Session                    `json:"session"`
	Invoice  *invoicedomain.Invoice      `json:"invoice,omitempty"`
	Detach   *invoicedomain.DetachReport `json:"detach,omitempty"`
	Warnings []string                    `json:"warnings,omitempty"`
}

type Service interface {
	Create(ctx context.Context, orgID snowflake.ID, req CreateSessionRequest) (*SessionDetail, error)
	Get(ctx context.Context, orgID, sessionID snowflake.ID) (*SessionDetail, error)
	List(ctx context.Context, orgID snowflake.ID, req ListSessionRequest) (ListSessionResponse, error)

	Submit(ctx context.Context, orgID, sessionID snowflake.ID) (*TransitionResult, error)
	Approve(ctx context.Context, orgID, sessionID snowflake.ID) (*TransitionResult, error)
	Reject(ctx context.Context, orgID, sessionID snowflake.ID, reason string) (*TransitionResult, error)
	Cancel(ctx context.Context, orgID, sessionID snowflake.ID) (*TransitionResult, error)
	MarkNoShow(ctx context.Context, orgID, sessionID snowflake.ID) (*TransitionResult, error)
	Delete(ctx context.Context, orgID, sessionID snowflake.ID) (*TransitionResult, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidSessionID    = errors.New("invalid_session_id")
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrInvalidContractor   = errors.New("invalid_contractor")
	ErrInactiveContractor  = errors.New("inactive_contractor")
	ErrInvalidServiceType  = errors.New("invalid_service_type")
	ErrServiceTypeArchived = errors.New("service_type_archived")
	ErrInvalidClient       = errors.New("invalid_client")
	ErrDuplicateAttendee   = errors.New("duplicate_attendee")
	ErrInvalidDuration     = errors.New("invalid_duration")
	ErrNotFound            = errors.New("session_not_found")
	ErrInvalidTransition   = errors.New("invalid_status_transition")
	ErrReasonRequired      = errors.New("rejection_reason_required")
	ErrCleanupFailed       = errors.New("invoice_cleanup_failed")
	ErrNotSessionOwner     = errors.New("not_session_owner")
)
