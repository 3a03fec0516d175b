package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	OrgID        snowflake.ID
	Status       Status
	ContractorID snowflake.ID
	ClientID     snowflake.ID
	From         *time.Time
	To           *time.Time
	AfterID      snowflake.ID
	Limit        int
}

// StatusChange is written together with the new status.
type StatusChange struct {
	To              Status
	At              time.Time
	RejectionReason *string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, session *Session, attendees []SessionAttendee) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Session, error)
	LoadDetail(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*SessionDetail, error)
	// LoadDetails returns details in the order of ids, skipping unknown sessions.
	LoadDetails(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]*SessionDetail, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Session, error)
	// UpdateStatus applies change only while the session is still in one of from.
	UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, from []Status, change StatusChange) (bool, error)
	Delete(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) error
}
