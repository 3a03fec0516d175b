package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, org *Organization) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	UpdateBatchSettings(ctx context.Context, db *gorm.DB, org *Organization) error
	// ListBatchEnabled pages through organizations with batch invoicing on, ordered by id.
	ListBatchEnabled(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*Organization, error)
}
