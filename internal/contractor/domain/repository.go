package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, contractor *Contractor) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Contractor, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, afterID snowflake.ID, limit int) ([]*Contractor, error)
}
