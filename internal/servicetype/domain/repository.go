package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, st *ServiceType) error
	Update(ctx context.Context, db *gorm.DB, st *ServiceType) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ServiceType, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, includeArchived bool) ([]*ServiceType, error)

	UpsertOverride(ctx context.Context, db *gorm.DB, o *ContractorRateOverride) error
	FindOverride(ctx context.Context, db *gorm.DB, orgID, contractorID, serviceTypeID snowflake.ID) (*ContractorRateOverride, error)
	DeleteOverride(ctx context.Context, db *gorm.DB, orgID, contractorID, serviceTypeID snowflake.ID) error
}
