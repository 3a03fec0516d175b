package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/contractor/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/option"
	"github.com/smallbiznis/practicebooks/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, contractor *domain.Contractor) error {
	return repository.ProvideStore[domain.Contractor](db).Create(ctx, contractor)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Contractor, error) {
	return repository.ProvideStore[domain.Contractor](db).FindOne(ctx, &domain.Contractor{ID: id, OrgID: orgID})
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, afterID snowflake.ID, limit int) ([]*domain.Contractor, error) {
	return repository.ProvideStore[domain.Contractor](db).Find(ctx, &domain.Contractor{OrgID: orgID},
		option.WithIDAfter(afterID),
		option.WithSortBy("id", "asc"),
		option.WithLimit(limit),
	)
}
