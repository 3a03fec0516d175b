package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/organization/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/option"
	"github.com/smallbiznis/practicebooks/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func NewRepository() domain.Repository {
	return &repo{}
}

func store(db *gorm.DB) repository.Repository[domain.Organization] {
	return repository.ProvideStore[domain.Organization](db)
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return store(db).Create(ctx, org)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	return store(db).FindOne(ctx, &domain.Organization{ID: id})
}

func (r *repo) UpdateBatchSettings(ctx context.Context, db *gorm.DB, org *domain.Organization) error {
	return store(db).Update(ctx, org.ID, map[string]any{
		"timezone_name":           org.TimezoneName,
		"batch_invoicing_enabled": org.BatchInvoicingEnabled,
		"batch_billing_days":      org.BatchBillingDays,
		"invoice_due_days":        org.InvoiceDueDays,
		"updated_at":              org.UpdatedAt,
	})
}

func (r *repo) ListBatchEnabled(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]*domain.Organization, error) {
	return store(db).Find(ctx, &domain.Organization{},
		option.WithWhere("batch_invoicing_enabled = ?", true),
		option.WithIDAfter(afterID),
		option.WithSortBy("id", "asc"),
		option.WithLimit(limit),
	)
}
