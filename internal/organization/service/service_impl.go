package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/practicebooks/internal/clock"
	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/organization/domain"
	"github.com/smallbiznis/practicebooks/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock                 `optional:"true"`
	Billing *config.BillingConfigHolder `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	validate *validator.Validate
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &service{
		db:       p.DB,
		log:      p.Log.Named("organization.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    clk,
		billing:  p.Billing,
		validate: validator.New(),
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, translateValidation(err)
	}

	timezoneName, err := normalizeTimezone(req.Timezone)
	if err != nil {
		return nil, err
	}

	billing := s.billing.Get()
	dueDays := billing.InvoiceDueDays
	if req.InvoiceDueDays != nil {
		dueDays = *req.InvoiceDueDays
	}
	days := req.BatchBillingDays
	if req.BatchInvoicingEnabled && len(days) == 0 {
		days = append([]int(nil), billing.DefaultBatchDays...)
	}

	now := s.clock.Now()
	org := &domain.Organization{
		ID:                    s.genID.Generate(),
		Name:                  name,
		Slug:                  slug.Make(name),
		TimezoneName:          timezoneName,
		BatchInvoicingEnabled: req.BatchInvoicingEnabled,
		BatchBillingDays:      datatypes.JSONSlice[int](days),
		InvoiceDueDays:        dueDays,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = s.repo.Insert(ctx, s.db, org)
	if err != nil && db.IsDuplicateKeyErr(err) {
		// Slug collision; suffix with the id so the name stays readable.
		org.Slug = slug.Make(name + " " + org.ID.Base36())
		err = s.repo.Insert(ctx, s.db, org)
	}
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.Bool("batch_invoicing_enabled", org.BatchInvoicingEnabled),
	)
	return org, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	org, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) UpdateBatchSettings(ctx context.Context, id snowflake.ID, req domain.UpdateBatchSettingsRequest) (*domain.Organization, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, translateValidation(err)
	}

	org, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.BatchInvoicingEnabled != nil {
		org.BatchInvoicingEnabled = *req.BatchInvoicingEnabled
	}
	if req.BatchBillingDays != nil {
		org.BatchBillingDays = datatypes.JSONSlice[int](req.BatchBillingDays)
	}
	if org.BatchInvoicingEnabled && len(org.BatchBillingDays) == 0 {
		org.BatchBillingDays = datatypes.JSONSlice[int](s.billing.Get().DefaultBatchDays)
	}
	if req.InvoiceDueDays != nil {
		org.InvoiceDueDays = *req.InvoiceDueDays
	}
	if strings.TrimSpace(req.Timezone) != "" {
		tz, err := normalizeTimezone(req.Timezone)
		if err != nil {
			return nil, err
		}
		org.TimezoneName = tz
	}
	org.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateBatchSettings(ctx, s.db, org); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return org, nil
}

func (s *service) ListBatchEnabled(ctx context.Context, afterID snowflake.ID, limit int) ([]*domain.Organization, error) {
	if limit <= 0 {
		limit = s.billing.Get().SweepOrgBatchSize
	}
	return s.repo.ListBatchEnabled(ctx, s.db, afterID, limit)
}

func normalizeTimezone(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "UTC", nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return "", domain.ErrInvalidTimezone
	}
	return name, nil
}

func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].StructField() {
	case "Name":
		return domain.ErrInvalidName
	case "BatchBillingDays":
		return domain.ErrInvalidBillingDay
	case "InvoiceDueDays":
		return domain.ErrInvalidDueDays
	default:
		return err
	}
}
