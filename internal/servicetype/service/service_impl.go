package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/practicebooks/internal/orgcontext"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	"github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	validate *validator.Validate
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("servicetype.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		validate: validator.New(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.UpsertServiceTypeRequest) (*domain.ServiceType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	st := &domain.ServiceType{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		CreatedAt: now,
	}
	apply(st, req, now)

	if err := s.repo.Insert(ctx, s.db, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Update replaces the pricing template. Sessions already priced keep their snapshot.
func (s *Service) Update(ctx context.Context, id string, req domain.UpsertServiceTypeRequest) (*domain.ServiceType, error) {
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Archived {
		return nil, domain.ErrArchived
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	apply(st, req, time.Now().UTC())
	if err := s.repo.Update(ctx, s.db, st); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.log.Info("service type updated",
		zap.String("service_type_id", st.ID.String()),
		zap.String("base_rate", st.BaseRate.String()),
	)
	return st, nil
}

func (s *Service) Archive(ctx context.Context, id string) error {
	st, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if st.Archived {
		return nil
	}
	st.Archived = true
	st.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, s.db, st)
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.ServiceType, error) {
	return s.load(ctx, id)
}

func (s *Service) List(ctx context.Context, includeArchived bool) ([]*domain.ServiceType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.List(ctx, s.db, orgID, includeArchived)
}

func (s *Service) SetOverride(ctx context.Context, req domain.SetOverrideRequest) (*domain.ContractorRateOverride, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrInvalidID
	}
	st, err := s.load(ctx, req.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	contractorID, err := parseID(req.ContractorID)
	if err != nil {
		return nil, err
	}

	override := pricing.Override{
		BaseRate:          req.BaseRate,
		PerPersonRate:     req.PerPersonRate,
		CommissionPercent: req.CommissionPercent,
		ContractorCap:     req.ContractorCap,
	}
	// The override must still produce a valid rule once merged.
	if _, err := pricing.Calculate(pricing.Input{Rule: st.Rule(), AttendeeCount: 1, Override: &override}); err != nil {
		return nil, domain.ErrInvalidRule
	}

	now := time.Now().UTC()
	o := &domain.ContractorRateOverride{
		ID:                s.genID.Generate(),
		OrgID:             st.OrgID,
		ContractorID:      contractorID,
		ServiceTypeID:     st.ID,
		BaseRate:          toNull(req.BaseRate),
		PerPersonRate:     toNull(req.PerPersonRate),
		CommissionPercent: toNull(req.CommissionPercent),
		ContractorCap:     toNull(req.ContractorCap),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.UpsertOverride(ctx, s.db, o); err != nil {
		return nil, err
	}
	return s.repo.FindOverride(ctx, s.db, st.OrgID, contractorID, st.ID)
}

func (s *Service) ClearOverride(ctx context.Context, contractorID, serviceTypeID string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	cID, err := parseID(contractorID)
	if err != nil {
		return err
	}
	stID, err := parseID(serviceTypeID)
	if err != nil {
		return err
	}
	return s.repo.DeleteOverride(ctx, s.db, orgID, cID, stID)
}

func (s *Service) load(ctx context.Context, id string) (*domain.ServiceType, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	stID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	st, err := s.repo.FindByID(ctx, s.db, orgID, stID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, domain.ErrNotFound
	}
	return st, nil
}

func (s *Service) validateRequest(req domain.UpsertServiceTypeRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return domain.ErrInvalidName
	}
	rule := pricing.Rule{
		BaseRate:          req.BaseRate,
		PerPersonRate:     req.PerPersonRate,
		CommissionPercent: req.CommissionPercent,
		RentPercent:       req.RentPercent,
		ContractorCap:     req.ContractorCap,
		ScholarshipRate:   req.ScholarshipRate,
	}
	if err := pricing.ValidateRule(rule); err != nil {
		return domain.ErrInvalidRule
	}
	return nil
}

func apply(st *domain.ServiceType, req domain.UpsertServiceTypeRequest, now time.Time) {
	st.Name = strings.TrimSpace(req.Name)
	st.BaseRate = req.BaseRate.Round(2)
	st.PerPersonRate = req.PerPersonRate.Round(2)
	st.CommissionPercent = req.CommissionPercent.Round(2)
	st.RentPercent = req.RentPercent.Round(2)
	st.ContractorCap = toNull(req.ContractorCap)
	st.IsScholarshipEligible = req.IsScholarshipEligible
	st.ScholarshipRate = toNull(req.ScholarshipRate)
	st.UpdatedAt = now
}

func toNull(v *decimal.Decimal) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(v.Round(2))
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
