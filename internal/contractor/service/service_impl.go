package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/practicebooks/internal/contractor/domain"
	"github.com/smallbiznis/practicebooks/internal/orgcontext"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
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
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("contractor.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateContractorRequest) (domain.Contractor, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Contractor{}, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Contractor{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Contractor{}, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	contractor := domain.Contractor{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, &contractor); err != nil {
		return domain.Contractor{}, err
	}
	return contractor, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Contractor, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Contractor{}, domain.ErrInvalidOrganization
	}
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Contractor{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, orgID, parsed)
	if err != nil {
		return domain.Contractor{}, err
	}
	if item == nil {
		return domain.Contractor{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) (domain.ListContractorResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListContractorResponse{}, domain.ErrInvalidOrganization
	}

	var afterID snowflake.ID
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return domain.ListContractorResponse{}, domain.ErrInvalidPageToken
	}
	if cursor != nil {
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListContractorResponse{}, domain.ErrInvalidPageToken
		}
	}

	items, err := s.repo.List(ctx, s.db, orgID, afterID, page.Limit()+1)
	if err != nil {
		return domain.ListContractorResponse{}, err
	}
	items, info := pagination.Page(items, page.Limit(), func(c *domain.Contractor) string {
		return c.ID.String()
	})

	resp := domain.ListContractorResponse{PageInfo: info, Contractors: make([]domain.Contractor, 0, len(items))}
	for _, item := range items {
		resp.Contractors = append(resp.Contractors, *item)
	}
	return resp, nil
}
