package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	"github.com/smallbiznis/practicebooks/internal/clock"
	"github.com/smallbiznis/practicebooks/internal/config"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/notification"
	obsmetrics "github.com/smallbiznis/practicebooks/internal/observability/metrics"
	"github.com/smallbiznis/practicebooks/internal/orgcontext"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	"github.com/smallbiznis/practicebooks/internal/session/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Cfg             config.Config
	Repo            domain.Repository
	ClientRepo      clientdomain.Repository
	ContractorRepo  contractordomain.Repository
	ServiceTypeRepo servicetypedomain.Repository
	InvoiceSvc      invoicedomain.Service
	Billing         *config.BillingConfigHolder `optional:"true"`
	Notifier        notification.Notifier       `optional:"true"`
	AuditSvc        auditdomain.Service         `optional:"true"`
	Metrics         *obsmetrics.Metrics         `optional:"true"`
	Clock           clock.Clock                 `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	validate *validator.Validate
	cfg      config.Config

	repo            domain.Repository
	clientRepo      clientdomain.Repository
	contractorRepo  contractordomain.Repository
	serviceTypeRepo servicetypedomain.Repository
	invoiceSvc      invoicedomain.Service
	billing         *config.BillingConfigHolder
	notifier        notification.Notifier
	auditSvc        auditdomain.Service
	metrics         *obsmetrics.Metrics
	clock           clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("session.service"),
		genID:    p.GenID,
		validate: validator.New(),
		cfg:      p.Cfg,

		repo:            p.Repo,
		clientRepo:      p.ClientRepo,
		contractorRepo:  p.ContractorRepo,
		serviceTypeRepo: p.ServiceTypeRepo,
		invoiceSvc:      p.InvoiceSvc,
		billing:         p.Billing,
		notifier:        p.Notifier,
		auditSvc:        p.AuditSvc,
		metrics:         p.Metrics,
		clock:           clk,
	}
}

func (s *Service) Create(ctx context.Context, orgID snowflake.ID, req domain.CreateSessionRequest) (*domain.SessionDetail, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, translateValidation(err)
	}

	contractorID, err := parseID(req.ContractorID, domain.ErrInvalidContractor)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, contractorID); err != nil {
		return nil, err
	}
	contractor, err := s.contractorRepo.FindByID(ctx, s.db, orgID, contractorID)
	if err != nil {
		return nil, err
	}
	if contractor == nil {
		return nil, domain.ErrInvalidContractor
	}
	if !contractor.Active {
		return nil, domain.ErrInactiveContractor
	}

	serviceTypeID, err := parseID(req.ServiceTypeID, domain.ErrInvalidServiceType)
	if err != nil {
		return nil, err
	}
	serviceType, err := s.serviceTypeRepo.FindByID(ctx, s.db, orgID, serviceTypeID)
	if err != nil {
		return nil, err
	}
	if serviceType == nil {
		return nil, domain.ErrInvalidServiceType
	}
	if serviceType.Archived {
		return nil, domain.ErrServiceTypeArchived
	}

	now := s.clock.Now()
	sessionID := s.genID.Generate()
	seen := make(map[snowflake.ID]struct{}, len(req.ClientIDs))
	attendees := make([]domain.SessionAttendee, 0, len(req.ClientIDs))
	for position, raw := range req.ClientIDs {
		clientID, err := parseID(raw, domain.ErrInvalidClient)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[clientID]; dup {
			return nil, domain.ErrDuplicateAttendee
		}
		seen[clientID] = struct{}{}

		client, err := s.clientRepo.FindByID(ctx, s.db, orgID, clientID)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, domain.ErrInvalidClient
		}
		attendees = append(attendees, domain.SessionAttendee{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			SessionID: sessionID,
			ClientID:  clientID,
			Position:  position,
			CreatedAt: now,
		})
	}

	session := &domain.Session{
		ID:              sessionID,
		OrgID:           orgID,
		ContractorID:    contractorID,
		ServiceTypeID:   serviceTypeID,
		SessionDate:     req.SessionDate.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          domain.StatusDraft,
		Notes:           strings.TrimSpace(req.Notes),
		CreatedBy:       actorRef(ctx),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, session, attendees); err != nil {
		return nil, err
	}

	s.audit(ctx, orgID, "session.created", session, map[string]any{
		"attendees": len(attendees),
	})
	return s.repo.LoadDetail(ctx, s.db, orgID, sessionID)
}

func (s *Service) Get(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.SessionDetail, error) {
	return s.load(ctx, orgID, sessionID)
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, req domain.ListSessionRequest) (domain.ListSessionResponse, error) {
	if orgID == 0 {
		return domain.ListSessionResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{
		OrgID: orgID,
		From:  req.From,
		To:    req.To,
		Limit: req.Limit() + 1,
	}
	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = domain.Status(status)
	}
	if raw := strings.TrimSpace(req.ContractorID); raw != "" {
		id, err := parseID(raw, domain.ErrInvalidContractor)
		if err != nil {
			return domain.ListSessionResponse{}, err
		}
		filter.ContractorID = id
	}
	if raw := strings.TrimSpace(req.ClientID); raw != "" {
		id, err := parseID(raw, domain.ErrInvalidClient)
		if err != nil {
			return domain.ListSessionResponse{}, err
		}
		filter.ClientID = id
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListSessionResponse{}, err
	}
	if cursor != nil && cursor.ID != "" {
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListSessionResponse{}, pagination.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListSessionResponse{}, err
	}
	items, info := pagination.Page(items, req.Limit(), func(session *domain.Session) string {
		return session.ID.String()
	})

	sessions := make([]domain.Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, *item)
	}
	return domain.ListSessionResponse{PageInfo: info, Sessions: sessions}, nil
}

func (s *Service) load(ctx context.Context, orgID, sessionID snowflake.ID) (*domain.SessionDetail, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if sessionID == 0 {
		return nil, domain.ErrInvalidSessionID
	}
	detail, err := s.repo.LoadDetail(ctx, s.db, orgID, sessionID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, domain.ErrNotFound
	}
	return detail, nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, session *domain.Session, metadata map[string]any) {
	if s.auditSvc == nil || session == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["status"] = string(session.Status)
	if err := s.auditSvc.AuditLog(ctx, orgID, action, "session", session.ID.String(), metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

// checkOwner keeps contractors to their own sessions. Staff and system actors pass.
func checkOwner(ctx context.Context, contractorID snowflake.ID) error {
	actor, ok := orgcontext.ActorFromContext(ctx)
	if !ok || actor.Role != authorization.RoleContractor {
		return nil
	}
	if actor.ID != contractorID.String() {
		return domain.ErrNotSessionOwner
	}
	return nil
}

func actorRef(ctx context.Context) *string {
	actor, ok := orgcontext.ActorFromContext(ctx)
	if !ok {
		return nil
	}
	ref := actor.Role
	if actor.ID != "" {
		ref += ":" + actor.ID
	}
	return &ref
}

func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrInvalidRequest
	}
	switch verrs[0].Field() {
	case "ContractorID":
		return domain.ErrInvalidContractor
	case "ServiceTypeID":
		return domain.ErrInvalidServiceType
	case "ClientIDs":
		return domain.ErrInvalidClient
	case "DurationMinutes":
		return domain.ErrInvalidDuration
	default:
		return domain.ErrInvalidRequest
	}
}
