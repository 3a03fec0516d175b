package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	"github.com/smallbiznis/practicebooks/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, orgID snowflake.ID, object, action string) error {
	if orgID == 0 {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	actor, ok := orgcontext.ActorFromContext(ctx)
	if !ok {
		return ErrInvalidActor
	}
	roleName, err := roleFor(actor.Role)
	if err != nil {
		return err
	}

	subject := actorSubject(actor)
	domain := fmt.Sprintf("org:%s", orgID.String())
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, orgID, object, action)
		return ErrForbidden
	}
	return nil
}

func roleFor(role string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleStaff:
		return "role:" + RoleStaff, nil
	case RoleContractor:
		return "role:" + RoleContractor, nil
	case RoleSystem:
		return "role:" + RoleSystem, nil
	default:
		return "", ErrInvalidActor
	}
}

func actorSubject(actor orgcontext.Actor) string {
	if actor.ID == "" {
		return actor.Role
	}
	return fmt.Sprintf("%s:%s", actor.Role, actor.ID)
}

// ensureGrouping keeps exactly one role link per subject and org.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, orgID snowflake.ID, object, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, orgID, "authorization.denied", "authorization", object, map[string]any{
		"object": object,
		"action": action,
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	staff := "role:" + RoleStaff
	contractor := "role:" + RoleContractor
	system := "role:" + RoleSystem

	policies := [][]string{
		{staff, ObjectSession, ActionSessionView},
		{staff, ObjectSession, ActionSessionCreate},
		{staff, ObjectSession, ActionSessionSubmit},
		{staff, ObjectSession, ActionSessionApprove},
		{staff, ObjectSession, ActionSessionReject},
		{staff, ObjectSession, ActionSessionCancel},
		{staff, ObjectSession, ActionSessionDelete},
		{staff, ObjectSession, ActionSessionNoShow},
		{staff, ObjectInvoice, ActionInvoiceView},
		{staff, ObjectInvoice, ActionInvoiceSend},
		{staff, ObjectBatchInvoice, ActionBatchInvoiceGenerate},
		{staff, ObjectSweep, ActionSweepRun},
		{staff, ObjectServiceType, ActionServiceTypeView},
		{staff, ObjectServiceType, ActionServiceTypeManage},
		{staff, ObjectClient, ActionClientView},
		{staff, ObjectClient, ActionClientManage},
		{staff, ObjectContractor, ActionContractorView},
		{staff, ObjectContractor, ActionContractorManage},
		{staff, ObjectOrganization, ActionOrganizationManage},
		{staff, ObjectAuditLog, ActionAuditLogView},

		// Contractors log their own work; approval stays with staff.
		{contractor, ObjectSession, ActionSessionView},
		{contractor, ObjectSession, ActionSessionCreate},
		{contractor, ObjectSession, ActionSessionSubmit},
		{contractor, ObjectSession, ActionSessionCancel},
		{contractor, ObjectServiceType, ActionServiceTypeView},
		{contractor, ObjectClient, ActionClientView},

		{system, ObjectSweep, ActionSweepRun},
		{system, ObjectBatchInvoice, ActionBatchInvoiceGenerate},
		{system, ObjectInvoice, ActionInvoiceView},
		{system, ObjectSession, ActionSessionView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
