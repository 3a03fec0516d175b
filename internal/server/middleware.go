package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	"github.com/smallbiznis/practicebooks/internal/observability/logger"
	obscontext "github.com/smallbiznis/practicebooks/internal/observability/context"
	"github.com/smallbiznis/practicebooks/internal/orgcontext"
	"go.uber.org/zap"
)

const (
	HeaderOrg        = "X-Org-ID"
	HeaderActorRole  = "X-Actor-Role"
	HeaderActorID    = "X-Actor-ID"
	contextOrgIDKey  = "org_id"
	contextActorRole = "actor_role"
)

// ActorContext resolves the caller from the upstream gateway headers. Credentials
// are checked before requests reach this service.
func (s *Server) ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole)))
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))

		switch role {
		case authorization.RoleStaff, authorization.RoleContractor:
		case authorization.RoleSystem:
			// System actors are internal to the process and never come from outside.
			AbortWithError(c, ErrForbidden)
			return
		default:
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if role == authorization.RoleContractor && actorID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithActor(c.Request.Context(), orgcontext.Actor{Role: role, ID: actorID})
		ctx = obscontext.WithActor(ctx, role, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextActorRole, role)
		c.Next()
	}
}

// OrgContext scopes the request to the organization named by X-Org-ID.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := s.orgIDFromRequest(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextOrgIDKey, orgID)
		c.Next()
	}
}

func (s *Server) orgIDFromRequest(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
	if raw == "" {
		return 0, ErrOrgRequired
	}
	orgID, err := snowflake.ParseString(raw)
	if err != nil || orgID == 0 {
		return 0, newValidationError("organization_id", "invalid_organization", "invalid organization id")
	}
	return orgID, nil
}

func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrOrgRequired)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), orgID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// WebhookRateLimit throttles provider callbacks per provider. Limiter failures
// fail open so a redis outage does not drop payments on the floor.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.webhookLimiter == nil {
			c.Next()
			return
		}

		provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
		ctx := c.Request.Context()
		result, err := s.webhookLimiter.Allow(ctx, provider)
		if err != nil {
			logger.FromContext(ctx).Warn("webhook rate limit check failed",
				zap.String("provider", provider),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("webhook rate limit exceeded", zap.String("provider", provider))
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func orgIDFromGin(c *gin.Context) snowflake.ID {
	orgID, _ := orgcontext.OrgIDFromContext(c.Request.Context())
	return orgID
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+strings.ReplaceAll(name, "_", " "))
	}
	return id, nil
}
