package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
)

// auditTargetParams are shorthands for a target_type/target_id pair.
var auditTargetParams = []struct {
	param      string
	targetType string
}{
	{"session_id", "session"},
	{"invoice_id", "invoice"},
	{"client_id", "client"},
}

// ListAuditLogs filters by action, actor type and target. A target may be given as
// target_type/target_id or through one of the session_id, invoice_id or
// client_id shorthands.
func (s *Server) ListAuditLogs(c *gin.Context) {
	pageSize, err := queryPageSize(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	targetType := strings.TrimSpace(c.Query("target_type"))
	targetID := strings.TrimSpace(c.Query("target_id"))
	for _, p := range auditTargetParams {
		raw := strings.TrimSpace(c.Query(p.param))
		if raw == "" {
			continue
		}
		if err := checkQueryID(p.param, raw); err != nil {
			AbortWithError(c, err)
			return
		}
		targetType, targetID = p.targetType, raw
		break
	}

	resp, err := s.auditSvc.List(c.Request.Context(), orgIDFromGin(c), auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(c.Query("page_token")),
			PageSize:  int(pageSize),
		},
		Action:     strings.TrimSpace(c.Query("action")),
		ActorType:  strings.TrimSpace(c.Query("actor_type")),
		TargetType: targetType,
		TargetID:   targetID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
