package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	organizationdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
)

// CreateOrganization bootstraps a practice. Only staff may do it, and there is no
// org scope to check against yet.
func (s *Server) CreateOrganization(c *gin.Context) {
	if c.GetString(contextActorRole) != authorization.RoleStaff {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req organizationdomain.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.orgSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": org})
}

func (s *Server) GetOrganization(c *gin.Context) {
	org, err := s.orgSvc.GetByID(c.Request.Context(), orgIDFromGin(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) UpdateBatchSettings(c *gin.Context) {
	var req organizationdomain.UpdateBatchSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.orgSvc.UpdateBatchSettings(c.Request.Context(), orgIDFromGin(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}
