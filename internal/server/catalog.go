package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
)

// -------- Clients --------

func (s *Server) CreateClient(c *gin.Context) {
	var req clientdomain.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.clientSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListClients(c *gin.Context) {
	pageSize, err := queryPageSize(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.clientSvc.List(c.Request.Context(), clientdomain.ListClientRequest{
		PageToken:     strings.TrimSpace(c.Query("page_token")),
		PageSize:      pageSize,
		Name:          strings.TrimSpace(c.Query("name")),
		Email:         strings.TrimSpace(c.Query("email")),
		PaymentMethod: strings.TrimSpace(c.Query("payment_method")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Clients, "page_info": resp.PageInfo})
}

func (s *Server) GetClientByID(c *gin.Context) {
	item, err := s.clientSvc.GetByID(c.Request.Context(), clientdomain.GetClientRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// -------- Contractors --------

func (s *Server) CreateContractor(c *gin.Context) {
	var req contractordomain.CreateContractorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.contractorSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListContractors(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.contractorSvc.List(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Contractors, "page_info": resp.PageInfo})
}

func (s *Server) GetContractorByID(c *gin.Context) {
	item, err := s.contractorSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// -------- Service Types --------

func (s *Server) CreateServiceType(c *gin.Context) {
	var req servicetypedomain.UpsertServiceTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.serviceTypeSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

// UpdateServiceType changes the template used for future sessions. Sessions
// already priced keep their snapshot.
func (s *Server) UpdateServiceType(c *gin.Context) {
	var req servicetypedomain.UpsertServiceTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.serviceTypeSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ArchiveServiceType(c *gin.Context) {
	if err := s.serviceTypeSvc.Archive(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

func (s *Server) GetServiceTypeByID(c *gin.Context) {
	item, err := s.serviceTypeSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListServiceTypes(c *gin.Context) {
	includeArchived, err := queryBool(c, "include_archived")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.serviceTypeSvc.List(c.Request.Context(), includeArchived)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) SetRateOverride(c *gin.Context) {
	var req servicetypedomain.SetOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.serviceTypeSvc.SetOverride(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ClearRateOverride(c *gin.Context) {
	err := s.serviceTypeSvc.ClearOverride(
		c.Request.Context(),
		strings.TrimSpace(c.Param("contractor_id")),
		strings.TrimSpace(c.Param("service_type_id")),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
