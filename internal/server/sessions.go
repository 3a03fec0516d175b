package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
)

type rejectSessionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CreateSession(c *gin.Context) {
	var req sessiondomain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.sessionSvc.Create(c.Request.Context(), orgIDFromGin(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": detail})
}

func (s *Server) GetSession(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	detail, err := s.sessionSvc.Get(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) ListSessions(c *gin.Context) {
	var req sessiondomain.ListSessionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := checkQueryID("contractor_id", req.ContractorID); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := checkQueryID("client_id", req.ClientID); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.sessionSvc.List(c.Request.Context(), orgIDFromGin(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Sessions, "page_info": resp.PageInfo})
}

func (s *Server) SubmitSession(c *gin.Context) {
	s.transitionSession(c, s.sessionSvc.Submit)
}

func (s *Server) ApproveSession(c *gin.Context) {
	s.transitionSession(c, s.sessionSvc.Approve)
}

func (s *Server) CancelSession(c *gin.Context) {
	s.transitionSession(c, s.sessionSvc.Cancel)
}

func (s *Server) MarkSessionNoShow(c *gin.Context) {
	s.transitionSession(c, s.sessionSvc.MarkNoShow)
}

func (s *Server) DeleteSession(c *gin.Context) {
	s.transitionSession(c, s.sessionSvc.Delete)
}

func (s *Server) RejectSession(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req rejectSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.sessionSvc.Reject(c.Request.Context(), orgIDFromGin(c), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type sessionTransition func(ctx context.Context, orgID, sessionID snowflake.ID) (*sessiondomain.TransitionResult, error)

func (s *Server) transitionSession(c *gin.Context, op sessionTransition) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := op(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
