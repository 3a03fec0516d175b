package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	"github.com/smallbiznis/practicebooks/internal/scheduler"
)

type generateBatchInvoiceRequest struct {
	BillingPeriod string `json:"billing_period"`
}

type runBatchSweepRequest struct {
	IgnoreBillingDay bool `json:"ignore_billing_day"`
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), orgIDFromGin(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

// SendInvoice hands a pending invoice to the payment provider. Batch invoices
// go out this way once staff have reviewed them.
func (s *Server) SendInvoice(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.invoiceSvc.SendInvoice(c.Request.Context(), orgIDFromGin(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GenerateBatchInvoice(c *gin.Context) {
	clientID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req generateBatchInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	period, err := invoicedomain.ParseBillingPeriod(strings.TrimSpace(req.BillingPeriod))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.invoiceSvc.GenerateBatchInvoice(c.Request.Context(), orgIDFromGin(c), clientID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

// RunBatchSweep runs the batch sweep for the caller's organization right away.
func (s *Server) RunBatchSweep(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var req runBatchSweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	summary, err := s.scheduler.RunBatchSweep(c.Request.Context(), scheduler.SweepOptions{
		OrgID:            orgIDFromGin(c),
		IgnoreBillingDay: req.IgnoreBillingDay,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
