package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	obscontext "github.com/smallbiznis/practicebooks/internal/observability/context"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
)

const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook acknowledges every event the provider may stop retrying:
// applied events and redeliveries of events already recorded.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(body) > maxWebhookBodyBytes {
		AbortWithError(c, newValidationError("body", "payload_too_large", "webhook payload is too large"))
		return
	}

	// Changes made while applying the event are attributed to the provider.
	ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeProvider), provider)

	err = s.paymentSvc.IngestWebhook(ctx, provider, body, c.Request.Header)
	if err != nil && !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
