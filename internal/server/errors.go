package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/practicebooks/internal/audit/domain"
	"github.com/smallbiznis/practicebooks/internal/authorization"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	contractordomain "github.com/smallbiznis/practicebooks/internal/contractor/domain"
	invoicedomain "github.com/smallbiznis/practicebooks/internal/invoice/domain"
	organizationdomain "github.com/smallbiznis/practicebooks/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/practicebooks/internal/payment/domain"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
	sessiondomain "github.com/smallbiznis/practicebooks/internal/session/domain"
	"github.com/smallbiznis/practicebooks/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Code    string            `json:"code,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrOrgRequired        = errors.New("organization_required")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fromFieldErrors(fieldErrs),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, sessiondomain.ErrNotSessionOwner):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Code:    rootCode(err),
		}
	case isBusinessRuleError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "business_rule_violation",
			Message: "request violates a business rule",
			Code:    rootCode(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the payload type and code for the request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func fromFieldErrors(fieldErrs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := toSnake(fe.Field())
		out = append(out, ValidationError{
			Field:   field,
			Code:    "invalid_" + field,
			Message: "failed " + fe.Tag() + " check",
		})
	}
	return out
}

func toSnake(value string) string {
	var b strings.Builder
	for i, r := range value {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrOrgRequired),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, pricing.ErrInvalidRule),
		errors.Is(err, authorization.ErrInvalidOrganization),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	case isSessionValidationError(err),
		isInvoiceValidationError(err),
		isOrganizationValidationError(err),
		isClientValidationError(err),
		isContractorValidationError(err),
		isServiceTypeValidationError(err),
		isAuditValidationError(err),
		isPaymentValidationError(err):
		return true
	default:
		return false
	}
}

func isSessionValidationError(err error) bool {
	switch {
	case errors.Is(err, sessiondomain.ErrInvalidOrganization),
		errors.Is(err, sessiondomain.ErrInvalidSessionID),
		errors.Is(err, sessiondomain.ErrInvalidRequest),
		errors.Is(err, sessiondomain.ErrInvalidContractor),
		errors.Is(err, sessiondomain.ErrInvalidServiceType),
		errors.Is(err, sessiondomain.ErrInvalidClient),
		errors.Is(err, sessiondomain.ErrDuplicateAttendee),
		errors.Is(err, sessiondomain.ErrInvalidDuration),
		errors.Is(err, sessiondomain.ErrReasonRequired):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidOrganization),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceID),
		errors.Is(err, invoicedomain.ErrInvalidClient),
		errors.Is(err, invoicedomain.ErrInvalidBillingPeriod),
		errors.Is(err, invoicedomain.ErrInvalidStatus):
		return true
	default:
		return false
	}
}

func isOrganizationValidationError(err error) bool {
	switch {
	case errors.Is(err, organizationdomain.ErrInvalidOrganization),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidTimezone),
		errors.Is(err, organizationdomain.ErrInvalidBillingDay),
		errors.Is(err, organizationdomain.ErrInvalidDueDays):
		return true
	default:
		return false
	}
}

func isClientValidationError(err error) bool {
	switch {
	case errors.Is(err, clientdomain.ErrInvalidOrganization),
		errors.Is(err, clientdomain.ErrInvalidName),
		errors.Is(err, clientdomain.ErrInvalidEmail),
		errors.Is(err, clientdomain.ErrInvalidPaymentMethod),
		errors.Is(err, clientdomain.ErrInvalidID),
		errors.Is(err, clientdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isContractorValidationError(err error) bool {
	switch {
	case errors.Is(err, contractordomain.ErrInvalidOrganization),
		errors.Is(err, contractordomain.ErrInvalidName),
		errors.Is(err, contractordomain.ErrInvalidEmail),
		errors.Is(err, contractordomain.ErrInvalidID),
		errors.Is(err, contractordomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isServiceTypeValidationError(err error) bool {
	switch {
	case errors.Is(err, servicetypedomain.ErrInvalidOrganization),
		errors.Is(err, servicetypedomain.ErrInvalidID),
		errors.Is(err, servicetypedomain.ErrInvalidName),
		errors.Is(err, servicetypedomain.ErrInvalidRule):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidActorType):
		return true
	default:
		return false
	}
}

func isPaymentValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, sessiondomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, organizationdomain.ErrNotFound),
		errors.Is(err, clientdomain.ErrNotFound),
		errors.Is(err, contractordomain.ErrNotFound),
		errors.Is(err, servicetypedomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, sessiondomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrInvoiceFrozen),
		errors.Is(err, invoicedomain.ErrSingleInvoiceExists),
		errors.Is(err, invoicedomain.ErrBatchAlreadyExists),
		errors.Is(err, invoicedomain.ErrInvalidStatusTransition),
		errors.Is(err, organizationdomain.ErrSlugTaken):
		return true
	default:
		return false
	}
}

func isBusinessRuleError(err error) bool {
	switch {
	case errors.Is(err, sessiondomain.ErrCleanupFailed),
		errors.Is(err, sessiondomain.ErrInactiveContractor),
		errors.Is(err, sessiondomain.ErrServiceTypeArchived),
		errors.Is(err, servicetypedomain.ErrArchived),
		errors.Is(err, invoicedomain.ErrInvoiceNotPending),
		errors.Is(err, invoicedomain.ErrNoEligibleSessions),
		errors.Is(err, invoicedomain.ErrAllAlreadyInvoiced),
		errors.Is(err, invoicedomain.ErrBatchPersistence):
		return true
	default:
		return false
	}
}

// rootCode picks the most specific known code for conflict and business rule payloads.
func rootCode(err error) string {
	if reason, ok := invoicedomain.BatchReason(err); ok {
		return string(reason)
	}
	for _, sentinel := range []error{
		sessiondomain.ErrInvalidTransition,
		sessiondomain.ErrCleanupFailed,
		sessiondomain.ErrInactiveContractor,
		sessiondomain.ErrServiceTypeArchived,
		servicetypedomain.ErrArchived,
		invoicedomain.ErrInvoiceFrozen,
		invoicedomain.ErrSingleInvoiceExists,
		invoicedomain.ErrInvalidStatusTransition,
		invoicedomain.ErrInvoiceNotPending,
		organizationdomain.ErrSlugTaken,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ""
}

func validationErrorCode(err error) string {
	for _, candidate := range []error{
		ErrInvalidRequest,
		sessiondomain.ErrInvalidRequest,
	} {
		if errors.Is(err, candidate) {
			return "invalid_request"
		}
	}
	for unwrapped := errors.Unwrap(err); unwrapped != nil; unwrapped = errors.Unwrap(unwrapped) {
		err = unwrapped
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "rejection_reason_required":
		return "a rejection reason is required"
	case "duplicate_attendee":
		return "a client may attend a session only once"
	default:
		return "invalid value"
	}
}
