package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidOrganization     = errors.New("invalid_organization")
	ErrInvalidInvoiceID        = errors.New("invalid_invoice_id")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidBillingPeriod    = errors.New("invalid_billing_period")
	ErrInvalidStatus           = errors.New("invalid_invoice_status")
	ErrInvoiceNotFound         = errors.New("invoice_not_found")
	ErrInvoiceFrozen           = errors.New("invoice_frozen")
	ErrInvoiceNotPending       = errors.New("invoice_not_pending")
	ErrSingleInvoiceExists     = errors.New("single_invoice_exists")
	ErrInvalidStatusTransition = errors.New("invalid_invoice_status_transition")
	ErrMalformedInvoice        = errors.New("malformed_invoice")
	ErrBatchAlreadyExists      = errors.New("batch_invoice_already_exists")
	ErrNoEligibleSessions      = errors.New("no_eligible_sessions")
	ErrAllAlreadyInvoiced      = errors.New("all_sessions_already_invoiced")
	ErrBatchPersistence        = errors.New("batch_invoice_persistence_error")
)

type BatchFailureReason string

const (
	ReasonAlreadyExists      BatchFailureReason = "already-exists"
	ReasonNoEligibleSessions BatchFailureReason = "no-eligible-sessions"
	ReasonAllInvoiced        BatchFailureReason = "all-already-invoiced"
	ReasonPersistence        BatchFailureReason = "persistence-error"
)

func (r BatchFailureReason) sentinel() error {
	switch r {
	case ReasonAlreadyExists:
		return ErrBatchAlreadyExists
	case ReasonNoEligibleSessions:
		return ErrNoEligibleSessions
	case ReasonAllInvoiced:
		return ErrAllAlreadyInvoiced
	default:
		return ErrBatchPersistence
	}
}

// BatchError is the structured failure of a batch invoice generation.
// errors.Is matches both the reason's sentinel and the underlying cause.
type BatchError struct {
	Reason        BatchFailureReason
	ClientID      snowflake.ID
	BillingPeriod BillingPeriod
	Err           error
}

func NewBatchError(reason BatchFailureReason, clientID snowflake.ID, period BillingPeriod, cause error) *BatchError {
	return &BatchError{Reason: reason, ClientID: clientID, BillingPeriod: period, Err: cause}
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("batch invoice %s for client %s: %s", e.BillingPeriod, e.ClientID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BatchError) Unwrap() []error {
	errs := []error{e.Reason.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// BatchReason extracts the failure reason from err, if it is a batch failure.
func BatchReason(err error) (BatchFailureReason, bool) {
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		return batchErr.Reason, true
	}
	return "", false
}

// DetachReport summarizes stripping a session from its batch invoices.
type DetachReport struct {
	Processed       int            `json:"processed"`
	Skipped         int            `json:"skipped"`
	Failed          int            `json:"failed"`
	DeletedInvoices []snowflake.ID `json:"deleted_invoices,omitempty"`
	SkippedInvoices []snowflake.ID `json:"skipped_invoices,omitempty"`
	Err             error          `json:"-"`
}

// OK reports whether every line item was either detached or intentionally skipped.
func (r DetachReport) OK() bool {
	return r.Failed == 0
}
