package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleStaff      = "staff"
	RoleContractor = "contractor"
	RoleSystem     = "system"
)

const (
	ObjectSession      = "session"
	ObjectInvoice      = "invoice"
	ObjectBatchInvoice = "batch_invoice"
	ObjectSweep        = "batch_sweep"
	ObjectServiceType  = "service_type"
	ObjectClient       = "client"
	ObjectContractor   = "contractor"
	ObjectOrganization = "organization"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionSessionView    = "session.view"
	ActionSessionCreate  = "session.create"
	ActionSessionSubmit  = "session.submit"
	ActionSessionApprove = "session.approve"
	ActionSessionReject  = "session.reject"
	ActionSessionCancel  = "session.cancel"
	ActionSessionDelete  = "session.delete"
	ActionSessionNoShow  = "session.no_show"

	ActionInvoiceView = "invoice.view"
	ActionInvoiceSend = "invoice.send"

	ActionBatchInvoiceGenerate = "batch_invoice.generate"
	ActionSweepRun             = "batch_sweep.run"

	ActionServiceTypeView   = "service_type.view"
	ActionServiceTypeManage = "service_type.manage"
	ActionClientView        = "client.view"
	ActionClientManage      = "client.manage"
	ActionContractorView    = "contractor.view"
	ActionContractorManage  = "contractor.manage"

	ActionOrganizationManage = "organization.manage"
	ActionAuditLogView       = "audit_log.view"
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
)

// Service checks whether the actor carried in ctx may perform action on object.
type Service interface {
	Authorize(ctx context.Context, orgID snowflake.ID, object, action string) error
}
