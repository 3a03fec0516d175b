package domain

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/practicebooks/internal/client/domain"
	"github.com/smallbiznis/practicebooks/internal/config"
	"github.com/smallbiznis/practicebooks/internal/pricing"
	servicetypedomain "github.com/smallbiznis/practicebooks/internal/servicetype/domain"
)

type Attendee struct {
	ClientID      snowflake.ID               `json:"client_id"`
	Name          string                     `json:"name"`
	Email         string                     `json:"email"`
	PaymentMethod clientdomain.PaymentMethod `json:"payment_method"`
	Position      int                        `json:"position"`
}

// SessionDetail is a session with its relations resolved.
type SessionDetail struct {
	Session
	Attendees       []Attendee                                `json:"attendees"`
	ServiceType     servicetypedomain.ServiceType             `json:"service_type"`
	ContractorName  string                                    `json:"contractor_name"`
	ContractorEmail string                                    `json:"-"`
	Override        *servicetypedomain.ContractorRateOverride `json:"-"`
}

// PrimaryClient returns the attendee at the lowest position.
func (d *SessionDetail) PrimaryClient() (Attendee, bool) {
	if d == nil || len(d.Attendees) == 0 {
		return Attendee{}, false
	}
	primary := d.Attendees[0]
	for _, a := range d.Attendees[1:] {
		if a.Position < primary.Position {
			primary = a
		}
	}
	return primary, true
}

// IsScholarshipPayer reports whether the session is billed through monthly batch
// statements instead of a single invoice. Either the service type or the primary
// client's payment method can make it one.
func (d *SessionDetail) IsScholarshipPayer(cfg config.BillingConfig) bool {
	if d == nil {
		return false
	}
	if d.ServiceType.IsScholarshipEligible {
		return true
	}
	primary, ok := d.PrimaryClient()
	if !ok {
		return false
	}
	return cfg.IsScholarshipMethod(string(primary.PaymentMethod))
}

// Price runs the pricing calculator against the session's current service type.
func (d *SessionDetail) Price(payer pricing.PayerContext) (pricing.Result, error) {
	if d == nil {
		return pricing.Result{}, fmt.Errorf("%w: missing session", pricing.ErrInvalidRule)
	}
	return pricing.Calculate(pricing.Input{
		Rule:            d.ServiceType.Rule(),
		AttendeeCount:   len(d.Attendees),
		DurationMinutes: d.DurationMinutes,
		Override:        d.Override.PricingOverride(),
		Payer:           payer,
	})
}
