// Package pricing splits a session fee between the practice, the contractor and
// facility rent. Everything here is pure; callers persist the Result as a snapshot.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidRule = errors.New("invalid_pricing_rule")

type PayerContext string

const (
	PayerStandard    PayerContext = "standard"
	PayerScholarship PayerContext = "scholarship"
)

var hundred = decimal.NewFromInt(100)

// Rule is the pricing template of a service type.
type Rule struct {
	BaseRate          decimal.Decimal
	PerPersonRate     decimal.Decimal
	CommissionPercent decimal.Decimal
	RentPercent       decimal.Decimal
	ContractorCap     *decimal.Decimal
	ScholarshipRate   *decimal.Decimal
}

// Override replaces individual rule fields for one contractor. Nil fields keep the rule value.
type Override struct {
	BaseRate          *decimal.Decimal
	PerPersonRate     *decimal.Decimal
	CommissionPercent *decimal.Decimal
	ContractorCap     *decimal.Decimal
}

type Input struct {
	Rule            Rule
	AttendeeCount   int
	DurationMinutes int
	Override        *Override
	Payer           PayerContext
}

type Result struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PracticeCut   decimal.Decimal `json:"practice_cut"`
	ContractorPay decimal.Decimal `json:"contractor_pay"`
	RentAmount    decimal.Decimal `json:"rent_amount"`
	// Capped is set when the contractor cap moved money into the practice cut.
	Capped bool `json:"capped"`
}

// Add returns the field-wise sum of two results.
func (r Result) Add(other Result) Result {
	return Result{
		TotalAmount:   r.TotalAmount.Add(other.TotalAmount),
		PracticeCut:   r.PracticeCut.Add(other.PracticeCut),
		ContractorPay: r.ContractorPay.Add(other.ContractorPay),
		RentAmount:    r.RentAmount.Add(other.RentAmount),
		Capped:        r.Capped || other.Capped,
	}
}

// Balanced reports whether the three components add up to the total to the cent.
func (r Result) Balanced() bool {
	sum := r.PracticeCut.Add(r.ContractorPay).Add(r.RentAmount)
	return sum.Round(2).Equal(r.TotalAmount.Round(2))
}

// Calculate prices a session.
//
// Contractor pay is the remainder after the rounded practice and rent cuts, so the
// split always sums to the total even when a percentage produces a fraction of a cent.
func Calculate(in Input) (Result, error) {
	rule := effectiveRule(in)
	if err := validate(rule); err != nil {
		return Result{}, err
	}

	attendees := in.AttendeeCount
	if attendees < 1 {
		attendees = 1
	}
	additional := decimal.NewFromInt(int64(attendees - 1))

	total := rule.BaseRate.Add(rule.PerPersonRate.Mul(additional)).Round(2)
	rent := total.Mul(rule.RentPercent).Div(hundred).Round(2)
	practice := total.Mul(rule.CommissionPercent).Div(hundred).Round(2)
	contractor := total.Sub(practice).Sub(rent)

	capped := false
	if rule.ContractorCap != nil && contractor.GreaterThan(*rule.ContractorCap) {
		excess := contractor.Sub(*rule.ContractorCap)
		contractor = *rule.ContractorCap
		practice = practice.Add(excess)
		capped = true
	}

	return Result{
		TotalAmount:   total,
		PracticeCut:   practice.Round(2),
		ContractorPay: contractor.Round(2),
		RentAmount:    rent,
		Capped:        capped,
	}, nil
}

func effectiveRule(in Input) Rule {
	rule := in.Rule
	if o := in.Override; o != nil {
		if o.BaseRate != nil {
			rule.BaseRate = *o.BaseRate
		}
		if o.PerPersonRate != nil {
			rule.PerPersonRate = *o.PerPersonRate
		}
		if o.CommissionPercent != nil {
			rule.CommissionPercent = *o.CommissionPercent
		}
		if o.ContractorCap != nil {
			rule.ContractorCap = o.ContractorCap
		}
	}
	if in.Payer == PayerScholarship && rule.ScholarshipRate != nil {
		rule.BaseRate = *rule.ScholarshipRate
	}
	return rule
}

func validate(rule Rule) error {
	if rule.BaseRate.IsNegative() {
		return fmt.Errorf("%w: base rate is negative", ErrInvalidRule)
	}
	if rule.PerPersonRate.IsNegative() {
		return fmt.Errorf("%w: per-person rate is negative", ErrInvalidRule)
	}
	if !isPercent(rule.CommissionPercent) {
		return fmt.Errorf("%w: commission percent %s outside 0-100", ErrInvalidRule, rule.CommissionPercent)
	}
	if !isPercent(rule.RentPercent) {
		return fmt.Errorf("%w: rent percent %s outside 0-100", ErrInvalidRule, rule.RentPercent)
	}
	if rule.CommissionPercent.Add(rule.RentPercent).GreaterThan(hundred) {
		return fmt.Errorf("%w: commission and rent exceed 100 percent", ErrInvalidRule)
	}
	if rule.ContractorCap != nil && rule.ContractorCap.IsNegative() {
		return fmt.Errorf("%w: contractor cap is negative", ErrInvalidRule)
	}
	if rule.ScholarshipRate != nil && rule.ScholarshipRate.IsNegative() {
		return fmt.Errorf("%w: scholarship rate is negative", ErrInvalidRule)
	}
	return nil
}

func isPercent(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(hundred)
}

// ValidateRule exposes rule validation for callers that store rules.
func ValidateRule(rule Rule) error {
	return validate(rule)
}
