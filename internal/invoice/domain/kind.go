package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Kind is the type-specific half of an invoice.
type Kind interface {
	Type() InvoiceType
	isKind()
}

type SingleInvoice struct {
	SessionID snowflake.ID
}

func (SingleInvoice) Type() InvoiceType { return InvoiceTypeSingle }
func (SingleInvoice) isKind()           {}

type BatchInvoice struct {
	BillingPeriod BillingPeriod
	LineItems     []InvoiceLineItem
}

func (BatchInvoice) Type() InvoiceType { return InvoiceTypeBatch }
func (BatchInvoice) isKind()           {}

// Variant resolves the stored row into its typed form. Rows that violate the
// single/batch shape are reported as ErrMalformedInvoice.
func (i *Invoice) Variant() (Kind, error) {
	switch i.InvoiceType {
	case InvoiceTypeSingle:
		if i.SessionID == nil || *i.SessionID == 0 || i.BillingPeriod != nil {
			return nil, fmt.Errorf("%w: single invoice %s", ErrMalformedInvoice, i.ID)
		}
		return SingleInvoice{SessionID: *i.SessionID}, nil
	case InvoiceTypeBatch:
		if i.SessionID != nil || i.BillingPeriod == nil {
			return nil, fmt.Errorf("%w: batch invoice %s", ErrMalformedInvoice, i.ID)
		}
		period, err := ParseBillingPeriod(*i.BillingPeriod)
		if err != nil {
			return nil, fmt.Errorf("%w: batch invoice %s", ErrMalformedInvoice, i.ID)
		}
		return BatchInvoice{BillingPeriod: period, LineItems: i.LineItems}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedInvoice, i.InvoiceType)
	}
}

// BillingPeriod is a calendar month, rendered as YYYY-MM.
type BillingPeriod struct {
	Year  int
	Month time.Month
}

func ParseBillingPeriod(value string) (BillingPeriod, error) {
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return BillingPeriod{}, ErrInvalidBillingPeriod
	}
	return BillingPeriod{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodOf returns the billing period containing t, in t's location.
func PeriodOf(t time.Time) BillingPeriod {
	return BillingPeriod{Year: t.Year(), Month: t.Month()}
}

func (p BillingPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p BillingPeriod) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Range returns [first day, first day of next month) in loc.
func (p BillingPeriod) Range(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
