package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func groupRule() Rule {
	return Rule{
		BaseRate:          dec("50"),
		PerPersonRate:     dec("20"),
		CommissionPercent: dec("30"),
		RentPercent:       dec("0"),
		ContractorCap:     decPtr("105"),
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestCalculateUncappedGroup(t *testing.T) {
	res, err := Calculate(Input{Rule: groupRule(), AttendeeCount: 4})
	require.NoError(t, err)

	assertMoney(t, "110", res.TotalAmount)
	assertMoney(t, "33", res.PracticeCut)
	assertMoney(t, "77", res.ContractorPay)
	assertMoney(t, "0", res.RentAmount)
	assert.False(t, res.Capped)
}

func TestCalculateCappedGroup(t *testing.T) {
	res, err := Calculate(Input{Rule: groupRule(), AttendeeCount: 10})
	require.NoError(t, err)

	assertMoney(t, "230", res.TotalAmount)
	assertMoney(t, "105", res.ContractorPay)
	assertMoney(t, "125", res.PracticeCut)
	assertMoney(t, "0", res.RentAmount)
	assert.True(t, res.Capped)
}

func TestCapEqualToPayIsNotApplied(t *testing.T) {
	rule := groupRule()
	rule.ContractorCap = decPtr("77")

	res, err := Calculate(Input{Rule: rule, AttendeeCount: 4})
	require.NoError(t, err)
	assertMoney(t, "77", res.ContractorPay)
	assertMoney(t, "33", res.PracticeCut)
	assert.False(t, res.Capped)
}

func TestCapNeverReducesRent(t *testing.T) {
	rule := groupRule()
	rule.RentPercent = dec("10")
	rule.ContractorCap = decPtr("40")

	uncapped := rule
	uncapped.ContractorCap = nil
	before, err := Calculate(Input{Rule: uncapped, AttendeeCount: 4})
	require.NoError(t, err)

	res, err := Calculate(Input{Rule: rule, AttendeeCount: 4})
	require.NoError(t, err)

	assertMoney(t, "11", res.RentAmount)
	assertMoney(t, before.RentAmount.String(), res.RentAmount)
	assertMoney(t, "40", res.ContractorPay)
	excess := before.ContractorPay.Sub(dec("40"))
	assertMoney(t, before.PracticeCut.Add(excess).String(), res.PracticeCut)
	assert.True(t, res.Balanced())
}

func TestAttendeeCountClampedToOne(t *testing.T) {
	zero, err := Calculate(Input{Rule: groupRule(), AttendeeCount: 0})
	require.NoError(t, err)
	one, err := Calculate(Input{Rule: groupRule(), AttendeeCount: 1})
	require.NoError(t, err)

	assert.Equal(t, one, zero)
	assertMoney(t, "50", zero.TotalAmount)
}

func TestSplitAlwaysBalances(t *testing.T) {
	rules := []Rule{
		groupRule(),
		{BaseRate: dec("33.33"), PerPersonRate: dec("7.77"), CommissionPercent: dec("33.3"), RentPercent: dec("12.5")},
		{BaseRate: dec("99.99"), PerPersonRate: dec("0.01"), CommissionPercent: dec("17"), RentPercent: dec("3"), ContractorCap: decPtr("50")},
		{BaseRate: dec("0"), PerPersonRate: dec("0"), CommissionPercent: dec("0"), RentPercent: dec("0")},
		{BaseRate: dec("120"), PerPersonRate: dec("15.55"), CommissionPercent: dec("100"), RentPercent: dec("0")},
	}
	for _, rule := range rules {
		for attendees := 0; attendees <= 12; attendees++ {
			res, err := Calculate(Input{Rule: rule, AttendeeCount: attendees})
			require.NoError(t, err)
			assert.True(t, res.Balanced(), "rule %+v attendees %d: %+v", rule, attendees, res)
			assert.False(t, res.PracticeCut.IsNegative())
			assert.False(t, res.ContractorPay.IsNegative())
			assert.False(t, res.RentAmount.IsNegative())
			if rule.ContractorCap != nil {
				assert.True(t, res.ContractorPay.LessThanOrEqual(*rule.ContractorCap))
			}
		}
	}
}

func TestOverrideAndScholarshipRate(t *testing.T) {
	rule := groupRule()
	rule.ScholarshipRate = decPtr("20")

	res, err := Calculate(Input{Rule: rule, AttendeeCount: 1, Payer: PayerScholarship})
	require.NoError(t, err)
	assertMoney(t, "20", res.TotalAmount)

	res, err = Calculate(Input{Rule: rule, AttendeeCount: 1, Payer: PayerStandard})
	require.NoError(t, err)
	assertMoney(t, "50", res.TotalAmount)

	res, err = Calculate(Input{
		Rule:          rule,
		AttendeeCount: 2,
		Override:      &Override{BaseRate: decPtr("80"), CommissionPercent: decPtr("50")},
	})
	require.NoError(t, err)
	assertMoney(t, "100", res.TotalAmount)
	assertMoney(t, "50", res.PracticeCut)
	assertMoney(t, "50", res.ContractorPay)
}

func TestInvalidRules(t *testing.T) {
	cases := map[string]Rule{
		"negative base":    {BaseRate: dec("-1")},
		"commission > 100": {CommissionPercent: dec("101")},
		"negative rent":    {RentPercent: dec("-5")},
		"sum > 100":        {CommissionPercent: dec("60"), RentPercent: dec("41")},
		"negative cap":     {ContractorCap: decPtr("-1")},
	}
	for name, rule := range cases {
		_, err := Calculate(Input{Rule: rule, AttendeeCount: 1})
		assert.ErrorIs(t, err, ErrInvalidRule, name)
	}
}

func TestResultAdd(t *testing.T) {
	a, _ := Calculate(Input{Rule: groupRule(), AttendeeCount: 4})
	b, _ := Calculate(Input{Rule: groupRule(), AttendeeCount: 10})

	sum := a.Add(b)
	assertMoney(t, "340", sum.TotalAmount)
	assertMoney(t, "158", sum.PracticeCut)
	assertMoney(t, "182", sum.ContractorPay)
	assert.True(t, sum.Capped)
	assert.True(t, sum.Balanced())
}
