/*
rules.go - Deposit/withdrawal rule evaluation

PURPOSE:
  Computes what a single rule contributes to an account in a single
  period. The projection engine calls this once per rule per step; the
  aggregation layer reuses the same primitives for year figures.

NORMALIZATION:
  A rule's Amount is stated per its own Period. Evaluated month-by-month,
  a year-period amount contributes 1/12 each month; summed across a full
  year that is exactly the stated amount, so toggling between month and
  year views never double counts. One-shot rules are not normalized: they
  post their full amount in the single period equal to their start date.

EVALUATION ORDER:
  Per period: (1) interest, (2) deposits, (3) withdrawals in list order.
  The ordering only matters for take-interest withdrawals, which consume
  the interest figure computed in phase 1.

TAX:
  TaxRate applies to the gross withdrawal. The balance reduces by gross;
  the income series records gross minus tax.

SEE ALSO:
  - projection.go: The per-period driver
*/
package plan

import (
	"github.com/shopspring/decimal"
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// Evaluator computes per-period rule contributions. It is stateless apart
// from the resolver and global-rate source it reads through.
type Evaluator struct {
	Resolver   DateResolver
	GlobalRate func() decimal.Decimal // annual percent, read live
}

func NewEvaluator(store *Store) *Evaluator {
	return &Evaluator{Resolver: store, GlobalRate: store.GlobalGrowthRate}
}

// normalizedMonthly converts a rule amount to its per-month contribution.
func normalizedMonthly(amount decimal.Decimal, period PeriodUnit) decimal.Decimal {
	if period == PerYear {
		return amount.Div(twelve)
	}
	return amount
}

// DepositAt returns the deposit's contribution at a month key. Zero when
// the rule is inactive.
func (e *Evaluator) DepositAt(d *Deposit, t Key) decimal.Decimal {
	if !d.ActiveAt(t, e.Resolver) {
		return decimal.Zero
	}
	if !d.Repeating {
		// One-shot: the whole amount posts in its single period.
		return d.Amount
	}
	return normalizedMonthly(d.Amount, d.Period)
}

// DepositForYear returns the deposit's total contribution across a year,
// equal to the sum of its twelve monthly contributions.
func (e *Evaluator) DepositForYear(d *Deposit, year Key) decimal.Decimal {
	total := decimal.Zero
	for _, m := range MonthsOfYear(year) {
		total = total.Add(e.DepositAt(d, m))
	}
	return total
}

// WithdrawalContext carries the balance-path figures a withdrawal may
// depend on at one step.
type WithdrawalContext struct {
	// Balance at the start of the period, after interest was applied.
	Balance decimal.Decimal

	// Interest posted this period (consumed by take-interest rules).
	Interest decimal.Decimal

	// StaticBase is the balance captured when a static-percentage rule
	// first became active. The projection engine captures it once per
	// rule per run and feeds it back on every later step.
	StaticBase decimal.Decimal
}

// GrossAt returns the gross amount a withdrawal removes at a month key.
// Zero when inactive. Tax is not applied here; see Net.
func (e *Evaluator) GrossAt(w *Withdrawal, t Key, ctx WithdrawalContext) decimal.Decimal {
	if !w.ActiveAt(t, e.Resolver) {
		return decimal.Zero
	}
	rate := e.withdrawalRate(w)
	switch w.Type {
	case WithdrawFixedPerMonth:
		return rate
	case WithdrawFixedPerYear:
		if !w.Repeating {
			return rate
		}
		return rate.Div(twelve)
	case WithdrawPercentage:
		return e.percentageOf(w, ctx.Balance, rate)
	case WithdrawStaticPercentage:
		return e.percentageOf(w, ctx.StaticBase, rate)
	case WithdrawTakeInterest:
		return ctx.Interest
	default:
		return decimal.Zero
	}
}

// percentageOf applies a percentage rate to a base, normalized per the
// rule's period when evaluated monthly.
func (e *Evaluator) percentageOf(w *Withdrawal, base, rate decimal.Decimal) decimal.Decimal {
	gross := base.Mul(rate).Div(hundred)
	if !w.Repeating {
		return gross
	}
	return normalizedMonthly(gross, w.Period)
}

// withdrawalRate resolves the rule's amount, falling back to the global
// growth rate when no amount is set.
func (e *Evaluator) withdrawalRate(w *Withdrawal) decimal.Decimal {
	if w.Amount != nil {
		return *w.Amount
	}
	return e.GlobalRate()
}

// Tax splits a gross withdrawal into the tax taken and the net income.
func Tax(w *Withdrawal, gross decimal.Decimal) (tax, income decimal.Decimal) {
	tax = gross.Mul(w.TaxRate).Div(hundred)
	return tax, gross.Sub(tax)
}
