/*
aggregate.go - Derived rollups over per-account projections

PURPOSE:
  Pure read-side helpers consumed by tables and tooltips: totals across
  all accounts at a date, per-person income/tax breakdowns, and
  month -> year rollups.

ROLLUP SEMANTICS:
  Flows (deposits, withdrawals, interest, income, tax) sum across the
  twelve months of a calendar year. Balances are point-in-time, never
  additive: a year's balance is its December value.

SPARSITY:
  An account with no entry at a date contributes zero. Division guards
  return nil effective rates instead of NaN. Nothing here returns an
  error for an empty store - every function yields zeros.

  All functions are pure over the engine's memoized series, so identical
  inputs give identical outputs and upstream memoization stays valid.
*/
package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

type Aggregator struct {
	store  *Store
	engine *Engine
}

func NewAggregator(store *Store, engine *Engine) *Aggregator {
	return &Aggregator{store: store, engine: engine}
}

// =============================================================================
// POINT-IN-TIME TOTALS
// =============================================================================

// TotalBalanceAt sums every account's balance at a key. Year keys read
// as their December point, matching the year-rollup balance rule.
// Accounts with no entry at t contribute zero.
func (a *Aggregator) TotalBalanceAt(t Key) decimal.Decimal {
	t = t.LastMonth()
	total := decimal.Zero
	for _, acc := range a.store.Accounts() {
		p, ok, err := a.engine.At(acc.ID, t)
		if err != nil || !ok {
			continue
		}
		total = total.Add(p.Balance)
	}
	return total
}

// TotalIncomeAt sums net income (gross withdrawals minus tax) across all
// accounts at a key. Year keys read as their December point.
func (a *Aggregator) TotalIncomeAt(t Key) decimal.Decimal {
	t = t.LastMonth()
	total := decimal.Zero
	for _, acc := range a.store.Accounts() {
		p, ok, err := a.engine.At(acc.ID, t)
		if err != nil || !ok {
			continue
		}
		total = total.Add(p.Income)
	}
	return total
}

// =============================================================================
// PER-PERSON BREAKDOWN
// =============================================================================

// PersonIncome is one person's income figures for a period, attributed
// through the accounts they own.
type PersonIncome struct {
	PersonID    PersonID
	Name        string
	Withdrawals decimal.Decimal
	Tax         decimal.Decimal
	Income      decimal.Decimal

	// EffectiveTaxRate is tax/withdrawals as a percentage, nil when there
	// were no withdrawals (callers display empty, never NaN).
	EffectiveTaxRate *decimal.Decimal
}

// IncomeBreakdownAt computes each person's income at a key. Year keys
// read as their December point.
func (a *Aggregator) IncomeBreakdownAt(t Key) []PersonIncome {
	t = t.LastMonth()
	out := make([]PersonIncome, 0, len(a.store.People()))
	for _, person := range a.store.People() {
		row := PersonIncome{
			PersonID:    person.ID,
			Name:        person.Name,
			Withdrawals: decimal.Zero,
			Tax:         decimal.Zero,
			Income:      decimal.Zero,
		}
		for _, acc := range a.store.AccountsOwnedBy(person.ID) {
			p, ok, err := a.engine.At(acc.ID, t)
			if err != nil || !ok {
				continue
			}
			row.Withdrawals = row.Withdrawals.Add(p.Withdrawals)
			row.Tax = row.Tax.Add(p.Tax)
			row.Income = row.Income.Add(p.Income)
		}
		if !row.Withdrawals.IsZero() {
			rate := row.Tax.Div(row.Withdrawals).Mul(hundred)
			row.EffectiveTaxRate = &rate
		}
		out = append(out, row)
	}
	return out
}

// =============================================================================
// YEAR ROLLUPS
// =============================================================================

// YearRollup folds an account's twelve monthly points into one year row.
// Flows sum; the balance is the December value. Reports false when the
// year lies entirely outside the projected range.
func (a *Aggregator) YearRollup(accountID AccountID, year int) (Point, bool, error) {
	series, err := a.engine.Account(accountID)
	if err != nil {
		return Point{}, false, err
	}
	return rollupYear(series, year), yearInRange(series, year), nil
}

// TotalYearRollup folds all accounts into one year row.
func (a *Aggregator) TotalYearRollup(year int) Point {
	total := zeroPoint(YearKey(year))
	for _, acc := range a.store.Accounts() {
		series, err := a.engine.Account(acc.ID)
		if err != nil {
			continue
		}
		p := rollupYear(series, year)
		total.Balance = total.Balance.Add(p.Balance)
		total.Interest = total.Interest.Add(p.Interest)
		total.Deposits = total.Deposits.Add(p.Deposits)
		total.Withdrawals = total.Withdrawals.Add(p.Withdrawals)
		total.Income = total.Income.Add(p.Income)
		total.Tax = total.Tax.Add(p.Tax)
	}
	return total
}

// YearSeries materializes year rows for an inclusive year range, the
// shape yearly tables render directly.
func (a *Aggregator) YearSeries(accountID AccountID, fromYear, toYear int) ([]Point, error) {
	series, err := a.engine.Account(accountID)
	if err != nil {
		return nil, err
	}
	var rows []Point
	for y := fromYear; y <= toYear; y++ {
		if !yearInRange(series, y) {
			continue
		}
		rows = append(rows, rollupYear(series, y))
	}
	return rows, nil
}

func rollupYear(series *Series, year int) Point {
	row := zeroPoint(YearKey(year))
	for _, m := range MonthsOfYear(YearKey(year)) {
		p, ok := series.At(m)
		if !ok {
			continue
		}
		row.Interest = row.Interest.Add(p.Interest)
		row.Deposits = row.Deposits.Add(p.Deposits)
		row.Withdrawals = row.Withdrawals.Add(p.Withdrawals)
		row.Income = row.Income.Add(p.Income)
		row.Tax = row.Tax.Add(p.Tax)
		// Balance is point-in-time, not additive: keep the latest month
		// in range, which is December whenever December is projected.
		row.Balance = p.Balance
		row.Actual = p.Actual
	}
	return row
}

func yearInRange(series *Series, year int) bool {
	first := MonthKey(year, time.January)
	last := MonthKey(year, time.December)
	return !last.Before(series.Start()) && !first.After(series.End())
}
