/*
types.go - Domain entities

PURPOSE:
  Defines the entities the store owns: People, Accounts, recorded
  Balances, and Strategies with their nested Deposit/Withdrawal rules.
  All money values use decimal.Decimal; floats never carry currency.

OWNERSHIP:
  Store    owns People, Accounts, Strategies (top level)
  Account  owns its Balances
  Strategy owns its Deposits and Withdrawals (ordered)

  Cross references (Account -> Person, rule -> Account) are non-owning
  foreign keys resolved through the store's lookup tables.

SEE ALSO:
  - store.go: Collections, cascades, and referential integrity
  - rules.go: How Deposit/Withdrawal rules are evaluated
*/
package plan

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID string
type AccountID string
type BalanceID string
type StrategyID string
type RuleID string

// =============================================================================
// PERIOD - Rule and compounding granularity
// =============================================================================

type PeriodUnit string

const (
	PerMonth PeriodUnit = "month"
	PerYear  PeriodUnit = "year"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Person owns accounts by back-reference only.
type Person struct {
	ID          PersonID
	Name        string
	DateOfBirth Key // month key
}

// Account tracks a single bank or investment account.
//
// GrowthRate is an annual percentage. A nil rate means "track the global
// growth rate" - a live indirection re-read on every evaluation, not a
// default copied at creation time.
type Account struct {
	ID          AccountID
	Name        string
	OwnerID     PersonID
	GrowthRate  *decimal.Decimal
	Compounding PeriodUnit
}

// Balance is an actual recorded value for an account at a date. Recorded
// balances are authoritative: projections reproduce them exactly. At most
// one balance exists per (account, date) pair of the same granularity.
type Balance struct {
	ID        BalanceID
	AccountID AccountID
	Date      Key
	Value     decimal.Decimal
}

// Strategy is a named bundle of deposit and withdrawal rules. All
// strategies persist, but only the selected one drives projections.
type Strategy struct {
	ID          StrategyID
	Name        string
	Deposits    []*Deposit
	Withdrawals []*Withdrawal
}

// =============================================================================
// RULES
// =============================================================================

// Deposit is a recurring or one-off contribution to an account.
//
// A non-repeating deposit contributes its full amount in the single
// period equal to Start. A repeating deposit contributes every period
// from Start until End (nil End = open-ended), with Amount normalized
// to the evaluation granularity by Period.
//
// Hidden excludes the rule from visual indicators, never from computation.
type Deposit struct {
	ID        RuleID
	AccountID AccountID
	Amount    decimal.Decimal
	Start     ScheduleDate
	Repeating bool
	End       *ScheduleDate
	Period    PeriodUnit
	Hidden    bool
}

type WithdrawalType string

const (
	// WithdrawFixedPerMonth removes a fixed amount each month.
	WithdrawFixedPerMonth WithdrawalType = "fixed_per_month"

	// WithdrawFixedPerYear removes a fixed amount each year.
	WithdrawFixedPerYear WithdrawalType = "fixed_per_year"

	// WithdrawPercentage removes Amount% of the live balance each period.
	WithdrawPercentage WithdrawalType = "percentage"

	// WithdrawStaticPercentage removes Amount% of the balance as it stood
	// when the rule started. The base is captured once and never tracks
	// later balance movement.
	WithdrawStaticPercentage WithdrawalType = "static_percentage"

	// WithdrawTakeInterest removes exactly the interest earned in the
	// period, leaving principal untouched. It has no independent amount.
	WithdrawTakeInterest WithdrawalType = "take_interest"
)

// Withdrawal is a recurring or one-off removal from an account.
//
// A nil Amount means "use the global growth rate as the percentage".
// TaxRate is a flat percentage applied to the gross withdrawal: the
// balance reduces by the gross amount, while the derived income series
// records gross minus tax.
type Withdrawal struct {
	ID        RuleID
	AccountID AccountID
	Amount    *decimal.Decimal
	Type      WithdrawalType
	Start     ScheduleDate
	Repeating bool
	End       *ScheduleDate
	Period    PeriodUnit
	TaxRate   decimal.Decimal
	Hidden    bool
}

// =============================================================================
// SHARED RULE WINDOW
// =============================================================================

// ruleWindow is the activity predicate shared by both rule types:
// active at t iff t >= start, one-shot rules only at t == start,
// repeating rules until end (nil end = forever). All comparisons happen
// at month granularity; year-keyed dates pin to January.
func ruleWindow(start ScheduleDate, repeating bool, end *ScheduleDate, t Key, r DateResolver) bool {
	s := start.Resolve(r).FirstMonth()
	if t.Before(s) {
		return false
	}
	if !repeating {
		return t == s
	}
	if end == nil {
		return true
	}
	return t.BeforeOrEqual(end.Resolve(r).LastMonth())
}

func (d *Deposit) ActiveAt(t Key, r DateResolver) bool {
	return ruleWindow(d.Start, d.Repeating, d.End, t, r)
}

func (w *Withdrawal) ActiveAt(t Key, r DateResolver) bool {
	return ruleWindow(w.Start, w.Repeating, w.End, t, r)
}

func clonePtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
