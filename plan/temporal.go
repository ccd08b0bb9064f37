/*
Package plan provides the core savings-plan projection engine.

PURPOSE:
  This package contains the domain types and algorithms for modelling
  people, accounts, recorded balances, and deposit/withdrawal strategies,
  and for projecting account balances forward in time. Recorded balances
  are authoritative anchors; everything between and beyond them is
  computed from growth rates and scheduled cash flows.

KEY CONCEPTS IN THIS FILE (temporal.go):
  - Key: An integer-backed temporal key, either YYYYMM (month) or YYYY (year)
  - Granularity: Whether a key addresses a month or a whole year
  - ScheduleDate: A rule date that is either fixed or a late-bound sentinel
    (plan start / retirement) resolved against live store configuration

DESIGN PRINCIPLES:
  1. One time axis: every computation is keyed by Key, never time.Time
  2. Integer ordering: keys of the same granularity compare as plain ints
  3. Lossy aggregation: month -> year keeps the year only, one-directional
  4. Late binding: sentinel dates re-resolve whenever configuration changes

SEE ALSO:
  - types.go: Entities scheduled along this axis
  - projection.go: The engine that walks keys in order
*/
package plan

import (
	"fmt"
	"time"
)

// =============================================================================
// KEY - Integer temporal key (YYYYMM or YYYY)
// =============================================================================

// Key is the sole time axis of the engine. Month keys are encoded as
// YYYYMM (e.g. 202401), year keys as YYYY (e.g. 2024). Keys of the same
// granularity order correctly under plain integer comparison.
type Key int

type Granularity int

const (
	GranularityMonth Granularity = iota
	GranularityYear
)

func (g Granularity) String() string {
	if g == GranularityYear {
		return "year"
	}
	return "month"
}

// Constructors
func MonthKey(year int, month time.Month) Key { return Key(year*100 + int(month)) }
func YearKey(year int) Key                    { return Key(year) }

func KeyFromTime(t time.Time) Key { return MonthKey(t.Year(), t.Month()) }

func CurrentMonth() Key { return KeyFromTime(time.Now()) }

// Granularity inspection. Month keys are six digits, year keys four.
func (k Key) IsMonth() bool              { return k > 9999 }
func (k Key) Granularity() Granularity {
	if k.IsMonth() {
		return GranularityMonth
	}
	return GranularityYear
}

// Properties
func (k Key) Year() int {
	if k.IsMonth() {
		return int(k) / 100
	}
	return int(k)
}

func (k Key) Month() time.Month {
	if k.IsMonth() {
		return time.Month(int(k) % 100)
	}
	return time.January
}

// Comparison. Only meaningful between keys of the same granularity.
func (k Key) Before(other Key) bool        { return k < other }
func (k Key) After(other Key) bool         { return k > other }
func (k Key) BeforeOrEqual(other Key) bool { return k <= other }
func (k Key) AfterOrEqual(other Key) bool  { return k >= other }

// Arithmetic
func (k Key) NextMonth() Key { return k.AddMonths(1) }
func (k Key) PrevMonth() Key { return k.AddMonths(-1) }

// AddMonths steps n months. The result is always a month key: year
// keys enter at January, so YearKey(2024).AddMonths(1) is February 2024.
func (k Key) AddMonths(n int) Key {
	k = k.FirstMonth()
	months := k.Year()*12 + int(k.Month()) - 1 + n
	return MonthKey(months/12, time.Month(months%12+1))
}

func (k Key) AddYears(n int) Key {
	if k.IsMonth() {
		return MonthKey(k.Year()+n, k.Month())
	}
	return YearKey(k.Year() + n)
}

// ToYear converts to year granularity. Lossy: the month is discarded.
func (k Key) ToYear() Key { return YearKey(k.Year()) }

// FirstMonth pins a key to month granularity. Year keys resolve to January.
func (k Key) FirstMonth() Key {
	if k.IsMonth() {
		return k
	}
	return MonthKey(k.Year(), time.January)
}

// LastMonth is the December counterpart of FirstMonth.
func (k Key) LastMonth() Key {
	if k.IsMonth() {
		return k
	}
	return MonthKey(k.Year(), time.December)
}

func (k Key) IsZero() bool { return k == 0 }

// Valid reports whether the key encodes a real month or year.
func (k Key) Valid() bool {
	if k <= 0 {
		return false
	}
	if !k.IsMonth() {
		return true
	}
	m := int(k) % 100
	return m >= 1 && m <= 12
}

func (k Key) String() string {
	if k.IsMonth() {
		return fmt.Sprintf("%04d%02d", k.Year(), int(k.Month()))
	}
	return fmt.Sprintf("%04d", k.Year())
}

// MonthsOfYear returns the twelve month keys of a year, in order.
// Accepts either granularity; the year component is used.
func MonthsOfYear(k Key) []Key {
	year := k.Year()
	months := make([]Key, 12)
	for m := time.January; m <= time.December; m++ {
		months[int(m)-1] = MonthKey(year, m)
	}
	return months
}

// MonthsBetween counts the steps from one month key to another.
// Year keys count from January.
func MonthsBetween(from, to Key) int {
	from, to = from.FirstMonth(), to.FirstMonth()
	return (to.Year()*12 + int(to.Month())) - (from.Year()*12 + int(from.Month()))
}

func minKey(a, b Key) Key {
	if a < b {
		return a
	}
	return b
}

// =============================================================================
// SCHEDULE DATE - Fixed date or late-bound sentinel
// =============================================================================

// ScheduleKind tags the variant of a ScheduleDate.
type ScheduleKind string

const (
	ScheduleFixed        ScheduleKind = "fixed"
	ScheduleAtPlanStart  ScheduleKind = "plan_start"
	ScheduleAtRetirement ScheduleKind = "retirement"
)

// ScheduleDate is a rule date: either a fixed Key, or an indirection to the
// configured plan-start or retirement date. Sentinels are resolved at
// evaluation time, never copied, so editing the configured date moves
// every rule that references it.
type ScheduleDate struct {
	Kind ScheduleKind `json:"kind"`
	Date Key          `json:"date,omitempty"`
}

func FixedDate(k Key) ScheduleDate { return ScheduleDate{Kind: ScheduleFixed, Date: k} }
func AtPlanStart() ScheduleDate    { return ScheduleDate{Kind: ScheduleAtPlanStart} }
func AtRetirement() ScheduleDate   { return ScheduleDate{Kind: ScheduleAtRetirement} }

// DateResolver supplies the configured dates sentinels point at.
// *Store implements it.
type DateResolver interface {
	PlanStart() Key
	RetirementDate() Key
}

// Resolve returns the concrete key this schedule date currently denotes.
func (sd ScheduleDate) Resolve(r DateResolver) Key {
	switch sd.Kind {
	case ScheduleAtPlanStart:
		return r.PlanStart()
	case ScheduleAtRetirement:
		return r.RetirementDate()
	default:
		return sd.Date
	}
}

func (sd ScheduleDate) Valid() bool {
	switch sd.Kind {
	case ScheduleAtPlanStart, ScheduleAtRetirement:
		return true
	case ScheduleFixed:
		return sd.Date.Valid()
	default:
		return false
	}
}
