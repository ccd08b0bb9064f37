/*
projection.go - Per-account balance forecasting

PURPOSE:
  Walks month keys in order from the earliest known data to the horizon,
  maintaining a running balance. Wherever a recorded balance exists it
  anchors the series: actuals always win over estimates. Everywhere else
  the step computes

    next = previous + interest + deposits - withdrawals

  with interest and rule contributions from the evaluator.

STATE MACHINE:
  Each step is either ANCHORED (value is a recorded balance) or PROJECTED
  (value is computed). A recorded balance at t+1 discards the computed
  estimate and re-anchors the walk.

INTEREST:
  Monthly compounding applies (1+annual)^(1/12)-1 every month. Yearly
  compounding posts the full annual rate once per year, in the account's
  anniversary month (the month of its first data point), computed on the
  balance as it stood at the previous anniversary. Deposits made during
  the year earn nothing until the next anniversary.

LAZINESS & MEMOIZATION:
  A Series materializes points on demand; advancing one step is O(rules).
  The engine caches one Series per account, keyed by the store version;
  any mutation drops the whole cache. Each Series snapshots the plan
  configuration and the account's anchors when it is built, so a walk in
  progress never observes a half-applied mutation.

FAILURE SEMANTICS:
  A rule pointing at a missing account is skipped with a logged warning.
  Projection always produces a result for valid accounts regardless of
  corruption elsewhere.
*/
package plan

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultHorizonYears bounds how far past the plan start projections run.
const DefaultHorizonYears = 50

// =============================================================================
// POINT - One period of projected (or anchored) figures
// =============================================================================

type Point struct {
	Date        Key
	Balance     decimal.Decimal
	Interest    decimal.Decimal
	Deposits    decimal.Decimal
	Withdrawals decimal.Decimal // gross
	Income      decimal.Decimal // gross minus tax
	Tax         decimal.Decimal
	Actual      bool // true when Balance is a recorded value
}

func zeroPoint(t Key) Point {
	return Point{
		Date:        t,
		Balance:     decimal.Zero,
		Interest:    decimal.Zero,
		Deposits:    decimal.Zero,
		Withdrawals: decimal.Zero,
		Income:      decimal.Zero,
		Tax:         decimal.Zero,
	}
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store        *Store
	horizonYears int

	mu           sync.Mutex
	cache        map[AccountID]*Series
	cacheVersion uint64
}

func NewEngine(store *Store) *Engine {
	return &Engine{
		store:        store,
		horizonYears: DefaultHorizonYears,
		cache:        make(map[AccountID]*Series),
	}
}

// SetHorizonYears adjusts the projection bound. Values below 1 are ignored.
func (e *Engine) SetHorizonYears(n int) {
	if n < 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.horizonYears = n
	e.cache = make(map[AccountID]*Series)
	e.cacheVersion = 0
}

// Account returns the memoized series for one account, building it if the
// store has changed since the last call.
func (e *Engine) Account(id AccountID) (*Series, error) {
	acc, err := e.store.Account(id)
	if err != nil {
		return nil, err
	}

	version := e.store.Version()
	e.mu.Lock()
	defer e.mu.Unlock()
	if version != e.cacheVersion {
		// Coarse invalidation: any mutation drops everything.
		e.cache = make(map[AccountID]*Series)
		e.cacheVersion = version
	}
	if s, ok := e.cache[id]; ok {
		return s, nil
	}
	s := e.buildSeries(acc)
	e.cache[id] = s
	return s, nil
}

// At is a convenience lookup of a single month's figures.
func (e *Engine) At(id AccountID, t Key) (Point, bool, error) {
	s, err := e.Account(id)
	if err != nil {
		return Point{}, false, err
	}
	p, ok := s.At(t)
	return p, ok, nil
}

func (e *Engine) buildSeries(acc *Account) *Series {
	// Freeze plan configuration for the lifetime of this series. The
	// version check on the next access picks up any change.
	pc := planContext{
		planStart:  e.store.PlanStart(),
		retirement: e.store.RetirementDate(),
		globalRate: e.store.GlobalGrowthRate(),
	}

	start := pc.planStart
	if earliest, ok := e.store.EarliestBalanceDate(acc.ID); ok {
		start = minKey(earliest, start)
	}
	end := MonthKey(pc.planStart.Year()+e.horizonYears, time.December)
	if end.Before(start) {
		end = start
	}

	// Snapshot anchors: month-keyed directly, year-keyed pinned to that
	// year's December (year balances are point-in-time December values).
	anchors := make(map[Key]decimal.Decimal)
	for _, b := range e.store.BalancesFor(acc.ID) {
		anchors[b.Date.LastMonth()] = b.Value
	}

	deposits, withdrawals := e.store.SelectedRulesFor(acc.ID)
	deposits, withdrawals = e.dropDangling(deposits, withdrawals)

	annual := pc.globalRate
	if acc.GrowthRate != nil {
		annual = *acc.GrowthRate
	}

	w := &walker{
		eval:        &Evaluator{Resolver: pc, GlobalRate: func() decimal.Decimal { return pc.globalRate }},
		account:     acc,
		deposits:    deposits,
		withdrawals: withdrawals,
		anchors:     anchors,
		next:        start,
		end:         end,
		annualRate:  annual,
		monthlyRate: monthlyRate(annual),
		staticBases: make(map[RuleID]decimal.Decimal),
		balance:     decimal.Zero,
		first:       true,
	}
	capacity := MonthsBetween(start, end) + 1
	return &Series{
		walker: w,
		start:  start,
		end:    end,
		points: make([]Point, 0, capacity),
		index:  make(map[Key]int, capacity),
	}
}

// dropDangling filters rules whose account no longer exists. The store's
// cascades make this unreachable in normal operation; a corrupt snapshot
// can still get here, and it must not poison other accounts' projections.
func (e *Engine) dropDangling(ds []*Deposit, ws []*Withdrawal) ([]*Deposit, []*Withdrawal) {
	outD := ds[:0]
	for _, d := range ds {
		if !e.store.IsValidAccount(d.AccountID) {
			log.Printf("[WARN] skipping deposit %s: account %s missing", d.ID, d.AccountID)
			continue
		}
		outD = append(outD, d)
	}
	outW := ws[:0]
	for _, w := range ws {
		if !e.store.IsValidAccount(w.AccountID) {
			log.Printf("[WARN] skipping withdrawal %s: account %s missing", w.ID, w.AccountID)
			continue
		}
		outW = append(outW, w)
	}
	return outD, outW
}

// planContext is the frozen DateResolver a series evaluates against.
type planContext struct {
	planStart  Key
	retirement Key
	globalRate decimal.Decimal
}

func (c planContext) PlanStart() Key      { return c.planStart }
func (c planContext) RetirementDate() Key { return c.retirement }

// monthlyRate converts an annual percentage to the equivalent effective
// monthly rate: (1+r)^(1/12) - 1. The float round-trip is confined to
// this one exponentiation.
func monthlyRate(annualPercent decimal.Decimal) decimal.Decimal {
	r, _ := annualPercent.Div(hundred).Float64()
	return decimal.NewFromFloat(math.Pow(1+r, 1.0/12) - 1)
}

// =============================================================================
// SERIES - Lazy, restartable, memoized month sequence
// =============================================================================

type Series struct {
	mu     sync.Mutex
	walker *walker
	points []Point
	index  map[Key]int
	start  Key
	end    Key
}

func (s *Series) Start() Key { return s.start }
func (s *Series) End() Key   { return s.end }

// At returns the figures for a month key, materializing lazily up to it.
// Outside [Start, End] it reports false; callers treat that as zero.
func (s *Series) At(t Key) (Point, bool) {
	if !t.IsMonth() || t.Before(s.start) || t.After(s.end) {
		return Point{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if i, ok := s.index[t]; ok {
			return s.points[i], true
		}
		p, ok := s.walker.step()
		if !ok {
			return Point{}, false
		}
		s.index[p.Date] = len(s.points)
		s.points = append(s.points, p)
	}
}

// Iterator returns a fresh cursor over the series from the start.
// Restartable: each call begins again; already-materialized points are
// served from memory.
func (s *Series) Iterator() *Cursor {
	return &Cursor{series: s, next: s.start}
}

type Cursor struct {
	series *Series
	next   Key
}

// Next advances one month. O(1) amortized: a step either reads a cached
// point or asks the walker for exactly one more.
func (c *Cursor) Next() (Point, bool) {
	p, ok := c.series.At(c.next)
	if !ok {
		return Point{}, false
	}
	c.next = c.next.NextMonth()
	return p, true
}

// =============================================================================
// WALKER - The projection state machine
// =============================================================================

type walker struct {
	eval        *Evaluator
	account     *Account
	deposits    []*Deposit
	withdrawals []*Withdrawal
	anchors     map[Key]decimal.Decimal

	next Key
	end  Key

	balance     decimal.Decimal
	annualRate  decimal.Decimal // percent
	monthlyRate decimal.Decimal // effective fraction

	// Yearly compounding state: interest posts in the anniversary month,
	// on the balance as of the previous anniversary.
	anniversaryMonth time.Month
	anniversaryBase  decimal.Decimal

	// Static-percentage bases captured at each rule's first active month.
	staticBases map[RuleID]decimal.Decimal

	first bool
}

func (w *walker) step() (Point, bool) {
	t := w.next
	if t.After(w.end) {
		return Point{}, false
	}

	opening := w.balance

	// Phase 1: interest.
	interest := decimal.Zero
	if w.first {
		w.anniversaryMonth = t.Month()
	} else {
		switch w.account.Compounding {
		case PerYear:
			if t.Month() == w.anniversaryMonth {
				interest = w.anniversaryBase.Mul(w.annualRate).Div(hundred)
			}
		default:
			interest = w.balance.Mul(w.monthlyRate)
		}
	}
	balance := w.balance.Add(interest)

	// Phase 2: deposits.
	deposits := decimal.Zero
	for _, d := range w.deposits {
		deposits = deposits.Add(w.eval.DepositAt(d, t))
	}
	balance = balance.Add(deposits)

	// Phase 3: withdrawals, in list order, all against the same balance.
	gross := decimal.Zero
	tax := decimal.Zero
	income := decimal.Zero
	for _, rule := range w.withdrawals {
		if rule.Type == WithdrawStaticPercentage {
			if _, captured := w.staticBases[rule.ID]; !captured && rule.ActiveAt(t, w.eval.Resolver) {
				w.staticBases[rule.ID] = opening
			}
		}
		g := w.eval.GrossAt(rule, t, WithdrawalContext{
			Balance:    balance,
			Interest:   interest,
			StaticBase: w.staticBases[rule.ID],
		})
		tx, inc := Tax(rule, g)
		gross = gross.Add(g)
		tax = tax.Add(tx)
		income = income.Add(inc)
	}
	balance = balance.Sub(gross)

	// Anchor: a recorded balance overrides the estimate entirely.
	actual := false
	if v, ok := w.anchors[t]; ok {
		balance = v
		actual = true
	}

	if w.account.Compounding == PerYear && (w.first || t.Month() == w.anniversaryMonth) {
		w.anniversaryBase = balance
	}

	w.balance = balance
	w.first = false
	w.next = t.NextMonth()

	return Point{
		Date:        t,
		Balance:     balance,
		Interest:    interest,
		Deposits:    deposits,
		Withdrawals: gross,
		Income:      income,
		Tax:         tax,
		Actual:      actual,
	}, true
}
