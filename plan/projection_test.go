package plan_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/plan-engine/plan"
)

// =============================================================================
// SCENARIO HELPERS
// =============================================================================

// isaFixture builds the reference scenario: account "ISA", 5% annual
// growth compounded yearly, recorded 1000 at 202401, and a repeating
// monthly deposit of 100 from 202401 with no end.
func isaFixture(t *testing.T) (*plan.Store, *plan.Engine, plan.AccountID) {
	t.Helper()
	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "ISA", decPtr("5"), plan.PerYear)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "1000")
	st := addStrategy(t, s, "Base")
	if _, err := s.AddDeposit(st.ID, plan.Deposit{
		AccountID: acc.ID,
		Amount:    dec("100"),
		Start:     plan.FixedDate(plan.MonthKey(2024, time.January)),
		Repeating: true,
		Period:    plan.PerMonth,
	}); err != nil {
		t.Fatal(err)
	}
	return s, plan.NewEngine(s), acc.ID
}

func pointAt(t *testing.T, e *plan.Engine, id plan.AccountID, k plan.Key) plan.Point {
	t.Helper()
	p, ok, err := e.At(id, k)
	if err != nil {
		t.Fatalf("At(%s): %v", k, err)
	}
	if !ok {
		t.Fatalf("At(%s): no point", k)
	}
	return p
}

func assertCents(t *testing.T, got decimal.Decimal, want string, label string) {
	t.Helper()
	if got.StringFixed(2) != want {
		t.Errorf("%s = %s, want %s", label, got.StringFixed(2), want)
	}
}

func withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(dec("0.000001"))
}

// =============================================================================
// REFERENCE SCENARIO - balances to the cent
// =============================================================================

func TestProjection_ISAScenario(t *testing.T) {
	// GIVEN: the ISA fixture (yearly compounding, anchored at 202401)
	// WHEN: projecting forward
	// THEN: 202402 is 1100.00 (no interest mid-year) and 202501 is
	//       2250.00: 5% on the 1000 standing at the previous anniversary,
	//       plus twelve deposits of 100

	_, e, isa := isaFixture(t)

	assertCents(t, pointAt(t, e, isa, plan.MonthKey(2024, time.February)).Balance, "1100.00", "202402 balance")
	assertCents(t, pointAt(t, e, isa, plan.MonthKey(2024, time.December)).Balance, "2100.00", "202412 balance")

	jan25 := pointAt(t, e, isa, plan.MonthKey(2025, time.January))
	assertCents(t, jan25.Balance, "2250.00", "202501 balance")
	assertCents(t, jan25.Interest, "50.00", "202501 interest")
	if jan25.Actual {
		t.Error("202501 is projected, not recorded")
	}
}

func TestProjection_YearlyCompounding_PostsOnlyAtAnniversary(t *testing.T) {
	_, e, isa := isaFixture(t)

	for m := time.February; m <= time.December; m++ {
		p := pointAt(t, e, isa, plan.MonthKey(2024, m))
		if !p.Interest.IsZero() {
			t.Errorf("interest posted mid-year at %s: %s", p.Date, p.Interest)
		}
	}
}

func TestProjection_MonthlyCompounding_TwelveMonthsEqualAnnualRate(t *testing.T) {
	// GIVEN: 5% annual growth compounded monthly, a lone 1000 anchor
	// WHEN: projecting one year with no cash flows
	// THEN: the balance lands within tolerance of 1050

	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "Savings", decPtr("5"), plan.PerMonth)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "1000")

	e := plan.NewEngine(s)
	got := pointAt(t, e, acc.ID, plan.MonthKey(2025, time.January)).Balance
	if got.Sub(dec("1050")).Abs().GreaterThan(dec("0.01")) {
		t.Errorf("compounded balance = %s, want ~1050", got)
	}
}

// =============================================================================
// ANCHORING
// =============================================================================

func TestProjection_RecordedBalancesAlwaysWin(t *testing.T) {
	// GIVEN: recorded balances at 202401 and 202406
	// WHEN: the computed estimate at 202406 would differ
	// THEN: the series reproduces the recorded value exactly

	s, e, isa := isaFixture(t)
	addBalance(t, s, isa, plan.MonthKey(2024, time.June), "123.45")

	p := pointAt(t, e, isa, plan.MonthKey(2024, time.June))
	if !p.Actual {
		t.Error("expected anchored point")
	}
	assertCents(t, p.Balance, "123.45", "anchored balance")

	// The walk continues from the anchor, not the discarded estimate.
	assertCents(t, pointAt(t, e, isa, plan.MonthKey(2024, time.July)).Balance, "223.45", "202407 balance")
}

func TestProjection_SameInputsSameSeries(t *testing.T) {
	// Projecting twice without mutation yields identical sequences.

	_, e, isa := isaFixture(t)

	series, err := e.Account(isa)
	if err != nil {
		t.Fatal(err)
	}
	first := series.Iterator()
	second := series.Iterator()
	for i := 0; i < 120; i++ {
		a, okA := first.Next()
		b, okB := second.Next()
		if okA != okB {
			t.Fatalf("iterators diverged in length at step %d", i)
		}
		if !okA {
			break
		}
		if a.Date != b.Date || !a.Balance.Equal(b.Balance) || !a.Interest.Equal(b.Interest) {
			t.Fatalf("iterators diverged at %s: %v vs %v", a.Date, a, b)
		}
	}
}

func TestProjection_SeriesBoundsAndLaziness(t *testing.T) {
	_, e, isa := isaFixture(t)

	series, err := e.Account(isa)
	if err != nil {
		t.Fatal(err)
	}
	if series.Start() != plan.MonthKey(2024, time.January) {
		t.Errorf("start = %s", series.Start())
	}
	if series.End() != plan.MonthKey(2024+plan.DefaultHorizonYears, time.December) {
		t.Errorf("end = %s", series.End())
	}
	if _, ok := series.At(plan.MonthKey(2023, time.May)); ok {
		t.Error("point before start of data")
	}
	if _, ok := series.At(series.End().NextMonth()); ok {
		t.Error("point past the horizon")
	}
}

// =============================================================================
// CACHE INVALIDATION
// =============================================================================

func TestProjection_MutationInvalidatesCache(t *testing.T) {
	// GIVEN: a memoized projection
	// WHEN: any entity mutates
	// THEN: the next read reflects the change

	s, e, isa := isaFixture(t)
	before := pointAt(t, e, isa, plan.MonthKey(2024, time.March)).Balance

	addBalance(t, s, isa, plan.MonthKey(2024, time.February), "5000")

	after := pointAt(t, e, isa, plan.MonthKey(2024, time.March)).Balance
	if before.Equal(after) {
		t.Errorf("stale projection after mutation: %s", after)
	}
	assertCents(t, after, "5100.00", "March after re-anchor")
}

func TestProjection_RemovedAccountYieldsNotFound(t *testing.T) {
	s, e, isa := isaFixture(t)
	if _, err := e.Account(isa); err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveAccount(isa); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Account(isa); !plan.IsNotFound(err) {
		t.Fatalf("expected not-found after removal, got %v", err)
	}
}

func TestProjection_GlobalRateIsLive(t *testing.T) {
	// GIVEN: an account with a nil growth rate tracking the global rate
	// WHEN: the global rate changes
	// THEN: projections change too - the rate is an indirection, not a copy

	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "Tracker", nil, plan.PerYear)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "1000")

	e := plan.NewEngine(s)
	withGlobal5 := pointAt(t, e, acc.ID, plan.MonthKey(2025, time.January)).Balance
	assertCents(t, withGlobal5, "1050.00", "tracking 5%")

	s.SetGlobalGrowthRate(dec("10"))
	withGlobal10 := pointAt(t, e, acc.ID, plan.MonthKey(2025, time.January)).Balance
	assertCents(t, withGlobal10, "1100.00", "tracking 10%")
}

// =============================================================================
// WITHDRAWAL SEMANTICS ALONG THE BALANCE PATH
// =============================================================================

func TestProjection_TakeInterest_LeavesPrincipalUntouched(t *testing.T) {
	// GIVEN: monthly compounding and a take-interest withdrawal
	// WHEN: projecting
	// THEN: the balance never moves; each month's withdrawal equals the
	//       interest posted that month

	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "Income", decPtr("6"), plan.PerMonth)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "12000")
	st := addStrategy(t, s, "Drawdown")
	if _, err := s.AddWithdrawal(st.ID, plan.Withdrawal{
		AccountID: acc.ID,
		Type:      plan.WithdrawTakeInterest,
		Start:     plan.FixedDate(plan.MonthKey(2024, time.February)),
		Repeating: true,
		Period:    plan.PerMonth,
	}); err != nil {
		t.Fatal(err)
	}

	e := plan.NewEngine(s)
	for _, m := range []time.Month{time.February, time.June, time.December} {
		pt := pointAt(t, e, acc.ID, plan.MonthKey(2024, m))
		if !pt.Interest.IsPositive() {
			t.Fatalf("%s: no interest posted", pt.Date)
		}
		if !pt.Withdrawals.Equal(pt.Interest) {
			t.Errorf("%s: withdrew %s, interest was %s", pt.Date, pt.Withdrawals, pt.Interest)
		}
		assertCents(t, pt.Balance, "12000.00", pt.Date.String()+" principal")
	}
}

func TestProjection_StaticPercentage_BaseFrozenAtRuleStart(t *testing.T) {
	// GIVEN: a 4% static-percentage withdrawal starting when the balance
	//        stood at 10000
	// WHEN: the balance later grows well past 10000
	// THEN: the rule keeps withdrawing 400/year

	s := newPlanStore(t)
	if err := s.SetPlanStart(plan.MonthKey(2023, time.December)); err != nil {
		t.Fatal(err)
	}
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "Pension", decPtr("50"), plan.PerYear) // aggressive growth
	addBalance(t, s, acc.ID, plan.MonthKey(2023, time.December), "10000")
	st := addStrategy(t, s, "Drawdown")
	if _, err := s.AddWithdrawal(st.ID, plan.Withdrawal{
		AccountID: acc.ID,
		Amount:    decPtr("4"),
		Type:      plan.WithdrawStaticPercentage,
		Start:     plan.FixedDate(plan.MonthKey(2024, time.January)),
		Repeating: true,
		Period:    plan.PerYear,
	}); err != nil {
		t.Fatal(err)
	}

	e := plan.NewEngine(s)
	series, err := e.Account(acc.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Balance well above 10000 by 2026...
	if bal := pointAt(t, e, acc.ID, plan.MonthKey(2026, time.June)).Balance; !bal.GreaterThan(dec("20000")) {
		t.Fatalf("fixture did not grow: %s", bal)
	}

	// ...yet every year still withdraws 400 total.
	for _, year := range []int{2024, 2025, 2026} {
		total := decimal.Zero
		for _, m := range plan.MonthsOfYear(plan.YearKey(year)) {
			pt, ok := series.At(m)
			if !ok {
				t.Fatalf("missing point %s", m)
			}
			total = total.Add(pt.Withdrawals)
		}
		if !withinTolerance(total, dec("400")) {
			t.Errorf("%d: withdrew %s, want 400", year, total)
		}
	}
}

func TestProjection_Tax_SplitsGrossIntoIncomeAndTax(t *testing.T) {
	// income(period) = withdrawal(period) * (1 - t/100), balance falls by gross

	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "Pension", decPtr("0"), plan.PerYear)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "100000")
	st := addStrategy(t, s, "Drawdown")
	if _, err := s.AddWithdrawal(st.ID, plan.Withdrawal{
		AccountID: acc.ID,
		Amount:    decPtr("1000"),
		Type:      plan.WithdrawFixedPerMonth,
		Start:     plan.FixedDate(plan.MonthKey(2024, time.February)),
		Repeating: true,
		Period:    plan.PerMonth,
		TaxRate:   dec("20"),
	}); err != nil {
		t.Fatal(err)
	}

	e := plan.NewEngine(s)
	pt := pointAt(t, e, acc.ID, plan.MonthKey(2024, time.February))
	assertCents(t, pt.Withdrawals, "1000.00", "gross")
	assertCents(t, pt.Tax, "200.00", "tax")
	assertCents(t, pt.Income, "800.00", "income")
	assertCents(t, pt.Balance, "99000.00", "balance reduced by gross")
}

func TestProjection_OneShotDeposit_PostsExactlyOnce(t *testing.T) {
	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "ISA", decPtr("0"), plan.PerYear)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "0")
	st := addStrategy(t, s, "Base")
	if _, err := s.AddDeposit(st.ID, plan.Deposit{
		AccountID: acc.ID,
		Amount:    dec("500"),
		Start:     plan.FixedDate(plan.MonthKey(2024, time.March)),
		Repeating: false,
		Period:    plan.PerYear,
	}); err != nil {
		t.Fatal(err)
	}

	e := plan.NewEngine(s)
	assertCents(t, pointAt(t, e, acc.ID, plan.MonthKey(2024, time.March)).Deposits, "500.00", "one-shot month")
	assertCents(t, pointAt(t, e, acc.ID, plan.MonthKey(2024, time.April)).Deposits, "0.00", "following month")
	assertCents(t, pointAt(t, e, acc.ID, plan.MonthKey(2024, time.December)).Balance, "500.00", "year-end balance")
}

func TestProjection_HiddenRulesStillCompute(t *testing.T) {
	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "ISA", decPtr("0"), plan.PerYear)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "0")
	st := addStrategy(t, s, "Base")
	if _, err := s.AddDeposit(st.ID, plan.Deposit{
		AccountID: acc.ID,
		Amount:    dec("100"),
		Start:     plan.FixedDate(plan.MonthKey(2024, time.February)),
		Repeating: true,
		Period:    plan.PerMonth,
		Hidden:    true,
	}); err != nil {
		t.Fatal(err)
	}

	e := plan.NewEngine(s)
	assertCents(t, pointAt(t, e, acc.ID, plan.MonthKey(2024, time.February)).Deposits, "100.00", "hidden deposit")
}

func TestProjection_RetirementEndDate_MovesWithConfiguration(t *testing.T) {
	// GIVEN: a withdrawal running until retirement
	// WHEN: the retirement date is brought forward
	// THEN: the rule stops earlier

	s := newPlanStore(t)
	p := addPerson(t, s, "Ada")
	acc := addAccount(t, s, p.ID, "Pension", decPtr("0"), plan.PerYear)
	addBalance(t, s, acc.ID, plan.MonthKey(2024, time.January), "100000")
	st := addStrategy(t, s, "Drawdown")
	end := plan.AtRetirement()
	if _, err := s.AddWithdrawal(st.ID, plan.Withdrawal{
		AccountID: acc.ID,
		Amount:    decPtr("100"),
		Type:      plan.WithdrawFixedPerMonth,
		Start:     plan.FixedDate(plan.MonthKey(2024, time.February)),
		Repeating: true,
		End:       &end,
		Period:    plan.PerMonth,
	}); err != nil {
		t.Fatal(err)
	}

	e := plan.NewEngine(s)
	if pointAt(t, e, acc.ID, plan.MonthKey(2030, time.June)).Withdrawals.IsZero() {
		t.Fatal("withdrawal should be active before retirement")
	}

	if err := s.SetRetirementDate(plan.MonthKey(2026, time.January)); err != nil {
		t.Fatal(err)
	}
	if !pointAt(t, e, acc.ID, plan.MonthKey(2030, time.June)).Withdrawals.IsZero() {
		t.Error("withdrawal still active past the new retirement date")
	}
}
