package plan_test

import (
	"testing"
	"time"

	"github.com/warp/plan-engine/plan"
)

func newAggregator(s *plan.Store) *plan.Aggregator {
	return plan.NewAggregator(s, plan.NewEngine(s))
}

// =============================================================================
// EMPTY STORE - zeros everywhere, never an error
// =============================================================================

func TestAggregate_EmptyStoreYieldsZeros(t *testing.T) {
	// GIVEN: a store with no people and no accounts
	// WHEN: asking for any total at any date
	// THEN: everything is zero; nothing panics or errors

	s := newPlanStore(t)
	a := newAggregator(s)

	for _, k := range []plan.Key{
		plan.MonthKey(2024, time.January),
		plan.MonthKey(2099, time.December),
		plan.MonthKey(1990, time.June),
	} {
		if got := a.TotalBalanceAt(k); !got.IsZero() {
			t.Errorf("TotalBalanceAt(%s) = %s", k, got)
		}
		if got := a.TotalIncomeAt(k); !got.IsZero() {
			t.Errorf("TotalIncomeAt(%s) = %s", k, got)
		}
	}
	if rows := a.IncomeBreakdownAt(plan.MonthKey(2024, time.June)); len(rows) != 0 {
		t.Errorf("expected no breakdown rows, got %d", len(rows))
	}
	total := a.TotalYearRollup(2024)
	if !total.Balance.IsZero() || !total.Deposits.IsZero() {
		t.Errorf("year rollup not zero: %+v", total)
	}
}

// =============================================================================
// TOTALS ACROSS ACCOUNTS
// =============================================================================

func TestAggregate_TotalBalanceSumsAccounts(t *testing.T) {
	s := newPlanStore(t)
	ada := addPerson(t, s, "Ada")
	blaise := addPerson(t, s, "Blaise")
	isa := addAccount(t, s, ada.ID, "ISA", decPtr("0"), plan.PerYear)
	pension := addAccount(t, s, blaise.ID, "Pension", decPtr("0"), plan.PerYear)
	addBalance(t, s, isa.ID, plan.MonthKey(2024, time.January), "1000")
	addBalance(t, s, pension.ID, plan.MonthKey(2024, time.January), "2500")

	a := newAggregator(s)
	got := a.TotalBalanceAt(plan.MonthKey(2024, time.June))
	if !got.Equal(dec("3500")) {
		t.Errorf("total = %s, want 3500", got)
	}

	// Sparse range: a date before either account's data contributes 0.
	if got := a.TotalBalanceAt(plan.MonthKey(2020, time.January)); !got.IsZero() {
		t.Errorf("pre-data total = %s, want 0", got)
	}
}

// =============================================================================
// PER-PERSON INCOME
// =============================================================================

func TestAggregate_IncomeBreakdownAttributesByOwner(t *testing.T) {
	// GIVEN: Ada's pension paying 1000/month gross at 20% tax, Blaise idle
	// WHEN: breaking income down by person
	// THEN: Ada shows 800 net and a 20% effective rate; Blaise shows
	//       zeros and an empty rate (no divide-by-zero artifacts)

	s := newPlanStore(t)
	ada := addPerson(t, s, "Ada")
	blaise := addPerson(t, s, "Blaise")
	pension := addAccount(t, s, ada.ID, "Pension", decPtr("0"), plan.PerYear)
	addAccount(t, s, blaise.ID, "Idle", decPtr("0"), plan.PerYear)
	addBalance(t, s, pension.ID, plan.MonthKey(2024, time.January), "500000")
	st := addStrategy(t, s, "Drawdown")
	if _, err := s.AddWithdrawal(st.ID, plan.Withdrawal{
		AccountID: pension.ID,
		Amount:    decPtr("1000"),
		Type:      plan.WithdrawFixedPerMonth,
		Start:     plan.FixedDate(plan.MonthKey(2024, time.February)),
		Repeating: true,
		Period:    plan.PerMonth,
		TaxRate:   dec("20"),
	}); err != nil {
		t.Fatal(err)
	}

	a := newAggregator(s)
	rows := a.IncomeBreakdownAt(plan.MonthKey(2024, time.June))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	adaRow, blaiseRow := rows[0], rows[1]
	if adaRow.PersonID != ada.ID {
		adaRow, blaiseRow = rows[1], rows[0]
	}

	if adaRow.Income.StringFixed(2) != "800.00" || adaRow.Tax.StringFixed(2) != "200.00" {
		t.Errorf("Ada income/tax = %s/%s", adaRow.Income, adaRow.Tax)
	}
	if adaRow.EffectiveTaxRate == nil || adaRow.EffectiveTaxRate.StringFixed(0) != "20" {
		t.Errorf("Ada effective rate = %v, want 20", adaRow.EffectiveTaxRate)
	}

	if !blaiseRow.Withdrawals.IsZero() {
		t.Errorf("Blaise withdrawals = %s", blaiseRow.Withdrawals)
	}
	if blaiseRow.EffectiveTaxRate != nil {
		t.Errorf("Blaise effective rate should be nil, got %s", blaiseRow.EffectiveTaxRate)
	}
}

// =============================================================================
// YEAR ROLLUPS
// =============================================================================

func TestAggregate_YearRollup_FlowsSumBalanceIsDecember(t *testing.T) {
	// GIVEN: the ISA fixture (100/month deposits, yearly interest)
	// WHEN: rolling 2024 up
	// THEN: deposits are the 12-month sum; the balance is December's
	//       point value, not a sum of balances

	s, _, isa := isaFixture(t)
	a := newAggregator(s)

	row, ok, err := a.YearRollup(isa, 2024)
	if err != nil || !ok {
		t.Fatalf("rollup failed: ok=%v err=%v", ok, err)
	}
	if row.Deposits.StringFixed(2) != "1200.00" {
		t.Errorf("2024 deposits = %s, want 1200", row.Deposits)
	}
	if row.Balance.StringFixed(2) != "2100.00" {
		t.Errorf("2024 balance = %s, want December's 2100", row.Balance)
	}
	if !row.Interest.IsZero() {
		t.Errorf("2024 interest = %s, want 0 (posts at the 2025 anniversary)", row.Interest)
	}

	row25, ok, err := a.YearRollup(isa, 2025)
	if err != nil || !ok {
		t.Fatalf("rollup failed: ok=%v err=%v", ok, err)
	}
	if row25.Interest.StringFixed(2) != "50.00" {
		t.Errorf("2025 interest = %s, want 50", row25.Interest)
	}
}

func TestAggregate_YearRollup_OutsideRangeReportsFalse(t *testing.T) {
	s, _, isa := isaFixture(t)
	a := newAggregator(s)

	if _, ok, err := a.YearRollup(isa, 1995); err != nil || ok {
		t.Errorf("year before data: ok=%v err=%v", ok, err)
	}
	if _, ok, err := a.YearRollup(isa, 2024+plan.DefaultHorizonYears+5); err != nil || ok {
		t.Errorf("year past horizon: ok=%v err=%v", ok, err)
	}
}

func TestAggregate_YearSeriesMatchesIndividualRollups(t *testing.T) {
	s, _, isa := isaFixture(t)
	a := newAggregator(s)

	rows, err := a.YearSeries(isa, 2024, 2026)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 year rows, got %d", len(rows))
	}
	for i, year := range []int{2024, 2025, 2026} {
		single, ok, err := a.YearRollup(isa, year)
		if err != nil || !ok {
			t.Fatalf("%d: ok=%v err=%v", year, ok, err)
		}
		if !rows[i].Balance.Equal(single.Balance) || !rows[i].Deposits.Equal(single.Deposits) {
			t.Errorf("%d: series row diverges from rollup", year)
		}
	}
}

func TestAggregate_ReferentiallyStable(t *testing.T) {
	// Same inputs, same outputs: safe to memoize upstream.

	s, _, isa := isaFixture(t)
	a := newAggregator(s)

	first := a.TotalBalanceAt(plan.MonthKey(2030, time.June))
	second := a.TotalBalanceAt(plan.MonthKey(2030, time.June))
	if !first.Equal(second) {
		t.Errorf("unstable totals: %s vs %s", first, second)
	}

	r1, _, _ := a.YearRollup(isa, 2030)
	r2, _, _ := a.YearRollup(isa, 2030)
	if !r1.Balance.Equal(r2.Balance) || !r1.Income.Equal(r2.Income) {
		t.Error("unstable rollup")
	}
}

// =============================================================================
// YEAR-KEYED POINT LOOKUPS
// =============================================================================

func TestAggregate_YearKeyReadsDecemberPoint(t *testing.T) {
	// GIVEN: an account with data through the year
	// WHEN: totals are asked for with a year key instead of a month key
	// THEN: the answer is the December point, the same rule year rollups
	//       use for balances, never a silent zero

	s := newPlanStore(t)
	ada := addPerson(t, s, "Ada")
	isa := addAccount(t, s, ada.ID, "ISA", decPtr("0"), plan.PerYear)
	addBalance(t, s, isa.ID, plan.MonthKey(2024, time.January), "1000")

	a := newAggregator(s)

	want := a.TotalBalanceAt(plan.MonthKey(2024, time.December))
	if want.IsZero() {
		t.Fatal("fixture broken: December balance should be nonzero")
	}
	if got := a.TotalBalanceAt(plan.YearKey(2024)); !got.Equal(want) {
		t.Errorf("TotalBalanceAt(2024) = %s, want December value %s", got, want)
	}
	if got := a.TotalIncomeAt(plan.YearKey(2024)); !got.Equal(a.TotalIncomeAt(plan.MonthKey(2024, time.December))) {
		t.Errorf("TotalIncomeAt(2024) != December value, got %s", got)
	}

	rows := a.IncomeBreakdownAt(plan.YearKey(2024))
	if len(rows) != 1 {
		t.Fatalf("expected one breakdown row, got %d", len(rows))
	}
}
