/*
handlers_test.go - HTTP-level tests for the plan API

Tests drive the full router with httptest, exercising routing, JSON
shapes, and error status mapping against a live in-memory engine.
*/
package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/plan-engine/plan"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	store := plan.NewStore()
	require.NoError(t, store.SetPlanStart(plan.MonthKey(2024, 1)))
	require.NoError(t, store.SetRetirementDate(plan.MonthKey(2054, 1)))

	engine := plan.NewEngine(store)
	h := NewHandler(store, engine, nil)
	return NewRouter(h, []string{"http://localhost:5173"}), h
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func strPtr(s string) *string { return &s }

// seedISA builds a person, a 5% yearly-compounding account with a
// recorded 1000 balance in January 2024, and a selected strategy that
// deposits 100 monthly.
func seedISA(t *testing.T, router http.Handler) (personID, accountID, strategyID string) {
	t.Helper()

	rec := do(t, router, "POST", "/api/people", PersonRequest{Name: "Alex", DateOfBirth: 199001})
	require.Equal(t, http.StatusCreated, rec.Code)
	personID = decode[PersonDTO](t, rec).ID

	rec = do(t, router, "POST", "/api/accounts", AccountRequest{
		Name:              "ISA",
		OwnerPersonID:     personID,
		GrowthRatePercent: strPtr("5"),
		CompoundingPeriod: "year",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	accountID = decode[AccountDTO](t, rec).ID

	rec = do(t, router, "POST", "/api/accounts/"+accountID+"/balances", BalanceRequest{
		Date: 202401, Value: "1000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, "POST", "/api/strategies", StrategyRequest{Name: "Base"})
	require.Equal(t, http.StatusCreated, rec.Code)
	strategyID = decode[StrategyDTO](t, rec).ID

	rec = do(t, router, "POST", "/api/strategies/"+strategyID+"/select", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, "POST", "/api/strategies/"+strategyID+"/deposits", DepositRequest{
		AccountID: accountID,
		Amount:    "100",
		StartDate: plan.FixedDate(plan.MonthKey(2024, 1)),
		Repeating: true,
		Period:    "month",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	return personID, accountID, strategyID
}

// =============================================================================
// PEOPLE CRUD
// =============================================================================

func TestPeople_CRUD(t *testing.T) {
	router, _ := newTestRouter(t)

	// WHEN: Creating a person
	rec := do(t, router, "POST", "/api/people", PersonRequest{Name: "Sam", DateOfBirth: 198506})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[PersonDTO](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Sam", created.Name)
	assert.Equal(t, 198506, created.DateOfBirth)

	// THEN: The person is listed and fetchable
	rec = do(t, router, "GET", "/api/people", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PersonDTO](t, rec), 1)

	rec = do(t, router, "GET", "/api/people/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: Renaming
	rec = do(t, router, "PUT", "/api/people/"+created.ID, PersonRequest{Name: "Samuel", DateOfBirth: 198506})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Samuel", decode[PersonDTO](t, rec).Name)

	// WHEN: Deleting
	rec = do(t, router, "DELETE", "/api/people/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, "GET", "/api/people/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPerson_MissingName_Rejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, "POST", "/api/people", PersonRequest{DateOfBirth: 198506})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Validation failed", errResp.Error)
}

// =============================================================================
// ACCOUNTS AND BALANCES
// =============================================================================

func TestAccount_UnknownOwner_Rejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, "POST", "/api/accounts", AccountRequest{
		Name:              "Savings",
		OwnerPersonID:     "nobody",
		CompoundingPeriod: "month",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBalance_DuplicateDate_Conflict(t *testing.T) {
	router, _ := newTestRouter(t)
	_, accountID, _ := seedISA(t, router)

	rec := do(t, router, "POST", "/api/accounts/"+accountID+"/balances", BalanceRequest{
		Date: 202401, Value: "999",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAccount_NullGrowthRate_TracksGlobal(t *testing.T) {
	router, _ := newTestRouter(t)
	personID, _, _ := seedISA(t, router)

	rec := do(t, router, "POST", "/api/accounts", AccountRequest{
		Name:              "Tracker",
		OwnerPersonID:     personID,
		GrowthRatePercent: nil,
		CompoundingPeriod: "month",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, decode[AccountDTO](t, rec).GrowthRatePercent)
}

func TestDeletePerson_CascadesToAccounts(t *testing.T) {
	router, _ := newTestRouter(t)
	personID, accountID, _ := seedISA(t, router)

	rec := do(t, router, "DELETE", "/api/people/"+personID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, "GET", "/api/accounts/"+accountID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func TestProjection_MonthSeries_MatchesEngine(t *testing.T) {
	router, _ := newTestRouter(t)
	_, accountID, _ := seedISA(t, router)

	rec := do(t, router, "GET",
		fmt.Sprintf("/api/accounts/%s/projection?granularity=month&from=202401&to=202412", accountID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	series := decode[SeriesDTO](t, rec)
	assert.Equal(t, "month", series.Granularity)
	require.Len(t, series.Points, 12)

	// Recorded January balance is authoritative
	assert.Equal(t, 202401, series.Points[0].Date)
	assert.Equal(t, "1000.00", series.Points[0].Balance)
	assert.True(t, series.Points[0].Actual)

	// December: 1000 anchor plus 11 deposits of 100
	assert.Equal(t, 202412, series.Points[11].Date)
	assert.Equal(t, "2100.00", series.Points[11].Balance)
	assert.False(t, series.Points[11].Actual)
}

func TestProjection_YearGranularity(t *testing.T) {
	router, _ := newTestRouter(t)
	_, accountID, _ := seedISA(t, router)

	rec := do(t, router, "GET",
		fmt.Sprintf("/api/accounts/%s/projection?granularity=year&from=2024&to=2025", accountID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	series := decode[SeriesDTO](t, rec)
	assert.Equal(t, "year", series.Granularity)
	require.Len(t, series.Points, 2)
	assert.Equal(t, 2024, series.Points[0].Date)
	assert.Equal(t, "2100.00", series.Points[0].Balance)
}

func TestProjection_BadGranularity_Rejected(t *testing.T) {
	router, _ := newTestRouter(t)
	_, accountID, _ := seedISA(t, router)

	rec := do(t, router, "GET", "/api/accounts/"+accountID+"/projection?granularity=week", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjection_UnknownAccount_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, "GET", "/api/accounts/nope/projection", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTotals_SumAcrossAccounts(t *testing.T) {
	router, _ := newTestRouter(t)
	personID, _, _ := seedISA(t, router)

	// Second account with its own recorded balance, no rules
	rec := do(t, router, "POST", "/api/accounts", AccountRequest{
		Name:              "Cash",
		OwnerPersonID:     personID,
		GrowthRatePercent: strPtr("0"),
		CompoundingPeriod: "month",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	cashID := decode[AccountDTO](t, rec).ID

	rec = do(t, router, "POST", "/api/accounts/"+cashID+"/balances", BalanceRequest{
		Date: 202401, Value: "500",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, "GET", "/api/totals?date=202401", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode[TotalsDTO](t, rec)
	assert.Equal(t, "1500.00", totals.Balance)
	assert.Equal(t, "0.00", totals.Income)
}

func TestTotals_YearDate_ReadsDecember(t *testing.T) {
	router, _ := newTestRouter(t)
	seedISA(t, router)

	rec := do(t, router, "GET", "/api/totals?date=202412", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	december := decode[TotalsDTO](t, rec)

	rec = do(t, router, "GET", "/api/totals?date=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	year := decode[TotalsDTO](t, rec)

	assert.Equal(t, december.Balance, year.Balance)
	assert.Equal(t, december.Income, year.Income)
	assert.NotEqual(t, "0.00", year.Balance)
}

func TestIncomeBreakdown_PerPerson(t *testing.T) {
	router, _ := newTestRouter(t)
	_, accountID, strategyID := seedISA(t, router)

	rec := do(t, router, "POST", "/api/strategies/"+strategyID+"/withdrawals", WithdrawalRequest{
		AccountID:      accountID,
		Amount:         strPtr("200"),
		Type:           "fixed_per_month",
		StartDate:      plan.FixedDate(plan.MonthKey(2024, 6)),
		Repeating:      true,
		Period:         "month",
		TaxRatePercent: "25",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, "GET", "/api/income?date=202406", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	breakdown := decode[[]PersonIncomeDTO](t, rec)
	require.Len(t, breakdown, 1)
	assert.Equal(t, "200.00", breakdown[0].Withdrawals)
	assert.Equal(t, "50.00", breakdown[0].Tax)
	assert.Equal(t, "150.00", breakdown[0].Income)
	require.NotNil(t, breakdown[0].EffectiveTaxRatePercent)
	assert.Equal(t, "25.00", *breakdown[0].EffectiveTaxRatePercent)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettings_PartialUpdate(t *testing.T) {
	router, h := newTestRouter(t)

	before := h.Plan.RetirementDate()

	growth := "7.5"
	rec := do(t, router, "PUT", "/api/plan", SettingsRequest{
		GlobalGrowthRatePercent: &growth,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	settings := decode[SettingsDTO](t, rec)
	assert.Equal(t, "7.50", settings.GlobalGrowthRatePercent)
	// Untouched fields stay as they were
	assert.Equal(t, int(before), settings.RetirementDate)
}

func TestSettings_YearKeyedPlanStart_Rejected(t *testing.T) {
	router, _ := newTestRouter(t)

	start := 2024 // year key, must be a month
	rec := do(t, router, "PUT", "/api/plan", SettingsRequest{PlanStartDate: &start})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings_SelectUnknownStrategy_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	id := "missing"
	rec := do(t, router, "PUT", "/api/plan", SettingsRequest{SelectedStrategyID: &id})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// EXPORT / IMPORT / RESET
// =============================================================================

func TestExportImport_RoundTrip(t *testing.T) {
	router, h := newTestRouter(t)
	personID, accountID, _ := seedISA(t, router)

	rec := do(t, router, "GET", "/api/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exported := decode[ExportDTO](t, rec)
	assert.Equal(t, plan.SnapshotVersion, exported.SchemaVersion)
	require.NotEmpty(t, exported.Data)

	// WHEN: Wiping and re-importing
	rec = do(t, router, "POST", "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.Plan.People())

	rec = do(t, router, "POST", "/api/import", ImportRequest{Data: exported.Data})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Entities come back under their original IDs
	rec = do(t, router, "GET", "/api/people/"+personID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, "GET", "/api/accounts/"+accountID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestImport_BadBase64_Rejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, "POST", "/api/import", ImportRequest{Data: "not base64!!!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
