/*
handlers.go - HTTP API handlers for the plan engine

PURPOSE:
  Exposes the savings plan engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Settings:
    GET    /api/plan                       Plan-wide settings
    PUT    /api/plan                       Update settings (partial)

  People:
    GET    /api/people                     List people
    POST   /api/people                     Create person
    GET    /api/people/{id}                Get person
    PUT    /api/people/{id}                Update person
    DELETE /api/people/{id}                Remove person (cascades)

  Accounts:
    GET    /api/accounts                   List accounts
    POST   /api/accounts                   Create account
    GET    /api/accounts/{id}              Get account
    PUT    /api/accounts/{id}              Update account
    DELETE /api/accounts/{id}              Remove account (cascades)
    GET    /api/accounts/{id}/balances     Recorded balances
    POST   /api/accounts/{id}/balances     Record a balance
    GET    /api/accounts/{id}/projection   Projected series (month or year)

  Balances:
    PUT    /api/balances/{id}              Update recorded balance
    DELETE /api/balances/{id}              Remove recorded balance

  Strategies and rules:
    GET    /api/strategies                 List strategies with rules
    POST   /api/strategies                 Create strategy
    GET    /api/strategies/{id}            Get strategy
    PUT    /api/strategies/{id}            Rename strategy
    DELETE /api/strategies/{id}            Remove strategy (cascades)
    POST   /api/strategies/{id}/select     Make strategy drive projections
    POST   /api/strategies/{id}/deposits   Add deposit rule
    POST   /api/strategies/{id}/withdrawals Add withdrawal rule
    PUT    /api/deposits/{id}              Update deposit rule
    DELETE /api/deposits/{id}              Remove deposit rule
    PUT    /api/withdrawals/{id}           Update withdrawal rule
    DELETE /api/withdrawals/{id}           Remove withdrawal rule

  Aggregates:
    GET    /api/totals?date=YYYYMM         Plan-wide balance and income
    GET    /api/income?date=YYYYMM         Per-person income breakdown

  Persistence:
    GET    /api/export                     Full plan as base64 snapshot
    POST   /api/import                     Restore plan from base64 snapshot
    GET    /api/snapshots                  Autosave history
    POST   /api/reset                      Wipe the plan

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unrecognized snapshot version
  - 404: Entity not found
  - 409: Duplicate recorded balance for (account, date)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background autosave
*/
package api

import (
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/warp/plan-engine/plan"
	"github.com/warp/plan-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Plan   *plan.Store
	Engine *plan.Engine
	Agg    *plan.Aggregator

	// DB is the durability layer. Nil disables persistence endpoints
	// that need it (snapshot history) and immediate saves.
	DB *sqlite.Store
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(store *plan.Store, engine *plan.Engine, db *sqlite.Store) *Handler {
	return &Handler{
		Plan:   store,
		Engine: engine,
		Agg:    plan.NewAggregator(store, engine),
		DB:     db,
	}
}

// =============================================================================
// PLAN SETTINGS
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settingsDTO())
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.GlobalGrowthRatePercent != nil {
		rate, err := decimal.NewFromString(*req.GlobalGrowthRatePercent)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid growth rate", err)
			return
		}
		h.Plan.SetGlobalGrowthRate(rate)
	}
	if req.PlanStartDate != nil {
		if err := h.Plan.SetPlanStart(plan.Key(*req.PlanStartDate)); err != nil {
			domainError(w, err)
			return
		}
	}
	if req.RetirementDate != nil {
		if err := h.Plan.SetRetirementDate(plan.Key(*req.RetirementDate)); err != nil {
			domainError(w, err)
			return
		}
	}
	if req.SelectedStrategyID != nil {
		if err := h.Plan.SelectStrategy(plan.StrategyID(*req.SelectedStrategyID)); err != nil {
			domainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.settingsDTO())
}

func (h *Handler) settingsDTO() SettingsDTO {
	return SettingsDTO{
		GlobalGrowthRatePercent: money(h.Plan.GlobalGrowthRate()),
		PlanStartDate:           int(h.Plan.PlanStart()),
		RetirementDate:          int(h.Plan.RetirementDate()),
		SelectedStrategyID:      string(h.Plan.SelectedStrategy()),
		Version:                 h.Plan.Version(),
	}
}

// =============================================================================
// PEOPLE
// =============================================================================

func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	people := h.Plan.People()
	dtos := make([]PersonDTO, 0, len(people))
	for _, p := range people {
		dtos = append(dtos, toPersonDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req PersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Plan.AddPerson(plan.Person{
		Name:        req.Name,
		DateOfBirth: plan.Key(req.DateOfBirth),
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonDTO(p))
}

func (h *Handler) GetPerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.Plan.Person(plan.PersonID(chi.URLParam(r, "id")))
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTO(p))
}

func (h *Handler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	var req PersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := plan.PersonID(chi.URLParam(r, "id"))
	err := h.Plan.UpdatePerson(plan.Person{
		ID:          id,
		Name:        req.Name,
		DateOfBirth: plan.Key(req.DateOfBirth),
	})
	if err != nil {
		domainError(w, err)
		return
	}
	p, err := h.Plan.Person(id)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTO(p))
}

func (h *Handler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := h.Plan.RemovePerson(plan.PersonID(chi.URLParam(r, "id"))); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.Plan.Accounts()
	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		dtos = append(dtos, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	acc, parseErr := accountFromRequest(req)
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid growth rate", parseErr)
		return
	}
	created, err := h.Plan.AddAccount(acc)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(created))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Plan.Account(plan.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	acc, parseErr := accountFromRequest(req)
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid growth rate", parseErr)
		return
	}
	acc.ID = plan.AccountID(chi.URLParam(r, "id"))
	if err := h.Plan.UpdateAccount(acc); err != nil {
		domainError(w, err)
		return
	}
	updated, err := h.Plan.Account(acc.ID)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(updated))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Plan.RemoveAccount(plan.AccountID(chi.URLParam(r, "id"))); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func accountFromRequest(req AccountRequest) (plan.Account, error) {
	acc := plan.Account{
		Name:        req.Name,
		OwnerID:     plan.PersonID(req.OwnerPersonID),
		Compounding: plan.PeriodUnit(req.CompoundingPeriod),
	}
	if req.GrowthRatePercent != nil {
		rate, err := decimal.NewFromString(*req.GrowthRatePercent)
		if err != nil {
			return plan.Account{}, err
		}
		acc.GrowthRate = &rate
	}
	return acc, nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	id := plan.AccountID(chi.URLParam(r, "id"))
	if _, err := h.Plan.Account(id); err != nil {
		domainError(w, err)
		return
	}
	balances := h.Plan.BalancesFor(id)
	dtos := make([]BalanceDTO, 0, len(balances))
	for _, b := range balances {
		dtos = append(dtos, toBalanceDTO(b))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateBalance(w http.ResponseWriter, r *http.Request) {
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid balance value", err)
		return
	}
	b, err := h.Plan.AddBalance(plan.Balance{
		AccountID: plan.AccountID(chi.URLParam(r, "id")),
		Date:      plan.Key(req.Date),
		Value:     value,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(b))
}

func (h *Handler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid balance value", err)
		return
	}
	id := plan.BalanceID(chi.URLParam(r, "id"))
	existing, err := h.Plan.Balance(id)
	if err != nil {
		domainError(w, err)
		return
	}
	err = h.Plan.UpdateBalance(plan.Balance{
		ID:        id,
		AccountID: existing.AccountID,
		Date:      plan.Key(req.Date),
		Value:     value,
	})
	if err != nil {
		domainError(w, err)
		return
	}
	updated, err := h.Plan.Balance(id)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(updated))
}

func (h *Handler) DeleteBalance(w http.ResponseWriter, r *http.Request) {
	if err := h.Plan.RemoveBalance(plan.BalanceID(chi.URLParam(r, "id"))); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STRATEGIES
// =============================================================================

func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	selected := h.Plan.SelectedStrategy()
	strategies := h.Plan.Strategies()
	dtos := make([]StrategyDTO, 0, len(strategies))
	for _, s := range strategies {
		dtos = append(dtos, toStrategyDTO(s, s.ID == selected))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.Plan.AddStrategy(plan.Strategy{Name: req.Name})
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStrategyDTO(s, s.ID == h.Plan.SelectedStrategy()))
}

func (h *Handler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	id := plan.StrategyID(chi.URLParam(r, "id"))
	s, err := h.Plan.Strategy(id)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStrategyDTO(s, id == h.Plan.SelectedStrategy()))
}

func (h *Handler) RenameStrategy(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id := plan.StrategyID(chi.URLParam(r, "id"))
	if err := h.Plan.RenameStrategy(id, req.Name); err != nil {
		domainError(w, err)
		return
	}
	s, err := h.Plan.Strategy(id)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStrategyDTO(s, id == h.Plan.SelectedStrategy()))
}

func (h *Handler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := h.Plan.RemoveStrategy(plan.StrategyID(chi.URLParam(r, "id"))); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectStrategy(w http.ResponseWriter, r *http.Request) {
	if err := h.Plan.SelectStrategy(plan.StrategyID(chi.URLParam(r, "id"))); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settingsDTO())
}

// =============================================================================
// RULES
// =============================================================================

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d, parseErr := depositFromRequest(req)
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", parseErr)
		return
	}
	created, err := h.Plan.AddDeposit(plan.StrategyID(chi.URLParam(r, "id")), d)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepositDTO(created))
}

func (h *Handler) UpdateDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d, parseErr := depositFromRequest(req)
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", parseErr)
		return
	}
	d.ID = plan.RuleID(chi.URLParam(r, "id"))
	if err := h.Plan.UpdateDeposit(d); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositDTO(&d))
}

func (h *Handler) DeleteDeposit(w http.ResponseWriter, r *http.Request) {
	if err := h.Plan.RemoveDeposit(plan.RuleID(chi.URLParam(r, "id"))); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wd, parseErr := withdrawalFromRequest(req)
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount or tax rate", parseErr)
		return
	}
	created, err := h.Plan.AddWithdrawal(plan.StrategyID(chi.URLParam(r, "id")), wd)
	if err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWithdrawalDTO(created))
}

func (h *Handler) UpdateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wd, parseErr := withdrawalFromRequest(req)
	if parseErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount or tax rate", parseErr)
		return
	}
	wd.ID = plan.RuleID(chi.URLParam(r, "id"))
	if err := h.Plan.UpdateWithdrawal(wd); err != nil {
		domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTO(&wd))
}

func (h *Handler) DeleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	if err := h.Plan.RemoveWithdrawal(plan.RuleID(chi.URLParam(r, "id"))); err != nil {
		domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func depositFromRequest(req DepositRequest) (plan.Deposit, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return plan.Deposit{}, err
	}
	return plan.Deposit{
		AccountID: plan.AccountID(req.AccountID),
		Amount:    amount,
		Start:     req.StartDate,
		Repeating: req.Repeating,
		End:       req.EndDate,
		Period:    plan.PeriodUnit(req.Period),
		Hidden:    req.Hidden,
	}, nil
}

func withdrawalFromRequest(req WithdrawalRequest) (plan.Withdrawal, error) {
	wd := plan.Withdrawal{
		AccountID: plan.AccountID(req.AccountID),
		Type:      plan.WithdrawalType(req.Type),
		Start:     req.StartDate,
		Repeating: req.Repeating,
		End:       req.EndDate,
		Period:    plan.PeriodUnit(req.Period),
		Hidden:    req.Hidden,
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return plan.Withdrawal{}, err
		}
		wd.Amount = &amount
	}
	if req.TaxRatePercent != "" {
		rate, err := decimal.NewFromString(req.TaxRatePercent)
		if err != nil {
			return plan.Withdrawal{}, err
		}
		wd.TaxRate = rate
	}
	return wd, nil
}

// =============================================================================
// PROJECTIONS AND AGGREGATES
// =============================================================================

func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	id := plan.AccountID(chi.URLParam(r, "id"))
	series, err := h.Engine.Account(id)
	if err != nil {
		domainError(w, err)
		return
	}

	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "month"
	}

	switch granularity {
	case "month":
		from, to := series.Start(), series.End()
		if v, ok := queryKey(r, "from"); ok {
			from = v.FirstMonth()
		}
		if v, ok := queryKey(r, "to"); ok {
			to = v.LastMonth()
		}
		// Clamp to the materialized window; At reports false outside it.
		if from.Before(series.Start()) {
			from = series.Start()
		}
		if to.After(series.End()) {
			to = series.End()
		}
		points := []PointDTO{}
		for t := from; t.BeforeOrEqual(to); t = t.NextMonth() {
			p, ok := series.At(t)
			if !ok {
				break
			}
			points = append(points, toPointDTO(p))
		}
		writeJSON(w, http.StatusOK, SeriesDTO{
			AccountID:   string(id),
			Granularity: "month",
			Points:      points,
		})

	case "year":
		fromYear, toYear := series.Start().Year(), series.End().Year()
		if v, ok := queryKey(r, "from"); ok {
			fromYear = v.Year()
		}
		if v, ok := queryKey(r, "to"); ok {
			toYear = v.Year()
		}
		points, err := h.Agg.YearSeries(id, fromYear, toYear)
		if err != nil {
			domainError(w, err)
			return
		}
		dtos := make([]PointDTO, 0, len(points))
		for _, p := range points {
			dtos = append(dtos, toPointDTO(p))
		}
		writeJSON(w, http.StatusOK, SeriesDTO{
			AccountID:   string(id),
			Granularity: "year",
			Points:      dtos,
		})

	default:
		writeError(w, http.StatusBadRequest, "Granularity must be month or year", nil)
	}
}

func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	t, ok := queryKey(r, "date")
	if !ok {
		t = plan.CurrentMonth()
	}
	writeJSON(w, http.StatusOK, TotalsDTO{
		Date:    int(t),
		Balance: money(h.Agg.TotalBalanceAt(t)),
		Income:  money(h.Agg.TotalIncomeAt(t)),
	})
}

func (h *Handler) GetIncomeBreakdown(w http.ResponseWriter, r *http.Request) {
	t, ok := queryKey(r, "date")
	if !ok {
		t = plan.CurrentMonth()
	}
	breakdown := h.Agg.IncomeBreakdownAt(t)
	dtos := make([]PersonIncomeDTO, 0, len(breakdown))
	for _, pi := range breakdown {
		dtos = append(dtos, toPersonIncomeDTO(pi))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EXPORT / IMPORT / RESET
// =============================================================================

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.Plan.ToSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export plan", err)
		return
	}
	writeJSON(w, http.StatusOK, ExportDTO{
		SchemaVersion: plan.SnapshotVersion,
		Data:          base64.StdEncoding.EncodeToString(data),
	})
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid base64 payload", err)
		return
	}
	if err := h.Plan.RestoreFromSnapshot(data); err != nil {
		domainError(w, err)
		return
	}
	h.persistNow(r)
	writeJSON(w, http.StatusOK, h.settingsDTO())
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.Plan.Reset()
	h.persistNow(r)
	writeJSON(w, http.StatusOK, h.settingsDTO())
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil {
		writeJSON(w, http.StatusOK, []SnapshotRecordDTO{})
		return
	}
	records, err := h.DB.History(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}
	dtos := make([]SnapshotRecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, SnapshotRecordDTO{
			ID:            rec.ID,
			SchemaVersion: rec.SchemaVersion,
			StoreVersion:  rec.StoreVersion,
			SavedAt:       rec.SavedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// persistNow saves a snapshot immediately after destructive operations
// so a crash before the next autosave tick cannot resurrect old data.
func (h *Handler) persistNow(r *http.Request) {
	if h.DB == nil {
		return
	}
	data, err := h.Plan.ToSnapshot()
	if err != nil {
		log.Printf("[WARN] snapshot after mutation failed: %v", err)
		return
	}
	if err := h.DB.SaveSnapshot(r.Context(), plan.SnapshotVersion, h.Plan.Version(), data); err != nil {
		log.Printf("[WARN] persisting snapshot failed: %v", err)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// queryKey parses an integer temporal key from a query parameter.
func queryKey(r *http.Request, name string) (plan.Key, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	k := plan.Key(n)
	if !k.Valid() {
		return 0, false
	}
	return k, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// domainError maps engine errors onto HTTP status codes.
func domainError(w http.ResponseWriter, err error) {
	var ve *plan.ValidationError
	var sv *plan.SnapshotVersionError

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.As(err, &sv):
		writeError(w, http.StatusBadRequest, "Unrecognized snapshot version", err)
	case errors.Is(err, plan.ErrDuplicateBalance):
		writeError(w, http.StatusConflict, "Balance already recorded for that date", err)
	case plan.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case plan.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
