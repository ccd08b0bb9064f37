/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND DATES:
  Monetary values cross the wire as decimal strings rounded to two
  places. Dates are integer temporal keys: YYYYMM for months, YYYY for
  years. Schedule dates keep their tagged {kind, date} object shape so
  START and RETIREMENT sentinels survive the round trip unresolved.

VALIDATION:
  Validation is done in handlers and the store, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - plan/snapshot.go: The persisted document shares these conventions
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/plan-engine/plan"
)

// =============================================================================
// PEOPLE
// =============================================================================

// PersonDTO represents a person in API responses.
type PersonDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DateOfBirth int    `json:"dateOfBirth"`
}

// PersonRequest creates or updates a person.
type PersonRequest struct {
	Name        string `json:"name"`
	DateOfBirth int    `json:"dateOfBirth"`
}

// =============================================================================
// ACCOUNTS AND BALANCES
// =============================================================================

// AccountDTO represents an account in API responses. A null
// growthRatePercent means the account tracks the global rate.
type AccountDTO struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	OwnerPersonID     string  `json:"ownerPersonId"`
	GrowthRatePercent *string `json:"growthRatePercent"`
	CompoundingPeriod string  `json:"compoundingPeriod"`
}

// AccountRequest creates or updates an account.
type AccountRequest struct {
	Name              string  `json:"name"`
	OwnerPersonID     string  `json:"ownerPersonId"`
	GrowthRatePercent *string `json:"growthRatePercent"`
	CompoundingPeriod string  `json:"compoundingPeriod"`
}

// BalanceDTO represents a recorded balance.
type BalanceDTO struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Date      int    `json:"date"`
	Value     string `json:"value"`
}

// BalanceRequest records or updates a balance.
type BalanceRequest struct {
	Date  int    `json:"date"`
	Value string `json:"value"`
}

// =============================================================================
// STRATEGIES AND RULES
// =============================================================================

// StrategyDTO represents a strategy with its rules in list order.
type StrategyDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Selected    bool            `json:"selected"`
	Deposits    []DepositDTO    `json:"deposits"`
	Withdrawals []WithdrawalDTO `json:"withdrawals"`
}

// StrategyRequest creates or renames a strategy.
type StrategyRequest struct {
	Name string `json:"name"`
}

// DepositDTO represents a deposit rule.
type DepositDTO struct {
	ID        string             `json:"id"`
	AccountID string             `json:"accountId"`
	Amount    string             `json:"amount"`
	StartDate plan.ScheduleDate  `json:"startDate"`
	Repeating bool               `json:"repeating"`
	EndDate   *plan.ScheduleDate `json:"endDate,omitempty"`
	Period    string             `json:"period"`
	Hidden    bool               `json:"hidden"`
}

// DepositRequest creates or updates a deposit rule.
type DepositRequest struct {
	AccountID string             `json:"accountId"`
	Amount    string             `json:"amount"`
	StartDate plan.ScheduleDate  `json:"startDate"`
	Repeating bool               `json:"repeating"`
	EndDate   *plan.ScheduleDate `json:"endDate,omitempty"`
	Period    string             `json:"period"`
	Hidden    bool               `json:"hidden"`
}

// WithdrawalDTO represents a withdrawal rule. A null amount means the
// rule falls back to the global growth rate as its percentage.
type WithdrawalDTO struct {
	ID             string             `json:"id"`
	AccountID      string             `json:"accountId"`
	Amount         *string            `json:"amount"`
	Type           string             `json:"type"`
	StartDate      plan.ScheduleDate  `json:"startDate"`
	Repeating      bool               `json:"repeating"`
	EndDate        *plan.ScheduleDate `json:"endDate,omitempty"`
	Period         string             `json:"period"`
	TaxRatePercent string             `json:"taxRatePercent"`
	Hidden         bool               `json:"hidden"`
}

// WithdrawalRequest creates or updates a withdrawal rule.
type WithdrawalRequest struct {
	AccountID      string             `json:"accountId"`
	Amount         *string            `json:"amount"`
	Type           string             `json:"type"`
	StartDate      plan.ScheduleDate  `json:"startDate"`
	Repeating      bool               `json:"repeating"`
	EndDate        *plan.ScheduleDate `json:"endDate,omitempty"`
	Period         string             `json:"period"`
	TaxRatePercent string             `json:"taxRatePercent"`
	Hidden         bool               `json:"hidden"`
}

// =============================================================================
// PROJECTIONS AND AGGREGATES
// =============================================================================

// PointDTO is one row of a projected series.
type PointDTO struct {
	Date        int    `json:"date"`
	Balance     string `json:"balance"`
	Interest    string `json:"interest"`
	Deposits    string `json:"deposits"`
	Withdrawals string `json:"withdrawals"`
	Income      string `json:"income"`
	Tax         string `json:"tax"`
	Actual      bool   `json:"actual"`
}

// SeriesDTO wraps a projected series for one account.
type SeriesDTO struct {
	AccountID   string     `json:"accountId"`
	Granularity string     `json:"granularity"`
	Points      []PointDTO `json:"points"`
}

// TotalsDTO carries plan-wide aggregates at a single date.
type TotalsDTO struct {
	Date    int    `json:"date"`
	Balance string `json:"balance"`
	Income  string `json:"income"`
}

// PersonIncomeDTO is one person's slice of the income breakdown. A null
// effectiveTaxRatePercent means no withdrawals occurred at that date.
type PersonIncomeDTO struct {
	PersonID                string  `json:"personId"`
	Name                    string  `json:"name"`
	Withdrawals             string  `json:"withdrawals"`
	Tax                     string  `json:"tax"`
	Income                  string  `json:"income"`
	EffectiveTaxRatePercent *string `json:"effectiveTaxRatePercent"`
}

// =============================================================================
// PLAN SETTINGS
// =============================================================================

// SettingsDTO is the plan-wide configuration.
type SettingsDTO struct {
	GlobalGrowthRatePercent string `json:"globalGrowthRatePercent"`
	PlanStartDate           int    `json:"planStartDate"`
	RetirementDate          int    `json:"retirementDate"`
	SelectedStrategyID      string `json:"selectedStrategyId,omitempty"`
	Version                 uint64 `json:"version"`
}

// SettingsRequest updates plan settings. Nil fields are left unchanged.
type SettingsRequest struct {
	GlobalGrowthRatePercent *string `json:"globalGrowthRatePercent"`
	PlanStartDate           *int    `json:"planStartDate"`
	RetirementDate          *int    `json:"retirementDate"`
	SelectedStrategyID      *string `json:"selectedStrategyId"`
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// ExportDTO carries the full plan as a base64 snapshot blob.
type ExportDTO struct {
	SchemaVersion int    `json:"schemaVersion"`
	Data          string `json:"data"`
}

// ImportRequest restores the plan from a base64 snapshot blob.
type ImportRequest struct {
	Data string `json:"data"`
}

// SnapshotRecordDTO describes one persisted snapshot, newest first.
type SnapshotRecordDTO struct {
	ID            int64  `json:"id"`
	SchemaVersion int    `json:"schemaVersion"`
	StoreVersion  uint64 `json:"storeVersion"`
	SavedAt       string `json:"savedAt"`
}

// ErrorResponse is the JSON error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// money renders a decimal for the wire, rounded to cents.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func toPersonDTO(p *plan.Person) PersonDTO {
	return PersonDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		DateOfBirth: int(p.DateOfBirth),
	}
}

func toAccountDTO(a *plan.Account) AccountDTO {
	return AccountDTO{
		ID:                string(a.ID),
		Name:              a.Name,
		OwnerPersonID:     string(a.OwnerID),
		GrowthRatePercent: moneyPtr(a.GrowthRate),
		CompoundingPeriod: string(a.Compounding),
	}
}

func toBalanceDTO(b *plan.Balance) BalanceDTO {
	return BalanceDTO{
		ID:        string(b.ID),
		AccountID: string(b.AccountID),
		Date:      int(b.Date),
		Value:     money(b.Value),
	}
}

func toDepositDTO(d *plan.Deposit) DepositDTO {
	return DepositDTO{
		ID:        string(d.ID),
		AccountID: string(d.AccountID),
		Amount:    money(d.Amount),
		StartDate: d.Start,
		Repeating: d.Repeating,
		EndDate:   d.End,
		Period:    string(d.Period),
		Hidden:    d.Hidden,
	}
}

func toWithdrawalDTO(w *plan.Withdrawal) WithdrawalDTO {
	return WithdrawalDTO{
		ID:             string(w.ID),
		AccountID:      string(w.AccountID),
		Amount:         moneyPtr(w.Amount),
		Type:           string(w.Type),
		StartDate:      w.Start,
		Repeating:      w.Repeating,
		EndDate:        w.End,
		Period:         string(w.Period),
		TaxRatePercent: money(w.TaxRate),
		Hidden:         w.Hidden,
	}
}

func toStrategyDTO(s *plan.Strategy, selected bool) StrategyDTO {
	dto := StrategyDTO{
		ID:          string(s.ID),
		Name:        s.Name,
		Selected:    selected,
		Deposits:    []DepositDTO{},
		Withdrawals: []WithdrawalDTO{},
	}
	for _, d := range s.Deposits {
		dto.Deposits = append(dto.Deposits, toDepositDTO(d))
	}
	for _, w := range s.Withdrawals {
		dto.Withdrawals = append(dto.Withdrawals, toWithdrawalDTO(w))
	}
	return dto
}

func toPointDTO(p plan.Point) PointDTO {
	return PointDTO{
		Date:        int(p.Date),
		Balance:     money(p.Balance),
		Interest:    money(p.Interest),
		Deposits:    money(p.Deposits),
		Withdrawals: money(p.Withdrawals),
		Income:      money(p.Income),
		Tax:         money(p.Tax),
		Actual:      p.Actual,
	}
}

func toPersonIncomeDTO(pi plan.PersonIncome) PersonIncomeDTO {
	return PersonIncomeDTO{
		PersonID:                string(pi.PersonID),
		Name:                    pi.Name,
		Withdrawals:             money(pi.Withdrawals),
		Tax:                     money(pi.Tax),
		Income:                  money(pi.Income),
		EffectiveTaxRatePercent: moneyPtr(pi.EffectiveTaxRate),
	}
}
