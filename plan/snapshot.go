/*
snapshot.go - Serialization and schema migration

PURPOSE:
  Round-trips the whole store through a JSON tree for persistence and
  export. The snapshot preserves externally-minted ids exactly -
  referential integrity across the nested structures depends on it.

VERSIONING:
  Snapshots carry a schema version. On restore, a chain of migration
  functions upgrades the raw document one version at a time until it
  matches the current schema. A version newer than the current one is
  fatal: the caller falls back to a blank store instead of guessing.

SHAPE (current version):
  {version, globalGrowthRate, retirementDate, planStartDate, strategyId,
   people: [...], accounts: [...with nested balances...],
   strategies: [...with nested deposits/withdrawals...]}

HISTORY:
  v1: deposit/withdrawal rules lived in flat top-level arrays.
  v2: rules are nested under their owning strategy.
*/
package plan

import (
	"log"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// SnapshotVersion is the schema version this build writes.
const SnapshotVersion = 2

// =============================================================================
// WIRE SHAPES
// =============================================================================

type snapshotDoc struct {
	Version          int                `json:"version"`
	GlobalGrowthRate decimal.Decimal    `json:"globalGrowthRate"`
	RetirementDate   Key                `json:"retirementDate"`
	PlanStartDate    Key                `json:"planStartDate"`
	StrategyID       StrategyID         `json:"strategyId,omitempty"`
	People           []snapshotPerson   `json:"people"`
	Accounts         []snapshotAccount  `json:"accounts"`
	Strategies       []snapshotStrategy `json:"strategies"`
}

type snapshotPerson struct {
	ID          PersonID `json:"id"`
	Name        string   `json:"name"`
	DateOfBirth Key      `json:"dateOfBirth"`
}

type snapshotAccount struct {
	ID          AccountID        `json:"id"`
	Name        string           `json:"name"`
	OwnerID     PersonID         `json:"ownerPersonId"`
	GrowthRate  *decimal.Decimal `json:"growthRatePercent"`
	Compounding PeriodUnit       `json:"compoundingPeriod"`
	Balances    []snapshotBalance `json:"balances"`
}

type snapshotBalance struct {
	ID    BalanceID       `json:"id"`
	Date  Key             `json:"date"`
	Value decimal.Decimal `json:"value"`
}

type snapshotStrategy struct {
	ID          StrategyID           `json:"id"`
	Name        string               `json:"name"`
	Deposits    []snapshotDeposit    `json:"deposits"`
	Withdrawals []snapshotWithdrawal `json:"withdrawals"`
}

type snapshotDeposit struct {
	ID        RuleID          `json:"id"`
	AccountID AccountID       `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Start     ScheduleDate    `json:"startDate"`
	Repeating bool            `json:"repeating"`
	End       *ScheduleDate   `json:"endDate,omitempty"`
	Period    PeriodUnit      `json:"period"`
	Hidden    bool            `json:"hidden"`
}

type snapshotWithdrawal struct {
	ID        RuleID           `json:"id"`
	AccountID AccountID        `json:"accountId"`
	Amount    *decimal.Decimal `json:"amount"`
	Type      WithdrawalType   `json:"type"`
	Start     ScheduleDate     `json:"startDate"`
	Repeating bool             `json:"repeating"`
	End       *ScheduleDate    `json:"endDate,omitempty"`
	Period    PeriodUnit       `json:"period"`
	TaxRate   decimal.Decimal  `json:"taxRatePercent"`
	Hidden    bool             `json:"hidden"`
}

// =============================================================================
// EXPORT
// =============================================================================

// ToSnapshot serializes the whole store as one consistent JSON document.
func (s *Store) ToSnapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := snapshotDoc{
		Version:          SnapshotVersion,
		GlobalGrowthRate: s.globalGrowthRate,
		RetirementDate:   s.retirement,
		PlanStartDate:    s.planStart,
		StrategyID:       s.selectedStrategy,
		People:           []snapshotPerson{},
		Accounts:         []snapshotAccount{},
		Strategies:       []snapshotStrategy{},
	}
	for _, id := range s.peopleOrder {
		p := s.people[id]
		doc.People = append(doc.People, snapshotPerson{ID: p.ID, Name: p.Name, DateOfBirth: p.DateOfBirth})
	}
	for _, id := range s.accountOrder {
		a := s.accounts[id]
		sa := snapshotAccount{
			ID:          a.ID,
			Name:        a.Name,
			OwnerID:     a.OwnerID,
			GrowthRate:  clonePtr(a.GrowthRate),
			Compounding: a.Compounding,
			Balances:    []snapshotBalance{},
		}
		for _, bid := range s.balancesByAccount[id] {
			b := s.balances[bid]
			sa.Balances = append(sa.Balances, snapshotBalance{ID: b.ID, Date: b.Date, Value: b.Value})
		}
		doc.Accounts = append(doc.Accounts, sa)
	}
	for _, id := range s.strategyOrder {
		st := s.strategies[id]
		ss := snapshotStrategy{ID: st.ID, Name: st.Name, Deposits: []snapshotDeposit{}, Withdrawals: []snapshotWithdrawal{}}
		for _, d := range st.Deposits {
			ss.Deposits = append(ss.Deposits, snapshotDeposit{
				ID: d.ID, AccountID: d.AccountID, Amount: d.Amount, Start: d.Start,
				Repeating: d.Repeating, End: cloneSchedule(d.End), Period: d.Period, Hidden: d.Hidden,
			})
		}
		for _, w := range st.Withdrawals {
			ss.Withdrawals = append(ss.Withdrawals, snapshotWithdrawal{
				ID: w.ID, AccountID: w.AccountID, Amount: clonePtr(w.Amount), Type: w.Type, Start: w.Start,
				Repeating: w.Repeating, End: cloneSchedule(w.End), Period: w.Period, TaxRate: w.TaxRate, Hidden: w.Hidden,
			})
		}
		doc.Strategies = append(doc.Strategies, ss)
	}
	return json.Marshal(doc)
}

// =============================================================================
// RESTORE
// =============================================================================

// RestoreFromSnapshot replaces the store's contents with a snapshot,
// migrating older schema versions forward first. Ids are preserved
// exactly as supplied. On any error the store is left untouched.
func (s *Store) RestoreFromSnapshot(data []byte) error {
	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return &SnapshotVersionError{Found: 0, Current: SnapshotVersion}
	}
	if header.Version < 1 || header.Version > SnapshotVersion {
		return &SnapshotVersionError{Found: header.Version, Current: SnapshotVersion}
	}

	// Migrate the raw document one version at a time.
	if header.Version < SnapshotVersion {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return &SnapshotVersionError{Found: header.Version, Current: SnapshotVersion}
		}
		for v := header.Version; v < SnapshotVersion; v++ {
			migrated, err := snapshotMigrations[v](raw)
			if err != nil {
				return err
			}
			raw = migrated
		}
		remarshaled, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		data = remarshaled
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()

	s.globalGrowthRate = doc.GlobalGrowthRate
	if doc.PlanStartDate.Valid() {
		s.planStart = doc.PlanStartDate.FirstMonth()
	}
	if doc.RetirementDate.Valid() {
		s.retirement = doc.RetirementDate.FirstMonth()
	}

	for _, p := range doc.People {
		id := p.ID
		if id == "" {
			id = PersonID(NewID())
		}
		s.people[id] = &Person{ID: id, Name: p.Name, DateOfBirth: p.DateOfBirth}
		s.peopleOrder = append(s.peopleOrder, id)
	}
	for _, sa := range doc.Accounts {
		if _, ok := s.people[sa.OwnerID]; !ok {
			// Tolerated: the account still projects, ownership rollups skip it.
			log.Printf("[WARN] snapshot: account %s references missing person %s", sa.ID, sa.OwnerID)
		}
		id := sa.ID
		if id == "" {
			id = AccountID(NewID())
		}
		acc := &Account{ID: id, Name: sa.Name, OwnerID: sa.OwnerID, GrowthRate: clonePtr(sa.GrowthRate), Compounding: sa.Compounding}
		if acc.Compounding != PerMonth && acc.Compounding != PerYear {
			acc.Compounding = PerYear
		}
		s.accounts[id] = acc
		s.accountOrder = append(s.accountOrder, id)
		s.accountsByOwner[sa.OwnerID] = append(s.accountsByOwner[sa.OwnerID], id)
		byDate := make(map[Key]BalanceID)
		s.balanceByDate[id] = byDate
		for _, sb := range sa.Balances {
			bid := sb.ID
			if bid == "" {
				bid = BalanceID(NewID())
			}
			if _, dup := byDate[sb.Date]; dup {
				log.Printf("[WARN] snapshot: duplicate balance for account %s at %s dropped", id, sb.Date)
				continue
			}
			s.balances[bid] = &Balance{ID: bid, AccountID: id, Date: sb.Date, Value: sb.Value}
			s.balancesByAccount[id] = append(s.balancesByAccount[id], bid)
			byDate[sb.Date] = bid
		}
	}
	for _, ss := range doc.Strategies {
		id := ss.ID
		if id == "" {
			id = StrategyID(NewID())
		}
		st := &Strategy{ID: id, Name: ss.Name}
		for _, sd := range ss.Deposits {
			rid := sd.ID
			if rid == "" {
				rid = RuleID(NewID())
			}
			if _, ok := s.accounts[sd.AccountID]; !ok {
				log.Printf("[WARN] snapshot: deposit %s references missing account %s", rid, sd.AccountID)
			}
			d := &Deposit{ID: rid, AccountID: sd.AccountID, Amount: sd.Amount, Start: sd.Start,
				Repeating: sd.Repeating, End: cloneSchedule(sd.End), Period: sd.Period, Hidden: sd.Hidden}
			st.Deposits = append(st.Deposits, d)
			s.indexRuleLocked(rid, id, sd.AccountID)
		}
		for _, sw := range ss.Withdrawals {
			rid := sw.ID
			if rid == "" {
				rid = RuleID(NewID())
			}
			if _, ok := s.accounts[sw.AccountID]; !ok {
				log.Printf("[WARN] snapshot: withdrawal %s references missing account %s", rid, sw.AccountID)
			}
			w := &Withdrawal{ID: rid, AccountID: sw.AccountID, Amount: clonePtr(sw.Amount), Type: sw.Type,
				Start: sw.Start, Repeating: sw.Repeating, End: cloneSchedule(sw.End), Period: sw.Period,
				TaxRate: sw.TaxRate, Hidden: sw.Hidden}
			st.Withdrawals = append(st.Withdrawals, w)
			s.indexRuleLocked(rid, id, sw.AccountID)
		}
		s.strategies[id] = st
		s.strategyOrder = append(s.strategyOrder, id)
	}
	if _, ok := s.strategies[doc.StrategyID]; ok {
		s.selectedStrategy = doc.StrategyID
	}
	s.version++
	return nil
}

// =============================================================================
// MIGRATIONS
// =============================================================================

// snapshotMigrations[v] upgrades a raw document from version v to v+1.
var snapshotMigrations = map[int]func(map[string]any) (map[string]any, error){
	1: migrateV1RulesIntoStrategies,
}

// migrateV1RulesIntoStrategies moves the v1 flat top-level deposit and
// withdrawal arrays under the selected strategy, creating a default
// strategy when none exists.
func migrateV1RulesIntoStrategies(raw map[string]any) (map[string]any, error) {
	deposits, _ := raw["deposits"].([]any)
	withdrawals, _ := raw["withdrawals"].([]any)
	delete(raw, "deposits")
	delete(raw, "withdrawals")

	strategies, _ := raw["strategies"].([]any)
	if len(strategies) == 0 {
		strategies = []any{map[string]any{
			"id":   NewID(),
			"name": "Default",
		}}
	}

	// Attach the flat rules to the selected strategy, or the first one.
	targetID, _ := raw["strategyId"].(string)
	targetIdx := 0
	for i, st := range strategies {
		m, ok := st.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := m["id"].(string); id == targetID {
			targetIdx = i
			break
		}
	}
	target, ok := strategies[targetIdx].(map[string]any)
	if !ok {
		return nil, &SnapshotVersionError{Found: 1, Current: SnapshotVersion}
	}
	target["deposits"] = deposits
	target["withdrawals"] = withdrawals
	strategies[targetIdx] = target

	raw["strategies"] = strategies
	raw["version"] = 2
	return raw, nil
}
