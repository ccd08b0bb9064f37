/*
store.go - Entity store with referential integrity and cascades

PURPOSE:
  Owns the top-level collections (People, Accounts, Strategies) plus the
  nested ones (Balances under Accounts, rules under Strategies) and keeps
  them referentially consistent. Deleting an account takes its balances
  and every rule pointing at it; deleting a person takes their accounts.

VERSIONING:
  Every mutating call increments a monotonic version counter exactly once,
  cascades included. Derived computations key their caches on this
  counter, so a cascade invalidates dependents in one step instead of
  flickering through intermediate states.

INDICES:
  Cascades run off secondary indices (account -> balance ids,
  account -> rule ids, owner -> account ids) maintained transactionally
  with the primary maps, so a delete is O(affected rows), not a table scan.

CONCURRENCY:
  A single RWMutex guards all state. Mutations are atomic: no partial
  cascade is ever observable. Reads hand out deep copies, never interior
  pointers.

SEE ALSO:
  - snapshot.go: Serialization and restore
  - projection.go: The main consumer of the version counter
*/
package plan

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	mu      sync.RWMutex
	version uint64

	// Plan-wide configuration. Sentinel schedule dates resolve against
	// these, and nil account growth rates track globalGrowthRate live.
	globalGrowthRate decimal.Decimal // annual percent
	planStart        Key             // month key
	retirement       Key             // month key
	selectedStrategy StrategyID

	people        map[PersonID]*Person
	peopleOrder   []PersonID
	accounts      map[AccountID]*Account
	accountOrder  []AccountID
	balances      map[BalanceID]*Balance
	strategies    map[StrategyID]*Strategy
	strategyOrder []StrategyID

	// Secondary indices for O(k) cascades.
	balancesByAccount map[AccountID][]BalanceID
	balanceByDate     map[AccountID]map[Key]BalanceID
	accountsByOwner   map[PersonID][]AccountID
	strategyOfRule    map[RuleID]StrategyID
	rulesByAccount    map[AccountID][]RuleID
}

func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	now := CurrentMonth()
	s.planStart = now
	s.retirement = now.AddYears(30)
	s.globalGrowthRate = decimal.NewFromInt(5)
	return s
}

func (s *Store) resetLocked() {
	s.people = make(map[PersonID]*Person)
	s.peopleOrder = nil
	s.accounts = make(map[AccountID]*Account)
	s.accountOrder = nil
	s.balances = make(map[BalanceID]*Balance)
	s.strategies = make(map[StrategyID]*Strategy)
	s.strategyOrder = nil
	s.balancesByAccount = make(map[AccountID][]BalanceID)
	s.balanceByDate = make(map[AccountID]map[Key]BalanceID)
	s.accountsByOwner = make(map[PersonID][]AccountID)
	s.strategyOfRule = make(map[RuleID]StrategyID)
	s.rulesByAccount = make(map[AccountID][]RuleID)
	s.selectedStrategy = ""
}

// Reset drops every entity but keeps plan configuration.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.version++
}

// Version returns the monotonic mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// =============================================================================
// PLAN CONFIGURATION
// =============================================================================

func (s *Store) GlobalGrowthRate() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.globalGrowthRate
}

func (s *Store) SetGlobalGrowthRate(rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalGrowthRate = rate
	s.version++
}

// PlanStart implements DateResolver.
func (s *Store) PlanStart() Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.planStart
}

func (s *Store) SetPlanStart(k Key) error {
	if !k.Valid() || !k.IsMonth() {
		return &ValidationError{Kind: "plan", Field: "planStart", Message: "must be a month key"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planStart = k
	s.version++
	return nil
}

// RetirementDate implements DateResolver.
func (s *Store) RetirementDate() Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retirement
}

func (s *Store) SetRetirementDate(k Key) error {
	if !k.Valid() || !k.IsMonth() {
		return &ValidationError{Kind: "plan", Field: "retirementDate", Message: "must be a month key"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retirement = k
	s.version++
	return nil
}

func (s *Store) SelectedStrategy() StrategyID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedStrategy
}

func (s *Store) SelectStrategy(id StrategyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if _, ok := s.strategies[id]; !ok {
			return &NotFoundError{Kind: "strategy", ID: string(id)}
		}
	}
	s.selectedStrategy = id
	s.version++
	return nil
}

// =============================================================================
// PEOPLE
// =============================================================================

func (s *Store) AddPerson(p Person) (*Person, error) {
	if p.Name == "" {
		return nil, &ValidationError{Kind: "person", Field: "name", Message: "is required"}
	}
	if p.ID == "" {
		p.ID = PersonID(NewID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.people[p.ID]; exists {
		return nil, &ValidationError{Kind: "person", Field: "id", Message: "already exists"}
	}
	s.peopleOrder = append(s.peopleOrder, p.ID)
	stored := p
	s.people[p.ID] = &stored
	s.version++
	out := stored
	return &out, nil
}

func (s *Store) Person(id PersonID) (*Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.people[id]
	if !ok {
		return nil, &NotFoundError{Kind: "person", ID: string(id)}
	}
	out := *p
	return &out, nil
}

func (s *Store) People() []*Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Person, 0, len(s.peopleOrder))
	for _, id := range s.peopleOrder {
		p := *s.people[id]
		out = append(out, &p)
	}
	return out
}

func (s *Store) UpdatePerson(p Person) error {
	if p.Name == "" {
		return &ValidationError{Kind: "person", Field: "name", Message: "is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[p.ID]; !ok {
		return &NotFoundError{Kind: "person", ID: string(p.ID)}
	}
	stored := p
	s.people[p.ID] = &stored
	s.version++
	return nil
}

// RemovePerson cascade-deletes the person's accounts, and transitively
// their balances and any rules referencing those accounts. One version
// bump covers the whole cascade.
func (s *Store) RemovePerson(id PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[id]; !ok {
		return &NotFoundError{Kind: "person", ID: string(id)}
	}
	for _, accID := range s.accountsByOwner[id] {
		s.removeAccountLocked(accID)
	}
	delete(s.accountsByOwner, id)
	delete(s.people, id)
	s.peopleOrder = removeID(s.peopleOrder, id)
	s.version++
	return nil
}

func (s *Store) IsValidPerson(id PersonID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.people[id]
	return ok
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) AddAccount(a Account) (*Account, error) {
	if a.Name == "" {
		return nil, &ValidationError{Kind: "account", Field: "name", Message: "is required"}
	}
	if a.Compounding != PerMonth && a.Compounding != PerYear {
		return nil, &ValidationError{Kind: "account", Field: "compounding", Message: "must be month or year"}
	}
	if a.ID == "" {
		a.ID = AccountID(NewID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.people[a.OwnerID]; !ok {
		return nil, &ValidationError{Kind: "account", Field: "owner", Message: "is required"}
	}
	// Updates go through UpdateAccount, which reconciles the owner
	// index. A silent upsert here would leave it stale.
	if _, exists := s.accounts[a.ID]; exists {
		return nil, &ValidationError{Kind: "account", Field: "id", Message: "already exists"}
	}
	s.accountOrder = append(s.accountOrder, a.ID)
	s.accountsByOwner[a.OwnerID] = append(s.accountsByOwner[a.OwnerID], a.ID)
	stored := a
	stored.GrowthRate = clonePtr(a.GrowthRate)
	s.accounts[a.ID] = &stored
	s.version++
	return copyAccount(&stored), nil
}

func (s *Store) Account(id AccountID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, &NotFoundError{Kind: "account", ID: string(id)}
	}
	return copyAccount(a), nil
}

func (s *Store) Accounts() []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.accountOrder))
	for _, id := range s.accountOrder {
		out = append(out, copyAccount(s.accounts[id]))
	}
	return out
}

func (s *Store) AccountsOwnedBy(owner PersonID) []*Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.accountsByOwner[owner]
	out := make([]*Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyAccount(s.accounts[id]))
	}
	return out
}

func (s *Store) UpdateAccount(a Account) error {
	if a.Name == "" {
		return &ValidationError{Kind: "account", Field: "name", Message: "is required"}
	}
	if a.Compounding != PerMonth && a.Compounding != PerYear {
		return &ValidationError{Kind: "account", Field: "compounding", Message: "must be month or year"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.accounts[a.ID]
	if !ok {
		return &NotFoundError{Kind: "account", ID: string(a.ID)}
	}
	if _, ok := s.people[a.OwnerID]; !ok {
		return &ValidationError{Kind: "account", Field: "owner", Message: "is required"}
	}
	if prev.OwnerID != a.OwnerID {
		s.accountsByOwner[prev.OwnerID] = removeID(s.accountsByOwner[prev.OwnerID], a.ID)
		s.accountsByOwner[a.OwnerID] = append(s.accountsByOwner[a.OwnerID], a.ID)
	}
	stored := a
	stored.GrowthRate = clonePtr(a.GrowthRate)
	s.accounts[a.ID] = &stored
	s.version++
	return nil
}

// RemoveAccount cascade-deletes the account's balances and every rule
// referencing the account, across all strategies.
func (s *Store) RemoveAccount(id AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return &NotFoundError{Kind: "account", ID: string(id)}
	}
	s.removeAccountLocked(id)
	s.version++
	return nil
}

func (s *Store) removeAccountLocked(id AccountID) {
	acc := s.accounts[id]
	for _, bid := range s.balancesByAccount[id] {
		delete(s.balances, bid)
	}
	delete(s.balancesByAccount, id)
	delete(s.balanceByDate, id)
	for _, rid := range s.rulesByAccount[id] {
		s.removeRuleLocked(rid)
	}
	delete(s.rulesByAccount, id)
	if acc != nil {
		s.accountsByOwner[acc.OwnerID] = removeID(s.accountsByOwner[acc.OwnerID], id)
	}
	delete(s.accounts, id)
	s.accountOrder = removeID(s.accountOrder, id)
}

func (s *Store) IsValidAccount(id AccountID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) AddBalance(b Balance) (*Balance, error) {
	if !b.Date.Valid() {
		return nil, &ValidationError{Kind: "balance", Field: "date", Message: "is not a valid key"}
	}
	if b.ID == "" {
		b.ID = BalanceID(NewID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[b.AccountID]; !ok {
		return nil, &NotFoundError{Kind: "account", ID: string(b.AccountID)}
	}
	if _, exists := s.balances[b.ID]; exists {
		return nil, &ValidationError{Kind: "balance", Field: "id", Message: "already exists"}
	}
	byDate := s.balanceByDate[b.AccountID]
	if byDate == nil {
		byDate = make(map[Key]BalanceID)
		s.balanceByDate[b.AccountID] = byDate
	}
	if _, exists := byDate[b.Date]; exists {
		return nil, ErrDuplicateBalance
	}
	stored := b
	s.balances[b.ID] = &stored
	s.balancesByAccount[b.AccountID] = append(s.balancesByAccount[b.AccountID], b.ID)
	byDate[b.Date] = b.ID
	s.version++
	out := stored
	return &out, nil
}

func (s *Store) Balance(id BalanceID) (*Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[id]
	if !ok {
		return nil, &NotFoundError{Kind: "balance", ID: string(id)}
	}
	out := *b
	return &out, nil
}

// BalancesFor returns the account's recorded balances sorted by date.
func (s *Store) BalancesFor(accountID AccountID) []*Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.balancesByAccount[accountID]
	out := make([]*Balance, 0, len(ids))
	for _, id := range ids {
		b := *s.balances[id]
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (s *Store) UpdateBalance(b Balance) error {
	if !b.Date.Valid() {
		return &ValidationError{Kind: "balance", Field: "date", Message: "is not a valid key"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.balances[b.ID]
	if !ok {
		return &NotFoundError{Kind: "balance", ID: string(b.ID)}
	}
	// The balance stays on its account; only date and value are editable.
	b.AccountID = prev.AccountID
	byDate := s.balanceByDate[b.AccountID]
	if prev.Date != b.Date {
		if _, exists := byDate[b.Date]; exists {
			return ErrDuplicateBalance
		}
		delete(byDate, prev.Date)
		byDate[b.Date] = b.ID
	}
	stored := b
	s.balances[b.ID] = &stored
	s.version++
	return nil
}

func (s *Store) RemoveBalance(id BalanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[id]
	if !ok {
		return &NotFoundError{Kind: "balance", ID: string(id)}
	}
	delete(s.balances, id)
	s.balancesByAccount[b.AccountID] = removeID(s.balancesByAccount[b.AccountID], id)
	delete(s.balanceByDate[b.AccountID], b.Date)
	s.version++
	return nil
}

// RecordedBalance is the projection engine's anchor lookup: the recorded
// value at exactly this key, if any.
func (s *Store) RecordedBalance(accountID AccountID, date Key) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.balanceByDate[accountID][date]
	if !ok {
		return decimal.Zero, false
	}
	return s.balances[id].Value, true
}

// EarliestBalanceDate returns the first recorded date for an account,
// pinned to month granularity.
func (s *Store) EarliestBalanceDate(accountID AccountID) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.balancesByAccount[accountID]
	if len(ids) == 0 {
		return 0, false
	}
	earliest := Key(0)
	for _, id := range ids {
		d := s.balances[id].Date.FirstMonth()
		if earliest == 0 || d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, true
}

// =============================================================================
// STRATEGIES
// =============================================================================

func (s *Store) AddStrategy(st Strategy) (*Strategy, error) {
	if st.Name == "" {
		return nil, &ValidationError{Kind: "strategy", Field: "name", Message: "is required"}
	}
	if st.ID == "" {
		st.ID = StrategyID(NewID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyStrategy(&st)
	for _, d := range stored.Deposits {
		if d.ID == "" {
			d.ID = RuleID(NewID())
		}
		if _, ok := s.accounts[d.AccountID]; !ok {
			return nil, &NotFoundError{Kind: "account", ID: string(d.AccountID)}
		}
		if _, dup := s.strategyOfRule[d.ID]; dup {
			return nil, &ValidationError{Kind: "deposit", Field: "id", Message: "already exists"}
		}
	}
	for _, w := range stored.Withdrawals {
		if w.ID == "" {
			w.ID = RuleID(NewID())
		}
		if _, ok := s.accounts[w.AccountID]; !ok {
			return nil, &NotFoundError{Kind: "account", ID: string(w.AccountID)}
		}
		if _, dup := s.strategyOfRule[w.ID]; dup {
			return nil, &ValidationError{Kind: "withdrawal", Field: "id", Message: "already exists"}
		}
	}
	// Re-adding an existing strategy would re-run rule indexing and
	// duplicate entries in rulesByAccount.
	if _, exists := s.strategies[stored.ID]; exists {
		return nil, &ValidationError{Kind: "strategy", Field: "id", Message: "already exists"}
	}
	s.strategyOrder = append(s.strategyOrder, stored.ID)
	s.strategies[stored.ID] = stored
	for _, d := range stored.Deposits {
		s.indexRuleLocked(d.ID, stored.ID, d.AccountID)
	}
	for _, w := range stored.Withdrawals {
		s.indexRuleLocked(w.ID, stored.ID, w.AccountID)
	}
	s.version++
	return copyStrategy(stored), nil
}

func (s *Store) Strategy(id StrategyID) (*Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[id]
	if !ok {
		return nil, &NotFoundError{Kind: "strategy", ID: string(id)}
	}
	return copyStrategy(st), nil
}

func (s *Store) Strategies() []*Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Strategy, 0, len(s.strategyOrder))
	for _, id := range s.strategyOrder {
		out = append(out, copyStrategy(s.strategies[id]))
	}
	return out
}

func (s *Store) RenameStrategy(id StrategyID, name string) error {
	if name == "" {
		return &ValidationError{Kind: "strategy", Field: "name", Message: "is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok {
		return &NotFoundError{Kind: "strategy", ID: string(id)}
	}
	st.Name = name
	s.version++
	return nil
}

// RemoveStrategy cascade-deletes the strategy's deposit and withdrawal
// rules. Deselects it if it was selected.
func (s *Store) RemoveStrategy(id StrategyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[id]
	if !ok {
		return &NotFoundError{Kind: "strategy", ID: string(id)}
	}
	for _, d := range st.Deposits {
		s.unindexRuleLocked(d.ID, d.AccountID)
	}
	for _, w := range st.Withdrawals {
		s.unindexRuleLocked(w.ID, w.AccountID)
	}
	delete(s.strategies, id)
	s.strategyOrder = removeID(s.strategyOrder, id)
	if s.selectedStrategy == id {
		s.selectedStrategy = ""
	}
	s.version++
	return nil
}

func (s *Store) IsValidStrategy(id StrategyID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.strategies[id]
	return ok
}

// =============================================================================
// DEPOSIT / WITHDRAWAL RULES
// =============================================================================

func (s *Store) AddDeposit(strategyID StrategyID, d Deposit) (*Deposit, error) {
	if err := validateRule("deposit", d.Start, d.End, d.Period); err != nil {
		return nil, err
	}
	if d.ID == "" {
		d.ID = RuleID(NewID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[strategyID]
	if !ok {
		return nil, &NotFoundError{Kind: "strategy", ID: string(strategyID)}
	}
	if _, ok := s.accounts[d.AccountID]; !ok {
		return nil, &NotFoundError{Kind: "account", ID: string(d.AccountID)}
	}
	if _, exists := s.strategyOfRule[d.ID]; exists {
		return nil, &ValidationError{Kind: "deposit", Field: "id", Message: "already exists"}
	}
	stored := d
	stored.End = cloneSchedule(d.End)
	st.Deposits = append(st.Deposits, &stored)
	s.indexRuleLocked(stored.ID, strategyID, stored.AccountID)
	s.version++
	out := stored
	out.End = cloneSchedule(stored.End)
	return &out, nil
}

func (s *Store) UpdateDeposit(d Deposit) error {
	if err := validateRule("deposit", d.Start, d.End, d.Period); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stID, ok := s.strategyOfRule[d.ID]
	if !ok {
		return &NotFoundError{Kind: "rule", ID: string(d.ID)}
	}
	if _, ok := s.accounts[d.AccountID]; !ok {
		return &NotFoundError{Kind: "account", ID: string(d.AccountID)}
	}
	st := s.strategies[stID]
	for i, existing := range st.Deposits {
		if existing.ID == d.ID {
			if existing.AccountID != d.AccountID {
				s.rulesByAccount[existing.AccountID] = removeID(s.rulesByAccount[existing.AccountID], d.ID)
				s.rulesByAccount[d.AccountID] = append(s.rulesByAccount[d.AccountID], d.ID)
			}
			stored := d
			stored.End = cloneSchedule(d.End)
			st.Deposits[i] = &stored
			s.version++
			return nil
		}
	}
	return &NotFoundError{Kind: "rule", ID: string(d.ID)}
}

func (s *Store) RemoveDeposit(id RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategyOfRule[id]; !ok {
		return &NotFoundError{Kind: "rule", ID: string(id)}
	}
	s.removeRuleLocked(id)
	s.version++
	return nil
}

func (s *Store) AddWithdrawal(strategyID StrategyID, w Withdrawal) (*Withdrawal, error) {
	if err := validateWithdrawal(&w); err != nil {
		return nil, err
	}
	if w.ID == "" {
		w.ID = RuleID(NewID())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strategies[strategyID]
	if !ok {
		return nil, &NotFoundError{Kind: "strategy", ID: string(strategyID)}
	}
	if _, ok := s.accounts[w.AccountID]; !ok {
		return nil, &NotFoundError{Kind: "account", ID: string(w.AccountID)}
	}
	if _, exists := s.strategyOfRule[w.ID]; exists {
		return nil, &ValidationError{Kind: "withdrawal", Field: "id", Message: "already exists"}
	}
	stored := w
	stored.Amount = clonePtr(w.Amount)
	stored.End = cloneSchedule(w.End)
	st.Withdrawals = append(st.Withdrawals, &stored)
	s.indexRuleLocked(stored.ID, strategyID, stored.AccountID)
	s.version++
	return copyWithdrawal(&stored), nil
}

func (s *Store) UpdateWithdrawal(w Withdrawal) error {
	if err := validateWithdrawal(&w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stID, ok := s.strategyOfRule[w.ID]
	if !ok {
		return &NotFoundError{Kind: "rule", ID: string(w.ID)}
	}
	if _, ok := s.accounts[w.AccountID]; !ok {
		return &NotFoundError{Kind: "account", ID: string(w.AccountID)}
	}
	st := s.strategies[stID]
	for i, existing := range st.Withdrawals {
		if existing.ID == w.ID {
			if existing.AccountID != w.AccountID {
				s.rulesByAccount[existing.AccountID] = removeID(s.rulesByAccount[existing.AccountID], w.ID)
				s.rulesByAccount[w.AccountID] = append(s.rulesByAccount[w.AccountID], w.ID)
			}
			st.Withdrawals[i] = copyWithdrawal(&w)
			s.version++
			return nil
		}
	}
	return &NotFoundError{Kind: "rule", ID: string(w.ID)}
}

func (s *Store) RemoveWithdrawal(id RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategyOfRule[id]; !ok {
		return &NotFoundError{Kind: "rule", ID: string(id)}
	}
	s.removeRuleLocked(id)
	s.version++
	return nil
}

func (s *Store) IsValidRule(id RuleID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.strategyOfRule[id]
	return ok
}

// SelectedRulesFor returns the selected strategy's rules for one account,
// in list order. Empty slices when no strategy is selected.
func (s *Store) SelectedRulesFor(accountID AccountID) ([]*Deposit, []*Withdrawal) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strategies[s.selectedStrategy]
	if !ok {
		return nil, nil
	}
	var deposits []*Deposit
	for _, d := range st.Deposits {
		if d.AccountID == accountID {
			cp := *d
			cp.End = cloneSchedule(d.End)
			deposits = append(deposits, &cp)
		}
	}
	var withdrawals []*Withdrawal
	for _, w := range st.Withdrawals {
		if w.AccountID == accountID {
			withdrawals = append(withdrawals, copyWithdrawal(w))
		}
	}
	return deposits, withdrawals
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Store) indexRuleLocked(id RuleID, strategyID StrategyID, accountID AccountID) {
	s.strategyOfRule[id] = strategyID
	s.rulesByAccount[accountID] = append(s.rulesByAccount[accountID], id)
}

func (s *Store) unindexRuleLocked(id RuleID, accountID AccountID) {
	delete(s.strategyOfRule, id)
	s.rulesByAccount[accountID] = removeID(s.rulesByAccount[accountID], id)
}

// removeRuleLocked drops a rule from its strategy's lists and indices.
func (s *Store) removeRuleLocked(id RuleID) {
	stID, ok := s.strategyOfRule[id]
	if !ok {
		return
	}
	st := s.strategies[stID]
	for i, d := range st.Deposits {
		if d.ID == id {
			st.Deposits = append(st.Deposits[:i], st.Deposits[i+1:]...)
			s.unindexRuleLocked(id, d.AccountID)
			return
		}
	}
	for i, w := range st.Withdrawals {
		if w.ID == id {
			st.Withdrawals = append(st.Withdrawals[:i], st.Withdrawals[i+1:]...)
			s.unindexRuleLocked(id, w.AccountID)
			return
		}
	}
	delete(s.strategyOfRule, id)
}

func validateRule(kind string, start ScheduleDate, end *ScheduleDate, period PeriodUnit) error {
	if !start.Valid() {
		return &ValidationError{Kind: kind, Field: "startDate", Message: "is not a valid date"}
	}
	if end != nil && !end.Valid() {
		return &ValidationError{Kind: kind, Field: "endDate", Message: "is not a valid date"}
	}
	if period != PerMonth && period != PerYear {
		return &ValidationError{Kind: kind, Field: "period", Message: "must be month or year"}
	}
	return nil
}

func validateWithdrawal(w *Withdrawal) error {
	if err := validateRule("withdrawal", w.Start, w.End, w.Period); err != nil {
		return err
	}
	switch w.Type {
	case WithdrawFixedPerMonth, WithdrawFixedPerYear, WithdrawPercentage, WithdrawStaticPercentage:
		// Amount nil is allowed: it falls back to the global growth rate.
	case WithdrawTakeInterest:
		// Takes whatever the period's interest was; no amount.
	default:
		return &ValidationError{Kind: "withdrawal", Field: "type", Message: "is not recognized"}
	}
	if w.TaxRate.IsNegative() {
		return &ValidationError{Kind: "withdrawal", Field: "taxRatePercent", Message: "must not be negative"}
	}
	return nil
}

func copyAccount(a *Account) *Account {
	cp := *a
	cp.GrowthRate = clonePtr(a.GrowthRate)
	return &cp
}

func copyWithdrawal(w *Withdrawal) *Withdrawal {
	cp := *w
	cp.Amount = clonePtr(w.Amount)
	cp.End = cloneSchedule(w.End)
	return &cp
}

func copyStrategy(st *Strategy) *Strategy {
	cp := Strategy{ID: st.ID, Name: st.Name}
	for _, d := range st.Deposits {
		dc := *d
		dc.End = cloneSchedule(d.End)
		cp.Deposits = append(cp.Deposits, &dc)
	}
	for _, w := range st.Withdrawals {
		cp.Withdrawals = append(cp.Withdrawals, copyWithdrawal(w))
	}
	return &cp
}

func cloneSchedule(sd *ScheduleDate) *ScheduleDate {
	if sd == nil {
		return nil
	}
	cp := *sd
	return &cp
}

func removeID[T ~string](ids []T, id T) []T {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
