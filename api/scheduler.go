/*
scheduler.go - Background autosave

PURPOSE:
  Periodically persists a snapshot of the in-memory plan to SQLite so a
  crash or power loss costs at most one interval of edits.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Debounced: saves only when the store version advanced since the
    last save, so an idle plan writes nothing
  - Records every save as a new snapshot row (short undo history)

CONFIGURATION:
  - Interval: How often to check (default: 30 seconds)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewAutosaveScheduler(planStore, db)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - store/sqlite/sqlite.go: SaveSnapshot
  - plan/snapshot.go: The persisted document
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/plan-engine/plan"
	"github.com/warp/plan-engine/store/sqlite"
)

// AutosaveScheduler persists the plan whenever it has changed.
type AutosaveScheduler struct {
	Plan     *plan.Store
	DB       *sqlite.Store
	Interval time.Duration
	Enabled  bool

	ticker    *time.Ticker
	stop      chan bool
	wg        sync.WaitGroup
	mu        sync.Mutex
	lastSaved uint64
}

// NewAutosaveScheduler creates a new scheduler.
func NewAutosaveScheduler(planStore *plan.Store, db *sqlite.Store) *AutosaveScheduler {
	return &AutosaveScheduler{
		Plan:     planStore,
		DB:       db,
		Interval: 30 * time.Second,
		Enabled:  true,
		stop:     make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AutosaveScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled || as.DB == nil {
		log.Println("[Scheduler] Autosave disabled, not starting")
		return
	}

	// Whatever is in memory now counts as saved; the caller just
	// restored it from disk.
	as.lastSaved = as.Plan.Version()

	as.ticker = time.NewTicker(as.Interval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Autosave started with interval: %v", as.Interval)
}

// Stop stops the scheduler, flushing one final save if needed.
func (as *AutosaveScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.saveIfDirty()
		log.Println("[Scheduler] Autosave stopped")
	}
}

func (as *AutosaveScheduler) run() {
	defer as.wg.Done()

	for {
		select {
		case <-as.ticker.C:
			as.saveIfDirty()
		case <-as.stop:
			return
		}
	}
}

func (as *AutosaveScheduler) saveIfDirty() {
	version := as.Plan.Version()
	if version == as.lastSaved {
		return
	}

	data, err := as.Plan.ToSnapshot()
	if err != nil {
		log.Printf("[Scheduler] Snapshot failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := as.DB.SaveSnapshot(ctx, plan.SnapshotVersion, version, data); err != nil {
		log.Printf("[Scheduler] Save failed: %v", err)
		return
	}

	as.lastSaved = version
	log.Printf("[Scheduler] Saved snapshot at store version %d", version)
}
