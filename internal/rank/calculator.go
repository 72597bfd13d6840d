// internal/rank/calculator.go
package rank

import (
	"fmt"
	"sync"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/metrics"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/store"
)

// Store is the slice of the ledger store the calculator needs: a partition
// snapshot to read and per-row rank fields to write back.
type Store interface {
	ListPartitionEntries(department, semester string) ([]models.LedgerEntry, error)
	UpdateRanks(department, semester string, updates []store.RankUpdate) error
}

// Calculator recomputes dense ranks per (department, semester) partition.
//
// Requests coalesce: while a recompute for a partition is running, any number
// of further requests collapse into a single follow-up run. A snapshot that
// goes stale mid-run therefore self-heals on the next pass instead of being
// an error.
type Calculator struct {
	store Store

	mu         sync.Mutex
	partitions map[string]*partitionState
	wg         sync.WaitGroup
}

type partitionState struct {
	running bool
	queued  bool
}

func NewCalculator(st Store) *Calculator {
	return &Calculator{
		store:      st,
		partitions: make(map[string]*partitionState),
	}
}

// Request schedules an asynchronous recompute for the partition. It never
// blocks and never runs duplicate work for the same point-in-time state.
func (c *Calculator) Request(department, semester string) {
	key := department + "|" + semester

	c.mu.Lock()
	state, ok := c.partitions[key]
	if !ok {
		state = &partitionState{}
		c.partitions[key] = state
	}
	if state.running {
		state.queued = true
		c.mu.Unlock()
		return
	}
	state.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.drain(department, semester, key)
}

func (c *Calculator) drain(department, semester, key string) {
	defer c.wg.Done()

	for {
		if err := c.Recompute(department, semester); err != nil {
			logger.Error.Printf("Rank recompute failed for %s/%s: %v", department, semester, err)
		}

		c.mu.Lock()
		state := c.partitions[key]
		if state.queued {
			state.queued = false
			c.mu.Unlock()
			continue
		}
		state.running = false
		c.mu.Unlock()
		return
	}
}

// Recompute assigns dense ranks 1..N over the current partition snapshot.
// Ordering is total_points descending with ties broken by earliest
// last_updated: the first student to reach a score keeps the higher rank.
// Safe to re-run at any time; it reads only ledger_entries, never the log.
func (c *Calculator) Recompute(department, semester string) error {
	started := time.Now()

	entries, err := c.store.ListPartitionEntries(department, semester)
	if err != nil {
		return fmt.Errorf("failed to snapshot partition: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	updates := make([]store.RankUpdate, 0, len(entries))
	for i, entry := range entries {
		newRank := i + 1
		rankChange := 0
		if entry.Rank > 0 {
			// Positive means the student moved up. A never-ranked row
			// starts at 0 change, not a jump from the bottom.
			rankChange = entry.Rank - newRank
		}
		updates = append(updates, store.RankUpdate{
			UserID:     entry.UserID,
			Rank:       newRank,
			RankChange: rankChange,
		})
	}

	if err := c.store.UpdateRanks(department, semester, updates); err != nil {
		return fmt.Errorf("failed to write ranks: %w", err)
	}

	metrics.RankRecomputeDuration.WithLabelValues(department).Observe(time.Since(started).Seconds())
	logger.Debug.Printf("Recomputed %d ranks for %s/%s", len(updates), department, semester)

	return nil
}

// Wait blocks until all scheduled recomputes have drained. Used on shutdown
// and by tests that need a consistent leaderboard to assert against.
func (c *Calculator) Wait() {
	c.wg.Wait()
}
