// internal/sweeper/sweeper.go
package sweeper

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/store"
)

// Sweeper is the producer of task_missed events: on a cron schedule it walks
// tasks past their deadline and scores −10 for every enrolled student who
// never submitted. Because event ids derive from (kind, task, user), a task
// already swept is a pile of no-ops on the next pass — the sweeper keeps no
// bookkeeping of its own.
type Sweeper struct {
	store     store.LedgerStore
	ledger    *ledger.Service
	scheduler *gocron.Scheduler
}

func New(st store.LedgerStore, ledgerSvc *ledger.Service) *Sweeper {
	return &Sweeper{
		store:  st,
		ledger: ledgerSvc,
	}
}

// Start schedules the sweep with a cron expression like "*/15 * * * *".
func (s *Sweeper) Start(schedule string) error {
	s.scheduler = gocron.NewScheduler(time.UTC)

	_, err := s.scheduler.Cron(schedule).Do(func() {
		if err := s.SweepOnce(time.Now().UTC()); err != nil {
			logger.Error.Printf("Sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// SweepOnce scores misses for every overdue task as of now. Safe to re-run.
func (s *Sweeper) SweepOnce(now time.Time) error {
	tasks, err := s.store.ListTasksDueBefore(now.UnixMicro())
	if err != nil {
		return fmt.Errorf("failed to list overdue tasks: %w", err)
	}

	var applied int
	for _, task := range tasks {
		missing, err := s.store.MissingSubmitters(task.TaskID, task.Department)
		if err != nil {
			return fmt.Errorf("failed to find missing submitters for %s: %w", task.TaskID, err)
		}

		for _, student := range missing {
			// The miss happens at the deadline instant, so it lands in the
			// deadline's semester even if the sweep runs much later.
			event := models.NewScoringEvent(
				models.KindTaskMissed,
				task.TaskID,
				student.UserID,
				task.Department,
				time.UnixMicro(task.Deadline).UTC(),
			)

			if _, err := s.ledger.Record(event); err != nil {
				return fmt.Errorf("failed to score miss of %s by %s: %w", task.TaskID, student.UserID, err)
			}
			applied++
		}
	}

	if applied > 0 {
		logger.Info.Printf("Sweep done: %d overdue tasks checked, %d miss events delivered", len(tasks), applied)
	} else {
		logger.Debug.Printf("Sweep done: %d overdue tasks checked, nothing missing", len(tasks))
	}

	return nil
}
