package export

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-co-op/gocron"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/app"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/store"
)

type GSheetExporter struct {
	config        *app.Config
	store         store.LedgerStore
	scheduler     *gocron.Scheduler
	sheetsService *sheets.Service
}

// NewGSheetExporter schedules a leaderboard dump per configured department.
// The sheet gets one row per ranked student, refreshed on the cron schedule.
func NewGSheetExporter(config *app.Config, st store.LedgerStore) (*gocron.Scheduler, error) {
	ctx := context.Background()
	scheduler := gocron.NewScheduler(time.UTC)

	for department, configs := range config.GSheet {
		for _, cfg := range configs {
			svc, err := sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
			if err != nil {
				return nil, fmt.Errorf("failed to create sheets service: %w", err)
			}

			exporter := &GSheetExporter{
				config:        config,
				store:         st,
				scheduler:     scheduler,
				sheetsService: svc,
			}

			department := department
			cfg := cfg
			_, err = scheduler.Cron(cfg.Schedule).Do(func() {
				if err := exporter.Export(department, &cfg); err != nil {
					logger.Error.Printf("Export failed for %s: %v", department, err)
				}
			})
			if err != nil {
				return nil, fmt.Errorf("failed to schedule export: %w", err)
			}
		}
	}

	scheduler.StartAsync()
	return scheduler, nil
}

func (e *GSheetExporter) Export(department string, cfg *app.GSheetConfig) error {
	semester := models.CurrentSemester()

	entries, err := e.store.ListPartitionEntries(department, semester)
	if err != nil {
		return fmt.Errorf("failed to read leaderboard: %w", err)
	}

	header := [][]interface{}{{
		"rank", "student", "section", "points", "on time", "late", "missed", "attended", "completion %",
	}}

	rows := make([][]interface{}, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []interface{}{
			entry.Rank,
			entry.UserID,
			entry.Section,
			entry.TotalPoints,
			entry.TasksOnTime,
			entry.TasksLate,
			entry.TasksMissed,
			entry.EventsAttended,
			fmt.Sprintf("%.0f", entry.CompletionRate),
		})
	}

	headerRange := fmt.Sprintf("%s!%s", cfg.SheetName, cfg.HeaderRange)
	_, err = e.sheetsService.Spreadsheets.Values.Update(cfg.SheetID, headerRange,
		&sheets.ValueRange{Values: append(header, rows...)}).ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to write leaderboard rows: %w", err)
	}

	// Update timestamp
	emoji := "✔"
	if len(e.config.EmojiVariants) > 0 {
		emoji = e.config.EmojiVariants[rand.Intn(len(e.config.EmojiVariants))]
	}
	timestamp := fmt.Sprintf("UPD: %s %s", time.Now().Format("2 January 15:04"), emoji)

	updateRange := fmt.Sprintf("%s!%s", cfg.SheetName, cfg.TimestampRange)
	_, err = e.sheetsService.Spreadsheets.Values.Update(cfg.SheetID, updateRange,
		&sheets.ValueRange{Values: [][]interface{}{{timestamp}}}).ValueInputOption("RAW").Do()

	return err
}
