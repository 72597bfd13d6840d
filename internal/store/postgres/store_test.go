package postgres

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/store"
)

// setupTestDB spins up a throwaway Postgres and applies the migrations
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	postgres, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err)

	dsn, err := postgres.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(dsn, "../../../migrations")
	require.NoError(t, err, "Failed to create store")

	cleanup := func() {
		s.Close()
		postgres.Terminate(ctx)
	}

	return s, cleanup
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping Postgres integration tests. Use -short=false to run them.")
		os.Exit(0)
	}
	log.Println("Starting Postgres store tests...")
	code := m.Run()
	log.Println("Finished Postgres store tests")
	os.Exit(code)
}

func TestApplyScoringEventRoundTrip(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	activity := &models.PointActivity{
		EventID:      "ev-1",
		UserID:       "anna",
		Semester:     "2025-1",
		ActivityType: models.KindTaskOnTime,
		Points:       10,
		Description:  "Task completed on time",
		Timestamp:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).UnixMicro(),
		RelatedID:    "lab01",
	}

	t.Run("apply", func(t *testing.T) {
		entry, applied, err := s.ApplyScoringEvent(activity, "CS", "A1")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, 10, entry.TotalPoints)
		assert.Equal(t, 1, entry.TasksOnTime)
		assert.Equal(t, "A1", entry.Section)
	})

	t.Run("redeliver", func(t *testing.T) {
		entry, applied, err := s.ApplyScoringEvent(activity, "CS", "A1")
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 10, entry.TotalPoints)

		total, err := s.SumActivityPoints("anna", "2025-1")
		require.NoError(t, err)
		assert.Equal(t, 10, total)
	})

	t.Run("read back", func(t *testing.T) {
		entry, err := s.GetLedgerEntry("anna", "2025-1")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "CS", entry.Department)
		assert.InDelta(t, 100.0, entry.CompletionRate, 0.001)
	})

	t.Run("missing entry is nil", func(t *testing.T) {
		entry, err := s.GetLedgerEntry("nobody", "2025-1")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})
}

func TestPartitionOrderingAndRanks(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	seed := func(eventID, userID string, points int) {
		_, _, err := s.ApplyScoringEvent(&models.PointActivity{
			EventID:      eventID,
			UserID:       userID,
			Semester:     "2025-1",
			ActivityType: models.KindEventWinning,
			Points:       points,
			Timestamp:    1000,
			RelatedID:    "quiz",
		}, "CS", "")
		require.NoError(t, err)
	}
	seed("ev-b", "boris", 30)
	seed("ev-a", "anna", 30) // ties boris but arrived later
	seed("ev-c", "clara", 20)

	t.Run("snapshot order", func(t *testing.T) {
		entries, err := s.ListPartitionEntries("CS", "2025-1")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "boris", entries[0].UserID)
		assert.Equal(t, "anna", entries[1].UserID)
		assert.Equal(t, "clara", entries[2].UserID)
	})

	t.Run("write and read ranks", func(t *testing.T) {
		err := s.UpdateRanks("CS", "2025-1", []store.RankUpdate{
			{UserID: "boris", Rank: 1, RankChange: 0},
			{UserID: "anna", Rank: 2, RankChange: 0},
			{UserID: "clara", Rank: 3, RankChange: 0},
		})
		require.NoError(t, err)

		top, err := s.TopEntries("CS", "2025-1", "", 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, "boris", top[0].UserID)
		assert.Equal(t, 1, top[0].Rank)
	})
}

func TestStudentAndSubmissionQueries(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, s.UpsertStudent(models.Student{UserID: "anna", Name: "Anna", Department: "CS", Section: "A1"}))
	require.NoError(t, s.UpsertStudent(models.Student{UserID: "boris", Name: "Boris", Department: "CS", Section: "A1"}))

	require.NoError(t, s.CreateTaskDeadline(models.TaskDeadline{
		TaskID: "lab01", Department: "CS", Title: "Intro lab",
		Deadline: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMicro(),
	}))

	require.NoError(t, s.CreateSubmission(&models.Submission{
		ID: "sub-1", TaskID: "lab01", UserID: "anna", Department: "CS",
		Status: models.SubmissionPending, Content: "https://git.example/anna/lab01",
		SubmittedAt: 1000,
	}))

	t.Run("missing submitters", func(t *testing.T) {
		missing, err := s.MissingSubmitters("lab01", "CS")
		require.NoError(t, err)
		require.Len(t, missing, 1)
		assert.Equal(t, "boris", missing[0].UserID)
	})

	t.Run("review transition", func(t *testing.T) {
		require.NoError(t, s.UpdateSubmissionReview("sub-1", models.SubmissionApproved, "nice work", 2000))
		sub, err := s.GetSubmission("sub-1")
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionApproved, sub.Status)
		assert.Equal(t, int64(2000), sub.ReviewedAt)
	})

	t.Run("resubmit resets review", func(t *testing.T) {
		require.NoError(t, s.UpdateSubmissionContent("sub-1", "https://git.example/anna/lab01/v2", 3000))
		sub, err := s.GetSubmission("sub-1")
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionPending, sub.Status)
		assert.Empty(t, sub.ReviewComment)
	})
}
