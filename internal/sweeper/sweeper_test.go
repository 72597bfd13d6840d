package sweeper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/store/sqlite"
)

func setupSweeper(t *testing.T) (*Sweeper, *sqlite.SQLiteStore) {
	t.Helper()

	st, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return New(st, ledger.NewService(st, nil, nil)), st
}

func TestSweepOnce_ScoresMissesAtDeadlineSemester(t *testing.T) {
	sw, st := setupSweeper(t)

	require.NoError(t, st.UpsertStudent(models.Student{UserID: "anna", Name: "Anna", Department: "CS", Section: "A1"}))
	require.NoError(t, st.UpsertStudent(models.Student{UserID: "boris", Name: "Boris", Department: "CS", Section: "A1"}))

	deadline := time.Date(2025, 5, 30, 23, 59, 59, 0, time.UTC)
	require.NoError(t, st.CreateTaskDeadline(models.TaskDeadline{
		TaskID: "lab01", Department: "CS", Title: "Final lab", Deadline: deadline.UnixMicro(),
	}))

	// anna submitted, boris did not.
	require.NoError(t, st.CreateSubmission(&models.Submission{
		ID: "sub-1", TaskID: "lab01", UserID: "anna", Department: "CS",
		Status: models.SubmissionPending, Content: "x", SubmittedAt: deadline.Add(-time.Hour).UnixMicro(),
	}))

	// Sweep runs in the fall, long after the spring deadline.
	require.NoError(t, sw.SweepOnce(time.Date(2025, 9, 1, 3, 0, 0, 0, time.UTC)))

	annaEntry, err := st.GetLedgerEntry("anna", "2025-1")
	require.NoError(t, err)
	assert.Nil(t, annaEntry, "submitters are left alone")

	borisEntry, err := st.GetLedgerEntry("boris", "2025-1")
	require.NoError(t, err)
	require.NotNil(t, borisEntry, "the miss lands in the deadline's semester")
	assert.Equal(t, -10, borisEntry.TotalPoints)
	assert.Equal(t, 1, borisEntry.TasksMissed)
	assert.Zero(t, borisEntry.TasksCompleted)
	assert.Zero(t, borisEntry.CompletionRate)
}

func TestSweepOnce_Rerunnable(t *testing.T) {
	sw, st := setupSweeper(t)

	require.NoError(t, st.UpsertStudent(models.Student{UserID: "boris", Name: "Boris", Department: "CS", Section: "A1"}))
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateTaskDeadline(models.TaskDeadline{
		TaskID: "lab01", Department: "CS", Title: "Intro lab", Deadline: deadline.UnixMicro(),
	}))

	now := deadline.Add(24 * time.Hour)
	require.NoError(t, sw.SweepOnce(now))
	require.NoError(t, sw.SweepOnce(now.Add(time.Hour)))
	require.NoError(t, sw.SweepOnce(now.Add(2*time.Hour)))

	entry, err := st.GetLedgerEntry("boris", "2025-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, -10, entry.TotalPoints, "re-sweeps are no-ops")
	assert.Equal(t, 1, entry.TasksMissed)

	total, err := st.SumActivityPoints("boris", "2025-1")
	require.NoError(t, err)
	assert.Equal(t, -10, total)
}

func TestSweepOnce_FutureDeadlinesUntouched(t *testing.T) {
	sw, st := setupSweeper(t)

	require.NoError(t, st.UpsertStudent(models.Student{UserID: "boris", Name: "Boris", Department: "CS", Section: "A1"}))
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateTaskDeadline(models.TaskDeadline{
		TaskID: "lab01", Department: "CS", Title: "Intro lab", Deadline: deadline.UnixMicro(),
	}))

	require.NoError(t, sw.SweepOnce(deadline.Add(-time.Minute)))

	entry, err := st.GetLedgerEntry("boris", "2025-1")
	require.NoError(t, err)
	assert.Nil(t, entry, "no misses before the deadline passes")
}
