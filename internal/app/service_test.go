package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/rank"
	"github.com/shrimpsizemoose/semla/internal/store/sqlite"
)

func setupTestService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.NewSQLiteStore(":memory:", "../../migrations")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	config := &Config{}
	config.Server.EnableAuth = false
	config.Leaderboard.DefaultLimit = 10
	config.Leaderboard.RecentActivites = 10

	ranker := rank.NewCalculator(st)
	return &Service{
		Config: config,
		Store:  st,
		Ledger: ledger.NewService(st, nil, ranker),
		Ranker: ranker,
		Auth:   &Auth{},
	}
}

func createTask(t *testing.T, s *Service, taskID string, deadline time.Time) {
	t.Helper()
	require.NoError(t, s.Store.CreateTaskDeadline(models.TaskDeadline{
		TaskID:     taskID,
		Department: "CS",
		Title:      "Lab " + taskID,
		Deadline:   deadline.UnixMicro(),
	}))
}

func TestSubmitTask_OnTime(t *testing.T) {
	s := setupTestService(t)
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	createTask(t, s, "lab01", deadline)

	sub, entry, err := s.SubmitTask("lab01", "anna", "CS", "https://git.example/anna/lab01", deadline.Add(-time.Second))
	require.NoError(t, err)

	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, models.SubmissionPending, sub.Status)
	assert.Equal(t, 10, entry.TotalPoints)
	assert.Equal(t, 1, entry.TasksOnTime)
}

func TestSubmitTask_LateAfterDeadline(t *testing.T) {
	s := setupTestService(t)
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	createTask(t, s, "lab01", deadline)

	// One microsecond past the deadline already counts as late.
	_, entry, err := s.SubmitTask("lab01", "anna", "CS", "x", deadline.Add(time.Microsecond))
	require.NoError(t, err)

	assert.Equal(t, -5, entry.TotalPoints)
	assert.Equal(t, 1, entry.TasksLate)
	assert.Equal(t, 0, entry.TasksOnTime)
}

func TestSubmitTask_ExactlyAtDeadlineIsOnTime(t *testing.T) {
	s := setupTestService(t)
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	createTask(t, s, "lab01", deadline)

	_, entry, err := s.SubmitTask("lab01", "anna", "CS", "x", deadline)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.TasksOnTime)
}

func TestSubmitTask_UnknownTask(t *testing.T) {
	s := setupTestService(t)

	_, _, err := s.SubmitTask("ghost", "anna", "CS", "x", time.Now())
	assert.Error(t, err)
}

func TestSubmitTask_SecondSubmissionRejected(t *testing.T) {
	s := setupTestService(t)
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	createTask(t, s, "lab01", deadline)

	_, _, err := s.SubmitTask("lab01", "anna", "CS", "x", deadline.Add(-time.Hour))
	require.NoError(t, err)

	_, _, err = s.SubmitTask("lab01", "anna", "CS", "y", deadline.Add(-time.Minute))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resubmit")

	// The first scoring stands alone.
	total, err := s.Store.SumActivityPoints("anna", "2025-1")
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestReviewAndResubmitNeverRescore(t *testing.T) {
	s := setupTestService(t)
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	createTask(t, s, "lab01", deadline)

	sub, entry, err := s.SubmitTask("lab01", "anna", "CS", "v1", deadline.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 10, entry.TotalPoints)

	t.Run("review pending only", func(t *testing.T) {
		reviewed, err := s.ReviewSubmission(sub.ID, models.SubmissionRejected, "needs tests")
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionRejected, reviewed.Status)
		assert.Positive(t, reviewed.ReviewedAt)

		// Second verdict on an already-reviewed submission is refused.
		_, err = s.ReviewSubmission(sub.ID, models.SubmissionApproved, "")
		assert.Error(t, err)
	})

	t.Run("resubmit resets to pending", func(t *testing.T) {
		updated, err := s.Resubmit(sub.ID, "anna", "v2", deadline.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, models.SubmissionPending, updated.Status)
		assert.Equal(t, "v2", updated.Content)
		assert.Empty(t, updated.ReviewComment)
	})

	t.Run("wrong owner refused", func(t *testing.T) {
		_, err := s.Resubmit(sub.ID, "boris", "stolen", time.Now())
		assert.Error(t, err)
	})

	t.Run("rejection clawed nothing back", func(t *testing.T) {
		total, err := s.Store.SumActivityPoints("anna", "2025-1")
		require.NoError(t, err)
		assert.Equal(t, 10, total)

		stored, err := s.Store.GetLedgerEntry("anna", "2025-1")
		require.NoError(t, err)
		assert.Equal(t, 10, stored.TotalPoints)
		assert.Equal(t, 1, stored.TasksCompleted)
	})
}

func TestReviewSubmission_BadStatus(t *testing.T) {
	s := setupTestService(t)

	_, err := s.ReviewSubmission("whatever", "maybe", "")
	assert.Error(t, err)
}

func TestMarkAttendanceAndWinners(t *testing.T) {
	s := setupTestService(t)
	occurredAt := time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

	entries, err := s.MarkAttendance("CS", "guest-lecture", []string{"anna", "boris"}, occurredAt)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 20, entries[0].TotalPoints)
	assert.Equal(t, 1, entries[0].EventsAttended)

	// Winning the same event stacks on top of attending it.
	winners, err := s.MarkWinners("CS", "guest-lecture", []string{"anna"}, occurredAt)
	require.NoError(t, err)
	require.Len(t, winners, 1)
	assert.Equal(t, 50, winners[0].TotalPoints)
	assert.Equal(t, 2, winners[0].EventsAttended)

	// Redelivered batch changes nothing.
	again, err := s.MarkAttendance("CS", "guest-lecture", []string{"anna", "boris"}, occurredAt)
	require.NoError(t, err)
	assert.Equal(t, 50, again[0].TotalPoints)
	assert.Equal(t, 20, again[1].TotalPoints)
}

func TestLeaderboardDefaultLimit(t *testing.T) {
	s := setupTestService(t)
	occurredAt := time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)

	users := []string{"u01", "u02", "u03", "u04", "u05", "u06", "u07", "u08", "u09", "u10", "u11", "u12"}
	_, err := s.MarkAttendance("CS", "big-event", users, occurredAt)
	require.NoError(t, err)
	s.Ranker.Wait()

	rows, err := s.Leaderboard("CS", "2025-1", "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, s.Config.Leaderboard.DefaultLimit)

	all, err := s.Leaderboard("CS", "2025-1", "", 100)
	require.NoError(t, err)
	assert.Len(t, all, len(users))
}

func TestStudentStats_ZeroValuedForNewcomer(t *testing.T) {
	s := setupTestService(t)

	require.NoError(t, s.Store.UpsertStudent(models.Student{
		UserID: "anna", Name: "Anna", Department: "CS", Section: "A1",
	}))

	stats, err := s.StudentStats("anna", "2025-1")
	require.NoError(t, err)
	require.NotNil(t, stats.Entry)

	assert.Equal(t, "anna", stats.Entry.UserID)
	assert.Equal(t, "CS", stats.Entry.Department)
	assert.Equal(t, "A1", stats.Entry.Section)
	assert.Zero(t, stats.Entry.TotalPoints)
	assert.Zero(t, stats.Entry.Rank)
	assert.NotNil(t, stats.RecentActivities)
	assert.Empty(t, stats.RecentActivities)
}

func TestStudentStats_AfterActivity(t *testing.T) {
	s := setupTestService(t)
	deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	createTask(t, s, "lab01", deadline)

	_, _, err := s.SubmitTask("lab01", "anna", "CS", "x", deadline.Add(-time.Hour))
	require.NoError(t, err)

	stats, err := s.StudentStats("anna", "2025-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Entry.TotalPoints)
	require.Len(t, stats.RecentActivities, 1)
	assert.Equal(t, models.KindTaskOnTime, stats.RecentActivities[0].ActivityType)
	assert.Equal(t, "lab01", stats.RecentActivities[0].RelatedID)
}
