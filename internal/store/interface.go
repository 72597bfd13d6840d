package store

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/shrimpsizemoose/semla/internal/models"
)

type LedgerStore interface {
	Close() error
	ApplyMigrations(dir string) error

	// ApplyScoringEvent commits one activity row and folds its delta into the
	// (user_id, semester) aggregate in a single transaction. The bool reports
	// whether the event was applied: false means the event_id was already in
	// the log and the current entry is returned untouched.
	ApplyScoringEvent(activity *models.PointActivity, department, section string) (*models.LedgerEntry, bool, error)
	GetLedgerEntry(userID, semester string) (*models.LedgerEntry, error)
	ListPartitionEntries(department, semester string) ([]models.LedgerEntry, error)
	UpdateRanks(department, semester string, updates []RankUpdate) error
	TopEntries(department, semester, section string, limit int) ([]models.LedgerEntry, error)
	RecentActivities(userID, semester string, limit int) ([]models.PointActivity, error)
	SumActivityPoints(userID, semester string) (int, error)

	GetStudent(userID string) (*models.Student, error)
	UpsertStudent(student models.Student) error
	ListDepartmentStudents(department string) ([]models.Student, error)

	CreateTaskDeadline(task models.TaskDeadline) error
	GetTaskDeadline(taskID string) (*models.TaskDeadline, error)
	ListTaskDeadlines(department string) ([]models.TaskDeadline, error)
	ListTasksDueBefore(cutoff int64) ([]models.TaskDeadline, error)

	CreateSubmission(sub *models.Submission) error
	GetSubmission(id string) (*models.Submission, error)
	GetUserTaskSubmission(taskID, userID string) (*models.Submission, error)
	UpdateSubmissionReview(id, status, comment string, reviewedAt int64) error
	UpdateSubmissionContent(id, content string, submittedAt int64) error
	MissingSubmitters(taskID, department string) ([]models.Student, error)
}

// BaseStore provides common functionality for different DB implementations.
// Converter rewrites `?` placeholders for the dialect; RowLock is the suffix
// used to lock an aggregate row inside a transaction (empty where the whole
// database serializes writers anyway, as in SQLite).
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
	RowLock   string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies SQL migrations from a directory, translating dialect if needed
func (s *BaseStore) ApplyMigrations(dir string, translateSQL func(string) string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(fmt.Sprintf("%s/%s", dir, file.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

func (s *BaseStore) ApplyScoringEvent(activity *models.PointActivity, department, section string) (*models.LedgerEntry, bool, error) {
	tx, err := s.DB.Beginx()
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExec(`
		INSERT INTO point_activities (event_id, user_id, semester, activity_type, points, description, timestamp, related_id)
		VALUES (:event_id, :user_id, :semester, :activity_type, :points, :description, :timestamp, :related_id)
		ON CONFLICT (event_id) DO NOTHING
	`, activity)
	if err != nil {
		return nil, false, fmt.Errorf("failed to append activity: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to check activity insert: %w", err)
	}
	if inserted == 0 {
		// Redelivery of an already-scored event: return current state as-is.
		// Read through the open transaction, the pool may have no free
		// connection to spare.
		var entry models.LedgerEntry
		err := tx.Get(&entry, s.Converter(`
			SELECT user_id, department, section, semester, total_points,
			       tasks_completed, tasks_on_time, tasks_late, tasks_missed,
			       events_attended, completion_rate, rank, rank_change, last_updated
			FROM ledger_entries
			WHERE user_id = ? AND semester = ?
		`), activity.UserID, activity.Semester)
		if err == sql.ErrNoRows {
			return models.ZeroLedgerEntry(activity.UserID, department, section, activity.Semester), false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to load ledger entry: %w", err)
		}
		return &entry, false, nil
	}

	query := s.Converter(`
		SELECT user_id, department, section, semester, total_points,
		       tasks_completed, tasks_on_time, tasks_late, tasks_missed,
		       events_attended, completion_rate, rank, rank_change, last_updated
		FROM ledger_entries
		WHERE user_id = ? AND semester = ?
	`) + s.RowLock

	var entry models.LedgerEntry
	err = tx.Get(&entry, query, activity.UserID, activity.Semester)
	fresh := err == sql.ErrNoRows
	if err != nil && !fresh {
		return nil, false, fmt.Errorf("failed to load ledger entry: %w", err)
	}
	if fresh {
		entry = *models.ZeroLedgerEntry(activity.UserID, department, section, activity.Semester)
	}

	applyDelta(&entry, activity)
	entry.LastUpdated = time.Now().UnixMicro()

	if fresh {
		_, err = tx.NamedExec(`
			INSERT INTO ledger_entries (user_id, department, section, semester, total_points,
				tasks_completed, tasks_on_time, tasks_late, tasks_missed,
				events_attended, completion_rate, rank, rank_change, last_updated)
			VALUES (:user_id, :department, :section, :semester, :total_points,
				:tasks_completed, :tasks_on_time, :tasks_late, :tasks_missed,
				:events_attended, :completion_rate, :rank, :rank_change, :last_updated)
		`, &entry)
	} else {
		_, err = tx.NamedExec(`
			UPDATE ledger_entries SET
				total_points = :total_points,
				tasks_completed = :tasks_completed,
				tasks_on_time = :tasks_on_time,
				tasks_late = :tasks_late,
				tasks_missed = :tasks_missed,
				events_attended = :events_attended,
				completion_rate = :completion_rate,
				last_updated = :last_updated
			WHERE user_id = :user_id AND semester = :semester
		`, &entry)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to update ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit scoring event: %w", err)
	}

	return &entry, true, nil
}

// applyDelta folds one activity into the aggregate counters. Both succeed or
// neither does: the caller holds the surrounding transaction.
func applyDelta(entry *models.LedgerEntry, activity *models.PointActivity) {
	entry.TotalPoints += activity.Points

	switch activity.ActivityType {
	case models.KindTaskOnTime:
		entry.TasksOnTime++
	case models.KindTaskLate:
		entry.TasksLate++
	case models.KindTaskMissed:
		entry.TasksMissed++
	case models.KindEventParticipation, models.KindEventWinning:
		entry.EventsAttended++
	}

	entry.TasksCompleted = entry.TasksOnTime + entry.TasksLate
	entry.RecalcCompletionRate()
}

func (s *BaseStore) GetLedgerEntry(userID, semester string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	query := s.Converter(`
		SELECT user_id, department, section, semester, total_points,
		       tasks_completed, tasks_on_time, tasks_late, tasks_missed,
		       events_attended, completion_rate, rank, rank_change, last_updated
		FROM ledger_entries
		WHERE user_id = ? AND semester = ?
	`)

	err := s.DB.Get(&entry, query, userID, semester)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

func (s *BaseStore) ListPartitionEntries(department, semester string) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	query := s.Converter(`
		SELECT user_id, department, section, semester, total_points,
		       tasks_completed, tasks_on_time, tasks_late, tasks_missed,
		       events_attended, completion_rate, rank, rank_change, last_updated
		FROM ledger_entries
		WHERE department = ? AND semester = ?
		ORDER BY total_points DESC, last_updated ASC, user_id ASC
	`)

	err := s.DB.Select(&entries, query, department, semester)
	if err != nil {
		return nil, fmt.Errorf("failed to list partition entries: %w", err)
	}
	return entries, nil
}

func (s *BaseStore) UpdateRanks(department, semester string, updates []RankUpdate) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin rank update: %w", err)
	}
	defer tx.Rollback()

	query := s.Converter(`
		UPDATE ledger_entries SET rank = ?, rank_change = ?
		WHERE user_id = ? AND semester = ? AND department = ?
	`)

	for _, u := range updates {
		if _, err := tx.Exec(query, u.Rank, u.RankChange, u.UserID, semester, department); err != nil {
			return fmt.Errorf("failed to update rank for %s: %w", u.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rank updates: %w", err)
	}
	return nil
}

func (s *BaseStore) TopEntries(department, semester, section string, limit int) ([]models.LedgerEntry, error) {
	query := `
		SELECT user_id, department, section, semester, total_points,
		       tasks_completed, tasks_on_time, tasks_late, tasks_missed,
		       events_attended, completion_rate, rank, rank_change, last_updated
		FROM ledger_entries
		WHERE department = ? AND semester = ?
	`
	args := []interface{}{department, semester}
	if section != "" {
		query += ` AND section = ?`
		args = append(args, section)
	}
	// Not-yet-ranked rows (rank = 0) sort last, not first.
	query += `
		ORDER BY (rank = 0), rank ASC, total_points DESC
		LIMIT ?
	`
	args = append(args, limit)

	var entries []models.LedgerEntry
	err := s.DB.Select(&entries, s.Converter(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	return entries, nil
}

func (s *BaseStore) RecentActivities(userID, semester string, limit int) ([]models.PointActivity, error) {
	var activities []models.PointActivity
	query := s.Converter(`
		SELECT id, event_id, user_id, semester, activity_type, points, description, timestamp, related_id
		FROM point_activities
		WHERE user_id = ? AND semester = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`)

	err := s.DB.Select(&activities, query, userID, semester, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activities: %w", err)
	}
	return activities, nil
}

func (s *BaseStore) SumActivityPoints(userID, semester string) (int, error) {
	var total int
	query := s.Converter(`
		SELECT COALESCE(SUM(points), 0)
		FROM point_activities
		WHERE user_id = ? AND semester = ?
	`)

	if err := s.DB.Get(&total, query, userID, semester); err != nil {
		return 0, fmt.Errorf("failed to sum activity points: %w", err)
	}
	return total, nil
}

func (s *BaseStore) GetStudent(userID string) (*models.Student, error) {
	var student models.Student
	query := s.Converter(`
		SELECT user_id, name, department, section
		FROM students
		WHERE user_id = ?
	`)

	err := s.DB.Get(&student, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &student, nil
}

func (s *BaseStore) UpsertStudent(student models.Student) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO students (user_id, name, department, section)
		VALUES (:user_id, :name, :department, :section)
		ON CONFLICT (user_id) DO UPDATE SET
		name = :name,
		department = :department,
		section = :section
	`, student)
	if err != nil {
		return fmt.Errorf("failed to upsert student: %w", err)
	}
	return nil
}

func (s *BaseStore) ListDepartmentStudents(department string) ([]models.Student, error) {
	var students []models.Student
	query := s.Converter(`
		SELECT user_id, name, department, section
		FROM students
		WHERE department = ?
		ORDER BY section, user_id
	`)

	err := s.DB.Select(&students, query, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

func (s *BaseStore) CreateTaskDeadline(task models.TaskDeadline) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO task_deadlines (task_id, department, title, deadline)
		VALUES (:task_id, :department, :title, :deadline)
		ON CONFLICT (task_id) DO UPDATE SET
		title = :title,
		deadline = :deadline
	`, task)
	if err != nil {
		return fmt.Errorf("failed to create task deadline: %w", err)
	}
	return nil
}

func (s *BaseStore) GetTaskDeadline(taskID string) (*models.TaskDeadline, error) {
	var task models.TaskDeadline
	query := s.Converter(`
		SELECT task_id, department, title, deadline
		FROM task_deadlines
		WHERE task_id = ?
	`)

	err := s.DB.Get(&task, query, taskID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task deadline: %w", err)
	}
	return &task, nil
}

func (s *BaseStore) ListTaskDeadlines(department string) ([]models.TaskDeadline, error) {
	var tasks []models.TaskDeadline
	query := s.Converter(`
		SELECT task_id, department, title, deadline
		FROM task_deadlines
		WHERE department = ?
		ORDER BY deadline ASC
	`)

	err := s.DB.Select(&tasks, query, department)
	if err != nil {
		return nil, fmt.Errorf("failed to list task deadlines: %w", err)
	}
	return tasks, nil
}

func (s *BaseStore) ListTasksDueBefore(cutoff int64) ([]models.TaskDeadline, error) {
	var tasks []models.TaskDeadline
	query := s.Converter(`
		SELECT task_id, department, title, deadline
		FROM task_deadlines
		WHERE deadline < ?
		ORDER BY deadline ASC
	`)

	err := s.DB.Select(&tasks, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", err)
	}
	return tasks, nil
}

func (s *BaseStore) CreateSubmission(sub *models.Submission) error {
	_, err := s.DB.NamedExec(`
		INSERT INTO submissions (id, task_id, user_id, department, status, content, submitted_at, reviewed_at, review_comment)
		VALUES (:id, :task_id, :user_id, :department, :status, :content, :submitted_at, :reviewed_at, :review_comment)
	`, sub)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (s *BaseStore) GetSubmission(id string) (*models.Submission, error) {
	var sub models.Submission
	query := s.Converter(`
		SELECT id, task_id, user_id, department, status, content, submitted_at, reviewed_at, review_comment
		FROM submissions
		WHERE id = ?
	`)

	err := s.DB.Get(&sub, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

func (s *BaseStore) GetUserTaskSubmission(taskID, userID string) (*models.Submission, error) {
	var sub models.Submission
	query := s.Converter(`
		SELECT id, task_id, user_id, department, status, content, submitted_at, reviewed_at, review_comment
		FROM submissions
		WHERE task_id = ? AND user_id = ?
	`)

	err := s.DB.Get(&sub, query, taskID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &sub, nil
}

func (s *BaseStore) UpdateSubmissionReview(id, status, comment string, reviewedAt int64) error {
	query := s.Converter(`
		UPDATE submissions SET status = ?, review_comment = ?, reviewed_at = ?
		WHERE id = ?
	`)

	if _, err := s.DB.Exec(query, status, comment, reviewedAt, id); err != nil {
		return fmt.Errorf("failed to update submission review: %w", err)
	}
	return nil
}

func (s *BaseStore) UpdateSubmissionContent(id, content string, submittedAt int64) error {
	query := s.Converter(`
		UPDATE submissions SET content = ?, submitted_at = ?, status = ?, review_comment = ''
		WHERE id = ?
	`)

	if _, err := s.DB.Exec(query, content, submittedAt, models.SubmissionPending, id); err != nil {
		return fmt.Errorf("failed to update submission content: %w", err)
	}
	return nil
}

func (s *BaseStore) MissingSubmitters(taskID, department string) ([]models.Student, error) {
	var students []models.Student
	query := s.Converter(`
		SELECT st.user_id, st.name, st.department, st.section
		FROM students st
		WHERE st.department = ?
		AND NOT EXISTS (
			SELECT 1 FROM submissions su
			WHERE su.task_id = ? AND su.user_id = st.user_id
		)
		ORDER BY st.user_id
	`)

	err := s.DB.Select(&students, query, department, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to find missing submitters: %w", err)
	}
	return students, nil
}
