package models

// LedgerEntry is the mutable aggregate row, one per (user_id, semester).
// The ledger service is its only writer; the rank calculator additionally
// writes rank and rank_change within a single partition at a time.
type LedgerEntry struct {
	UserID         string  `db:"user_id" json:"user_id"`
	Department     string  `db:"department" json:"department"`
	Section        string  `db:"section" json:"section"`
	Semester       string  `db:"semester" json:"semester"`
	TotalPoints    int     `db:"total_points" json:"total_points"`
	TasksCompleted int     `db:"tasks_completed" json:"tasks_completed"`
	TasksOnTime    int     `db:"tasks_on_time" json:"tasks_on_time"`
	TasksLate      int     `db:"tasks_late" json:"tasks_late"`
	TasksMissed    int     `db:"tasks_missed" json:"tasks_missed"`
	EventsAttended int     `db:"events_attended" json:"events_attended"`
	CompletionRate float64 `db:"completion_rate" json:"completion_rate"`
	Rank           int     `db:"rank" json:"rank"`
	RankChange     int     `db:"rank_change" json:"rank_change"`
	LastUpdated    int64   `db:"last_updated" json:"last_updated"`
}

// ZeroLedgerEntry models "no activity yet" as an explicit value instead of a
// missing row, so callers never special-case nil.
func ZeroLedgerEntry(userID, department, section, semester string) *LedgerEntry {
	return &LedgerEntry{
		UserID:     userID,
		Department: department,
		Section:    section,
		Semester:   semester,
	}
}

// RecalcCompletionRate refreshes completion_rate from the task counters.
// The rate is 0 when no task has been completed or missed yet.
func (e *LedgerEntry) RecalcCompletionRate() {
	total := e.TasksCompleted + e.TasksMissed
	if total == 0 {
		e.CompletionRate = 0
		return
	}
	e.CompletionRate = float64(e.TasksCompleted) / float64(total) * 100
}
