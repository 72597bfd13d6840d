package models

// PointActivity is one append-only row of the activity log. Rows are never
// mutated or deleted; summing Points over a user+semester must reproduce the
// ledger entry's total_points.
type PointActivity struct {
	ID           int64  `db:"id" json:"-"`
	EventID      string `db:"event_id" json:"event_id"`
	UserID       string `db:"user_id" json:"user_id"`
	Semester     string `db:"semester" json:"semester"`
	ActivityType string `db:"activity_type" json:"activity_type"`
	Points       int    `db:"points" json:"points"`
	Description  string `db:"description" json:"description"`
	Timestamp    int64  `db:"timestamp" json:"timestamp"`
	RelatedID    string `db:"related_id" json:"related_id"`
}
