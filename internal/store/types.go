package store

type DatabaseType string

const (
	DBTypePostgres DatabaseType = "postgres"
	DBTypeSQLite   DatabaseType = "sqlite"
)

type DBConfig struct {
	DSN  string
	Type DatabaseType
}

// RankUpdate carries one recomputed placement back to the aggregate row.
type RankUpdate struct {
	UserID     string
	Rank       int
	RankChange int
}
