package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSemesterFor(t *testing.T) {
	tests := []struct {
		name string
		when time.Time
		want string
	}{
		{"january opens spring", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-1"},
		{"may closes spring", time.Date(2025, 5, 31, 23, 59, 59, 0, time.UTC), "2025-1"},
		{"june falls back to term 1", time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC), "2025-1"},
		{"july falls back to term 1", time.Date(2025, 7, 31, 23, 59, 59, 0, time.UTC), "2025-1"},
		{"august opens fall", time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), "2025-2"},
		{"december closes fall", time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC), "2025-2"},
		{"year rolls over", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "2026-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SemesterFor(tt.when))
		})
	}
}

func TestSemesterFor_NormalizesZone(t *testing.T) {
	// 2025-07-31T21:00:00-05:00 is already August in UTC.
	zone := time.FixedZone("CDT", -5*3600)
	assert.Equal(t, "2025-2", SemesterFor(time.Date(2025, 7, 31, 21, 0, 0, 0, zone)))
}
