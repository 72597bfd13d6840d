package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	KindTaskOnTime         = "task_on_time"
	KindTaskLate           = "task_late"
	KindTaskMissed         = "task_missed"
	KindEventParticipation = "event_participation"
	KindEventWinning       = "event_winning"
)

// ScoringEvent is an immutable fact produced by the submission and attendance
// collaborators. EventID is deterministic, so at-least-once redelivery of the
// same logical event stays a no-op.
type ScoringEvent struct {
	EventID         string    `json:"event_id" validate:"required"`
	UserID          string    `json:"user_id" validate:"required"`
	Department      string    `json:"department" validate:"required"`
	Kind            string    `json:"kind" validate:"required"`
	RelatedEntityID string    `json:"related_entity_id" validate:"required"`
	OccurredAt      time.Time `json:"occurred_at" validate:"required"`
}

// DeriveEventID builds the idempotency key from the parts that identify the
// logical event. Same task + same student + same outcome hashes the same.
func DeriveEventID(kind, relatedEntityID, userID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", kind, relatedEntityID, userID)))
	return hex.EncodeToString(sum[:])
}

func KnownKind(kind string) bool {
	switch kind {
	case KindTaskOnTime, KindTaskLate, KindTaskMissed, KindEventParticipation, KindEventWinning:
		return true
	}
	return false
}

func (e *ScoringEvent) Validate() error {
	validate := validator.New()
	if err := validate.Struct(e); err != nil {
		return err
	}
	if !KnownKind(e.Kind) {
		return fmt.Errorf("unknown event kind: %q", e.Kind)
	}
	return nil
}

// NewScoringEvent fills in the derived event id and stamps occurred_at if the
// caller left it zero.
func NewScoringEvent(kind, relatedEntityID, userID, department string, occurredAt time.Time) ScoringEvent {
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return ScoringEvent{
		EventID:         DeriveEventID(kind, relatedEntityID, userID),
		UserID:          userID,
		Department:      department,
		Kind:            kind,
		RelatedEntityID: relatedEntityID,
		OccurredAt:      occurredAt,
	}
}
