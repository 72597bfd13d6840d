// internal/ledger/service.go
package ledger

import (
	"fmt"
	"sync"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/metrics"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/scoring"
	"github.com/shrimpsizemoose/semla/internal/store"
)

// Ranker receives fire-and-forget recompute requests after a commit.
// Implementations must coalesce; Record never waits on them.
type Ranker interface {
	Request(department, semester string)
}

// Service turns scoring events into ledger state. It is the sole writer of
// point_activities and ledger_entries and is safe for concurrent use: calls
// for the same (user, semester) serialize, calls for different users do not.
type Service struct {
	store  store.LedgerStore
	policy *scoring.Policy
	ranker Ranker

	locks sync.Map // "(user_id)|(semester)" -> *sync.Mutex
}

func NewService(st store.LedgerStore, policy *scoring.Policy, ranker Ranker) *Service {
	if policy == nil {
		policy = scoring.DefaultPolicy()
	}
	return &Service{
		store:  st,
		policy: policy,
		ranker: ranker,
	}
}

// Record applies one scoring event and returns the resulting ledger entry.
//
// Redelivered events (same event_id) are a successful no-op returning the
// current entry. A ValidationError means the event is malformed and must not
// be retried; any other error means nothing was applied and the caller should
// redeliver. The rank recomputation this triggers is asynchronous: a read
// immediately after Record may still observe the previous rank.
func (s *Service) Record(event models.ScoringEvent) (*models.LedgerEntry, error) {
	if err := event.Validate(); err != nil {
		return nil, &ValidationError{Reason: "bad payload", Err: err}
	}

	delta, err := s.policy.Evaluate(event.Kind)
	if err != nil {
		return nil, &ValidationError{Reason: "bad kind", Err: err}
	}

	semester := models.SemesterFor(event.OccurredAt)

	section := ""
	if student, err := s.store.GetStudent(event.UserID); err != nil {
		return nil, fmt.Errorf("failed to resolve student %s: %w", event.UserID, err)
	} else if student != nil {
		section = student.Section
	}

	activity := models.PointActivity{
		EventID:      event.EventID,
		UserID:       event.UserID,
		Semester:     semester,
		ActivityType: event.Kind,
		Points:       delta.Points,
		Description:  delta.Description,
		Timestamp:    event.OccurredAt.UnixMicro(),
		RelatedID:    event.RelatedEntityID,
	}

	entry, applied, err := s.applySerialized(&activity, event.Department, section)
	if err != nil {
		return nil, fmt.Errorf("failed to apply scoring event %s: %w", event.EventID, err)
	}

	if !applied {
		logger.Debug.Printf("Duplicate event %s for %s, returning current entry", event.EventID, event.UserID)
		metrics.DuplicateEventsTotal.WithLabelValues(event.Department).Inc()
		return entry, nil
	}

	metrics.ScoringEventsTotal.WithLabelValues(event.Department, event.Kind).Inc()
	logger.Debug.Printf(
		"Scored %s for %s: %+d points, total now %d",
		event.Kind, event.UserID, delta.Points, entry.TotalPoints,
	)

	// The per-user lock is already released here: the recompute trigger is
	// fire-and-forget relative to the caller.
	if s.ranker != nil {
		s.ranker.Request(event.Department, semester)
	}

	return entry, nil
}

// applySerialized holds the per-(user, semester) mutex across the store
// transaction so two concurrent Record calls for the same aggregate row
// cannot interleave their read-modify-write.
func (s *Service) applySerialized(activity *models.PointActivity, department, section string) (*models.LedgerEntry, bool, error) {
	key := activity.UserID + "|" + activity.Semester
	muIface, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)

	mu.Lock()
	defer mu.Unlock()

	return s.store.ApplyScoringEvent(activity, department, section)
}
