package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/models"
	"github.com/shrimpsizemoose/semla/internal/rank"
	"github.com/shrimpsizemoose/semla/internal/scoring"
	"github.com/shrimpsizemoose/semla/internal/store"
)

type Service struct {
	Config *Config
	Store  store.LedgerStore
	Ledger *ledger.Service
	Ranker *rank.Calculator
	Auth   *Auth
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	st, err := NewStore(config.Database.DSN, config.Database.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	auth, err := NewAuth(config)
	if err != nil {
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	ranker := rank.NewCalculator(st)
	ledgerSvc := ledger.NewService(st, &config.Scoring, ranker)

	return &Service{
		Config: config,
		Store:  st,
		Ledger: ledgerSvc,
		Ranker: ranker,
		Auth:   auth,
	}, nil
}

// StudentStats is the single-user projection: the aggregate entry plus the
// most recent activity rows, newest first. Entry is always populated — "no
// activity yet" comes back as an explicit zero-valued entry, not an error.
type StudentStats struct {
	Entry            *models.LedgerEntry    `json:"entry"`
	RecentActivities []models.PointActivity `json:"recent_activities"`
}

func (s *Service) ValidateAuthAndUser(r *http.Request, department, userID string) error {
	if !s.Config.Server.EnableAuth {
		return nil
	}

	authHeader := r.Header.Get(s.Auth.tokenHeader)
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("Invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	return s.Auth.ValidateToken(r.Context(), department, userID, token)
}

func (s *Service) ValidateHeaders(headers map[string][]string) bool {
	for _, required := range s.Config.API.RequiredHeaders {
		value := headers[http.CanonicalHeaderKey(required.Name)]
		if len(value) == 0 || !strings.EqualFold(value[0], required.Value) {
			return false
		}
	}
	return true
}

// Leaderboard returns the partition's entries ordered by rank, optionally
// narrowed to one section. Ranks are eventually consistent: right after a
// scoring event they may trail the totals until the coalesced recompute lands.
func (s *Service) Leaderboard(department, semester, section string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = s.Config.Leaderboard.DefaultLimit
	}
	entries, err := s.Store.TopEntries(department, semester, section, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	return entries, nil
}

func (s *Service) StudentStats(userID, semester string) (*StudentStats, error) {
	entry, err := s.Store.GetLedgerEntry(userID, semester)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stats: %w", err)
	}
	if entry == nil {
		department, section := "", ""
		if student, err := s.Store.GetStudent(userID); err == nil && student != nil {
			department, section = student.Department, student.Section
		}
		entry = models.ZeroLedgerEntry(userID, department, section, semester)
	}

	activities, err := s.Store.RecentActivities(userID, semester, s.Config.Leaderboard.RecentActivites)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activities: %w", err)
	}
	if activities == nil {
		activities = []models.PointActivity{}
	}

	return &StudentStats{
		Entry:            entry,
		RecentActivities: activities,
	}, nil
}

// SubmitTask records a new submission and scores it immediately: on-time vs
// late is decided against the task deadline, points land before any review.
// A task can be submitted once per student; updates go through Resubmit.
func (s *Service) SubmitTask(taskID, userID, department, content string, submittedAt time.Time) (*models.Submission, *models.LedgerEntry, error) {
	task, err := s.Store.GetTaskDeadline(taskID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up task %s: %w", taskID, err)
	}
	if task == nil {
		return nil, nil, fmt.Errorf("unknown task: %s", taskID)
	}

	if existing, err := s.Store.GetUserTaskSubmission(taskID, userID); err != nil {
		return nil, nil, fmt.Errorf("failed to check existing submission: %w", err)
	} else if existing != nil {
		return nil, nil, fmt.Errorf("task %s already submitted by %s, use resubmit", taskID, userID)
	}

	sub := &models.Submission{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		UserID:      userID,
		Department:  department,
		Status:      models.SubmissionPending,
		Content:     content,
		SubmittedAt: submittedAt.UnixMicro(),
	}
	if err := sub.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid submission: %w", err)
	}
	if err := s.Store.CreateSubmission(sub); err != nil {
		return nil, nil, err
	}

	kind := scoring.ClassifySubmission(time.UnixMicro(task.Deadline), submittedAt)
	event := models.NewScoringEvent(kind, taskID, userID, department, submittedAt)

	entry, err := s.Ledger.Record(event)
	if err != nil {
		return nil, nil, fmt.Errorf("submission %s saved but scoring failed, retry the event: %w", sub.ID, err)
	}

	return sub, entry, nil
}

// ReviewSubmission applies a reviewer verdict to a pending submission.
// Points are not touched: scoring happened at submission time and rejection
// does not claw anything back.
func (s *Service) ReviewSubmission(id, status, comment string) (*models.Submission, error) {
	if err := models.ValidReviewStatus(status); err != nil {
		return nil, err
	}

	sub, err := s.Store.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("unknown submission: %s", id)
	}
	if !sub.CanReview() {
		return nil, fmt.Errorf("submission %s is %s, only pending submissions can be reviewed", id, sub.Status)
	}

	now := time.Now().UnixMicro()
	if err := s.Store.UpdateSubmissionReview(id, status, comment, now); err != nil {
		return nil, err
	}

	sub.Status = status
	sub.ReviewComment = comment
	sub.ReviewedAt = now
	return sub, nil
}

// Resubmit replaces the payload of a reviewed submission and puts it back in
// the queue. This is a content update, not a new scoring event: the original
// submission was already scored once and stays scored exactly once.
func (s *Service) Resubmit(id, userID, content string, submittedAt time.Time) (*models.Submission, error) {
	sub, err := s.Store.GetSubmission(id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, fmt.Errorf("unknown submission: %s", id)
	}
	if sub.UserID != userID {
		return nil, fmt.Errorf("submission %s belongs to another student", id)
	}
	if !sub.CanResubmit() {
		return nil, fmt.Errorf("submission %s is %s, only reviewed submissions can be resubmitted", id, sub.Status)
	}

	if err := s.Store.UpdateSubmissionContent(id, content, submittedAt.UnixMicro()); err != nil {
		return nil, err
	}

	sub.Content = content
	sub.SubmittedAt = submittedAt.UnixMicro()
	sub.Status = models.SubmissionPending
	sub.ReviewComment = ""
	return sub, nil
}

// MarkAttendance scores event participation for a batch of students. Each
// student gets one +20 activity; redelivery for any of them is a no-op, and
// the partition recompute coalesces to a single run per batch rather than
// one per student.
func (s *Service) MarkAttendance(department, eventID string, userIDs []string, occurredAt time.Time) ([]models.LedgerEntry, error) {
	return s.recordForEach(models.KindEventParticipation, department, eventID, userIDs, occurredAt)
}

// MarkWinners scores event wins (+30) for the given students.
func (s *Service) MarkWinners(department, eventID string, userIDs []string, occurredAt time.Time) ([]models.LedgerEntry, error) {
	return s.recordForEach(models.KindEventWinning, department, eventID, userIDs, occurredAt)
}

func (s *Service) recordForEach(kind, department, relatedID string, userIDs []string, occurredAt time.Time) ([]models.LedgerEntry, error) {
	entries := make([]models.LedgerEntry, 0, len(userIDs))
	for _, userID := range userIDs {
		event := models.NewScoringEvent(kind, relatedID, userID, department, occurredAt)
		entry, err := s.Ledger.Record(event)
		if err != nil {
			return entries, fmt.Errorf("failed to score %s for %s: %w", kind, userID, err)
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func (s *Service) Close() error {
	var errs []error

	// Let in-flight recomputes land before the store goes away.
	s.Ranker.Wait()

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Auth.Close(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
