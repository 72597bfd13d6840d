package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/app"
	"github.com/shrimpsizemoose/semla/internal/ledger"
	"github.com/shrimpsizemoose/semla/internal/metrics"
	"github.com/shrimpsizemoose/semla/internal/models"
)

type EventHandler struct {
	service *app.Service
}

func NewEventHandler(service *app.Service) *EventHandler {
	return &EventHandler{
		service: service,
	}
}

// HandleScoringEvent ingests one scoring event from a collaborator. Delivery
// is at-least-once upstream, so redelivery of the same event_id responds 200
// with the unchanged entry. A non-committed event responds 503 and the
// caller redelivers.
func (h *EventHandler) HandleScoringEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		duration := time.Since(start).Seconds()
		metrics.APIRequestDuration.WithLabelValues(
			r.URL.Path,
			r.Method,
			"200",
		).Observe(duration)
	}()

	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	department := r.PathValue("department")
	if department == "" {
		logger.Error.Printf("Failed to extract department from path: %s", r.URL.Path)
		http.Error(w, "Invalid department", http.StatusBadRequest)
		return
	}

	var event models.ScoringEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	event.Department = department
	if event.EventID == "" {
		event.EventID = models.DeriveEventID(event.Kind, event.RelatedEntityID, event.UserID)
	}

	if err := h.service.ValidateAuthAndUser(r, department, event.UserID); err != nil {
		logger.Error.Printf("Auth failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entry, err := h.service.Ledger.Record(event)
	if err != nil {
		h.writeRecordError(w, err)
		return
	}

	writeJSON(w, entry)
}

// HandleAttendance marks a batch of students as attending an event, +20 each.
func (h *EventHandler) HandleAttendance(w http.ResponseWriter, r *http.Request) {
	h.handleEventBatch(w, r, h.service.MarkAttendance)
}

// HandleWinners marks event winners, +30 each.
func (h *EventHandler) HandleWinners(w http.ResponseWriter, r *http.Request) {
	h.handleEventBatch(w, r, h.service.MarkWinners)
}

func (h *EventHandler) handleEventBatch(
	w http.ResponseWriter,
	r *http.Request,
	mark func(department, eventID string, userIDs []string, occurredAt time.Time) ([]models.LedgerEntry, error),
) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	department := r.PathValue("department")
	eventID := r.PathValue("event")
	if department == "" || eventID == "" {
		http.Error(w, "Invalid department or event", http.StatusBadRequest)
		return
	}

	var req struct {
		UserIDs    []string  `json:"user_ids"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.UserIDs) == 0 {
		http.Error(w, "user_ids must not be empty", http.StatusBadRequest)
		return
	}

	entries, err := mark(department, eventID, req.UserIDs, req.OccurredAt)
	if err != nil {
		h.writeRecordError(w, err)
		return
	}

	writeJSON(w, map[string]interface{}{
		"entries": entries,
	})
}

// HandleCreateTask registers a task deadline, the fact submissions are
// classified against.
func (h *EventHandler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	department := r.PathValue("department")
	if department == "" {
		http.Error(w, "Invalid department", http.StatusBadRequest)
		return
	}

	var task models.TaskDeadline
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	task.Department = department

	if err := task.Validate(); err != nil {
		http.Error(w, "Invalid task", http.StatusBadRequest)
		return
	}

	if err := h.service.Store.CreateTaskDeadline(task); err != nil {
		logger.Error.Printf("Failed to save task: %v", err)
		http.Error(w, "Failed to save task", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleUpsertStudent maintains the roster row the ledger reads
// department/section from.
func (h *EventHandler) HandleUpsertStudent(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	department := r.PathValue("department")
	if department == "" {
		http.Error(w, "Invalid department", http.StatusBadRequest)
		return
	}

	var student models.Student
	if err := json.NewDecoder(r.Body).Decode(&student); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	student.Department = department

	if err := student.Validate(); err != nil {
		http.Error(w, "Invalid student", http.StatusBadRequest)
		return
	}

	if err := h.service.Store.UpsertStudent(student); err != nil {
		logger.Error.Printf("Failed to save student: %v", err)
		http.Error(w, "Failed to save student", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *EventHandler) writeRecordError(w http.ResponseWriter, err error) {
	if ledger.IsValidation(err) {
		logger.Error.Printf("Rejected event: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Nothing was applied: tell the caller to redeliver the same event.
	logger.Error.Printf("Failed to commit event: %v", err)
	http.Error(w, "Failed to record event, retry", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error.Printf("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
