package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/ledger"
)

// HandleSubmit accepts a student's task submission and scores it right away:
// the point delta does not wait for review.
func (h *EventHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	department := r.PathValue("department")
	taskID := r.PathValue("task")
	if department == "" || taskID == "" {
		http.Error(w, "Invalid department or task", http.StatusBadRequest)
		return
	}

	userID := r.Header.Get(h.service.Config.API.UserIDHeader)
	if userID == "" {
		http.Error(w, "Invalid user id specified", http.StatusUnauthorized)
		return
	}

	if err := h.service.ValidateAuthAndUser(r, department, userID); err != nil {
		logger.Error.Printf("Auth failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Content     string    `json:"content"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}

	sub, entry, err := h.service.SubmitTask(taskID, userID, department, req.Content, req.SubmittedAt)
	if err != nil {
		if ledger.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Error.Printf("Failed to submit task %s for %s: %v", taskID, userID, err)
		http.Error(w, "Failed to save submission", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, map[string]interface{}{
		"submission": sub,
		"entry":      entry,
	})
}

// HandleReview records a reviewer verdict. Points stay as scored at
// submission time; rejection does not claw them back.
func (h *EventHandler) HandleReview(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Invalid submission id", http.StatusBadRequest)
		return
	}

	var req struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := h.service.ReviewSubmission(id, req.Status, req.Comment)
	if err != nil {
		logger.Error.Printf("Review failed for %s: %v", id, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, sub)
}

// HandleResubmit replaces the payload of a reviewed submission. It is a
// content update only and never double-scores the task.
func (h *EventHandler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusForbidden)
		return
	}

	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Invalid submission id", http.StatusBadRequest)
		return
	}

	userID := r.Header.Get(h.service.Config.API.UserIDHeader)
	if userID == "" {
		http.Error(w, "Invalid user id specified", http.StatusUnauthorized)
		return
	}

	var req struct {
		Content     string    `json:"content"`
		SubmittedAt time.Time `json:"submitted_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}

	sub, err := h.service.Resubmit(id, userID, req.Content, req.SubmittedAt)
	if err != nil {
		logger.Error.Printf("Resubmit failed for %s: %v", id, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, sub)
}
