package handlers

import (
	"net/http"
	"strconv"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/models"
)

// HandleLeaderboard returns the partition leaderboard ordered by rank.
//
// Ranks are eventually consistent with the totals: a read racing a fresh
// scoring event may see the pre-recompute rank for the just-updated student.
// The window is bounded (recompute fires after every commit) but not zero.
func (h *EventHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusNotFound)
		return
	}

	department := r.PathValue("department")
	if department == "" {
		logger.Error.Printf("Failed to extract department from path: %s", r.URL.Path)
		http.Error(w, "Invalid department", http.StatusBadRequest)
		return
	}

	semester := r.URL.Query().Get("semester")
	if semester == "" {
		semester = models.CurrentSemester()
	}
	section := r.URL.Query().Get("section")

	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.service.Leaderboard(department, semester, section, limit)
	if err != nil {
		logger.Error.Printf("Failed to fetch leaderboard for %s/%s: %v", department, semester, err)
		http.Error(w, "Failed to fetch leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	writeJSON(w, map[string]interface{}{
		"semester": semester,
		"rows":     entries,
	})
}

// HandleStudentStats returns one student's entry plus recent activity.
// A student with no activity yet gets a zero-valued entry, not a 404.
func (h *EventHandler) HandleStudentStats(w http.ResponseWriter, r *http.Request) {
	if !h.service.ValidateHeaders(r.Header) {
		http.Error(w, "these are not the droids you are looking for", http.StatusNotFound)
		return
	}

	userID := r.PathValue("student")
	if userID == "" {
		http.Error(w, "Invalid student", http.StatusBadRequest)
		return
	}

	semester := r.URL.Query().Get("semester")
	if semester == "" {
		semester = models.CurrentSemester()
	}

	stats, err := h.service.StudentStats(userID, semester)
	if err != nil {
		logger.Error.Printf("Failed to fetch stats for %s: %v", userID, err)
		http.Error(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}

	writeJSON(w, stats)
}
