package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/probe"
	"github.com/dabonzo/sslmonitor-sub001/internal/scheduler"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
)

func urlParamInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(chi.URLParam(r, name))
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// normalizeTargetURL validates and canonicalizes a monitoring URL.
func normalizeTargetURL(rawURL string, ssrf *probe.SSRFProtection) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	if err := ssrf.ValidateURL(rawURL); err != nil {
		return "", err
	}
	return strings.TrimRight(rawURL, "/"), nil
}

// HandleGetTargets returns all active monitored targets
func HandleGetTargets(store storage.TargetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, err := store.ListActiveTargets(r.Context())
		if err != nil {
			http.Error(w, "Failed to fetch targets", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(targets)
	}
}

// HandleGetTarget returns a single target by ID
func HandleGetTarget(store storage.TargetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid target ID", http.StatusBadRequest)
			return
		}
		target, err := store.GetTarget(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Target not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to fetch target", http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(target)
	}
}

// HandleCreateTarget registers a new URL for monitoring. URLs are unique: if
// a deactivated target with the same URL exists it is reactivated instead.
func HandleCreateTarget(store storage.TargetStore, ssrf *probe.SSRFProtection, checks *scheduler.Scheduler, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var target models.MonitoredTarget
		if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		normalized, err := normalizeTargetURL(target.URL, ssrf)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		target.URL = normalized

		existing, err := store.GetTargetByURL(r.Context(), target.URL)
		if err != nil {
			http.Error(w, "Failed to check existing targets", http.StatusInternalServerError)
			return
		}
		if existing != nil {
			if existing.Active {
				http.Error(w, "Target with this URL already exists", http.StatusConflict)
				return
			}
			existing.Active = true
			existing.UptimeCheckEnabled = target.UptimeCheckEnabled
			existing.CertificateCheckEnabled = target.CertificateCheckEnabled
			if err := store.UpdateTarget(r.Context(), existing); err != nil {
				http.Error(w, "Failed to reactivate target", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(existing)
			return
		}

		if target.CheckIntervalMinutes <= 0 {
			target.CheckIntervalMinutes = 720
		}
		target.UptimeStatus = models.UptimeStatusUnknown
		target.CertificateStatus = "unknown"
		target.Active = true

		if err := store.CreateTarget(r.Context(), &target); err != nil {
			logger.Error("creating target failed", zap.Error(err))
			http.Error(w, "Failed to create target", http.StatusInternalServerError)
			return
		}

		// Kick off the first check right away so the new target has data.
		if _, err := checks.ScheduleImmediateCheck(r.Context(), target.ID, models.CheckTypeBoth); err != nil {
			logger.Warn("initial check for new target could not be queued",
				zap.Int("target_id", target.ID), zap.Error(err))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(target)
	}
}

// HandleUpdateTarget updates a target's monitoring settings
func HandleUpdateTarget(store storage.TargetStore, ssrf *probe.SSRFProtection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid target ID", http.StatusBadRequest)
			return
		}
		target, err := store.GetTarget(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Target not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to fetch target", http.StatusInternalServerError)
			}
			return
		}

		var update struct {
			UptimeCheckEnabled      *bool                     `json:"uptime_check_enabled"`
			CertificateCheckEnabled *bool                     `json:"certificate_check_enabled"`
			CheckIntervalMinutes    *int                      `json:"check_interval_minutes"`
			Validation              *models.ContentValidation `json:"validation"`
		}
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if update.UptimeCheckEnabled != nil {
			target.UptimeCheckEnabled = *update.UptimeCheckEnabled
		}
		if update.CertificateCheckEnabled != nil {
			target.CertificateCheckEnabled = *update.CertificateCheckEnabled
		}
		if update.CheckIntervalMinutes != nil {
			if *update.CheckIntervalMinutes < 1 {
				http.Error(w, "check_interval_minutes must be positive", http.StatusBadRequest)
				return
			}
			target.CheckIntervalMinutes = *update.CheckIntervalMinutes
		}
		if update.Validation != nil {
			target.Validation = update.Validation
		}

		if err := store.UpdateTarget(r.Context(), target); err != nil {
			http.Error(w, "Failed to update target", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(target)
	}
}

// HandleDeleteTarget soft-removes a target from monitoring. History is kept.
func HandleDeleteTarget(store storage.TargetStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid target ID", http.StatusBadRequest)
			return
		}
		if err := store.DeactivateTarget(r.Context(), id); err != nil {
			http.Error(w, "Failed to delete target", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleCheckTarget queues an immediate check for one target
func HandleCheckTarget(checks *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid target ID", http.StatusBadRequest)
			return
		}
		checkType := r.URL.Query().Get("type")

		status, err := checks.ScheduleImmediateCheck(r.Context(), id, checkType)
		if err != nil {
			switch {
			case errors.Is(err, scheduler.ErrTargetInactive):
				http.Error(w, "Target not found or inactive", http.StatusNotFound)
			case errors.Is(err, scheduler.ErrQueueFull):
				http.Error(w, "Check queue is full, try again later", http.StatusServiceUnavailable)
			default:
				http.Error(w, "Failed to queue check", http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(status)
	}
}

// HandleCheckBulk queues immediate checks for a set of targets
func HandleCheckBulk(checks *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TargetIDs []int  `json:"target_ids"`
			CheckType string `json:"check_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.TargetIDs) == 0 {
			http.Error(w, "target_ids is required", http.StatusBadRequest)
			return
		}
		statuses := checks.ScheduleBulk(r.Context(), req.TargetIDs, req.CheckType)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(statuses)
	}
}

// HandleGetTaskStatus returns the progress of a queued check task
func HandleGetTaskStatus(checks *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			http.Error(w, "Invalid task ID", http.StatusBadRequest)
			return
		}
		status, ok := checks.TaskStatus(id)
		if !ok {
			http.Error(w, "Task not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}
