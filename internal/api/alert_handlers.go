package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dabonzo/sslmonitor-sub001/internal/alerting"
	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
)

// HandleGetAlerts returns unresolved alerts, optionally filtered by
// ?target_id=, ?website_id=, ?type= and ?severity=.
func HandleGetAlerts(store storage.AlertStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter storage.AlertFilter
		if tid := r.URL.Query().Get("target_id"); tid != "" {
			if n, err := strconv.Atoi(tid); err == nil {
				filter.TargetID = n
			}
		}
		if wid := r.URL.Query().Get("website_id"); wid != "" {
			if n, err := strconv.Atoi(wid); err == nil {
				filter.WebsiteID = n
			}
		}
		filter.AlertType = r.URL.Query().Get("type")
		filter.Severity = r.URL.Query().Get("severity")

		alerts, err := store.ListUnresolvedAlerts(r.Context(), filter)
		if err != nil {
			http.Error(w, "Failed to fetch alerts", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alerts)
	}
}

// HandleAcknowledgeAlert marks an alert as seen without resolving it
func HandleAcknowledgeAlert(engine *alerting.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid alert ID", http.StatusBadRequest)
			return
		}
		var req struct {
			Note string `json:"note"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		alert, err := engine.Acknowledge(r.Context(), id, currentUser(r).ID, req.Note)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Alert not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to acknowledge alert", http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alert)
	}
}

// HandleResolveAlert closes an alert manually
func HandleResolveAlert(engine *alerting.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid alert ID", http.StatusBadRequest)
			return
		}
		alert, err := engine.Resolve(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Alert not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to resolve alert", http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alert)
	}
}

// HandleSuppressAlert mutes an alert's notifications until a given time
func HandleSuppressAlert(engine *alerting.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid alert ID", http.StatusBadRequest)
			return
		}
		var req struct {
			Until time.Time `json:"until"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Until.IsZero() {
			http.Error(w, "until timestamp is required", http.StatusBadRequest)
			return
		}
		alert, err := engine.Suppress(r.Context(), id, req.Until)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Alert not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to suppress alert", http.StatusInternalServerError)
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(alert)
	}
}

var validAlertTypes = map[string]bool{
	models.AlertTypeSSLExpiry:          true,
	models.AlertTypeSSLInvalid:         true,
	models.AlertTypeUptimeDown:         true,
	models.AlertTypeResponseTime:       true,
	models.AlertTypeLetsEncryptRenewal: true,
}

// HandleGetAlertConfigs returns the current user's alerting rules
func HandleGetAlertConfigs(store storage.AlertConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs, err := store.ListAlertConfigs(r.Context(), currentUser(r).ID)
		if err != nil {
			http.Error(w, "Failed to fetch alert configurations", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(configs)
	}
}

// HandleCreateAlertConfig creates a new alerting rule
func HandleCreateAlertConfig(store storage.AlertConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg models.AlertConfiguration
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if !validAlertTypes[cfg.AlertType] {
			http.Error(w, "Unknown alert type", http.StatusBadRequest)
			return
		}
		if cfg.AlertType == models.AlertTypeResponseTime && cfg.ThresholdResponseTimeMs <= 0 {
			http.Error(w, "threshold_response_time_ms is required for response_time alerts", http.StatusBadRequest)
			return
		}

		cfg.ID = 0
		cfg.UserID = currentUser(r).ID
		cfg.LastTriggeredAt = nil
		if err := store.CreateAlertConfig(r.Context(), &cfg); err != nil {
			http.Error(w, "Failed to create alert configuration", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(cfg)
	}
}

// HandleUpdateAlertConfig updates an alerting rule
func HandleUpdateAlertConfig(store storage.AlertConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid configuration ID", http.StatusBadRequest)
			return
		}
		existing, err := store.GetAlertConfig(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Configuration not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to fetch configuration", http.StatusInternalServerError)
			}
			return
		}
		if existing.UserID != currentUser(r).ID {
			http.Error(w, "Configuration not found", http.StatusNotFound)
			return
		}

		var update struct {
			Enabled                 *bool   `json:"enabled"`
			Severity                *string `json:"severity"`
			ThresholdDays           *int    `json:"threshold_days"`
			ThresholdResponseTimeMs *int    `json:"threshold_response_time_ms"`
			ChannelIDs              []int   `json:"channel_ids"`
			WebsiteID               *int    `json:"website_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if update.Enabled != nil {
			existing.Enabled = *update.Enabled
		}
		if update.Severity != nil {
			existing.Severity = *update.Severity
		}
		if update.ThresholdDays != nil {
			existing.ThresholdDays = *update.ThresholdDays
		}
		if update.ThresholdResponseTimeMs != nil {
			existing.ThresholdResponseTimeMs = *update.ThresholdResponseTimeMs
		}
		if update.ChannelIDs != nil {
			existing.ChannelIDs = update.ChannelIDs
		}
		if update.WebsiteID != nil {
			existing.WebsiteID = update.WebsiteID
		}

		if err := store.UpdateAlertConfig(r.Context(), existing); err != nil {
			http.Error(w, "Failed to update configuration", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(existing)
	}
}

// HandleDeleteAlertConfig removes an alerting rule
func HandleDeleteAlertConfig(store storage.AlertConfigStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid configuration ID", http.StatusBadRequest)
			return
		}
		existing, err := store.GetAlertConfig(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "Configuration not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to fetch configuration", http.StatusInternalServerError)
			}
			return
		}
		if existing.UserID != currentUser(r).ID {
			http.Error(w, "Configuration not found", http.StatusNotFound)
			return
		}
		if err := store.DeleteAlertConfig(r.Context(), id); err != nil {
			http.Error(w, "Failed to delete configuration", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
