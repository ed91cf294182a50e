package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/notification"
)

// HandleGetChannels returns the current user's notification channels
func HandleGetChannels(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var channels []models.NotificationChannel
		err := db.Where("user_id = ?", currentUser(r).ID).
			Order("created_at DESC").
			Find(&channels).Error
		if err != nil {
			http.Error(w, "Failed to fetch channels", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(channels)
	}
}

// HandleGetProviders lists the available notification provider types
func HandleGetProviders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names := make([]string, 0)
		for name := range notification.GetAllProviders() {
			names = append(names, name)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(names)
	}
}

// HandleCreateChannel creates a notification channel
func HandleCreateChannel(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var channel models.NotificationChannel
		if err := json.NewDecoder(r.Body).Decode(&channel); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		provider, ok := notification.GetProvider(channel.Type)
		if !ok {
			http.Error(w, "Unknown provider type", http.StatusBadRequest)
			return
		}
		if err := provider.Validate(channel.Config); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		channel.ID = 0
		channel.UserID = currentUser(r).ID
		if err := db.Create(&channel).Error; err != nil {
			http.Error(w, "Failed to create channel", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(channel)
	}
}

// HandleUpdateChannel updates a notification channel
func HandleUpdateChannel(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid channel ID", http.StatusBadRequest)
			return
		}

		var existing models.NotificationChannel
		err = db.Where("id = ? AND user_id = ?", id, currentUser(r).ID).First(&existing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				http.Error(w, "Channel not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to fetch channel", http.StatusInternalServerError)
			}
			return
		}

		var update models.NotificationChannel
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		if update.Type != "" && update.Type != existing.Type {
			if _, ok := notification.GetProvider(update.Type); !ok {
				http.Error(w, "Unknown provider type", http.StatusBadRequest)
				return
			}
			existing.Type = update.Type
		}
		if update.Name != "" {
			existing.Name = update.Name
		}
		if update.Config != nil {
			provider, _ := notification.GetProvider(existing.Type)
			if err := provider.Validate(update.Config); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			existing.Config = update.Config
		}
		existing.IsDefault = update.IsDefault
		existing.Active = update.Active

		if err := db.Save(&existing).Error; err != nil {
			http.Error(w, "Failed to update channel", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(existing)
	}
}

// HandleDeleteChannel removes a notification channel
func HandleDeleteChannel(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid channel ID", http.StatusBadRequest)
			return
		}
		result := db.Where("id = ? AND user_id = ?", id, currentUser(r).ID).
			Delete(&models.NotificationChannel{})
		if result.Error != nil {
			http.Error(w, "Failed to delete channel", http.StatusInternalServerError)
			return
		}
		if result.RowsAffected == 0 {
			http.Error(w, "Channel not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleTestChannel sends a test notification through one channel
func HandleTestChannel(db *gorm.DB, dispatcher *notification.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid channel ID", http.StatusBadRequest)
			return
		}

		var channel models.NotificationChannel
		err = db.Where("id = ? AND user_id = ?", id, currentUser(r).ID).First(&channel).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				http.Error(w, "Channel not found", http.StatusNotFound)
			} else {
				http.Error(w, "Failed to fetch channel", http.StatusInternalServerError)
			}
			return
		}

		if err := dispatcher.TestChannel(r.Context(), &channel); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message": "Test notification sent"}`))
	}
}
