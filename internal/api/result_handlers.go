package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dabonzo/sslmonitor-sub001/internal/models"
	"github.com/dabonzo/sslmonitor-sub001/internal/storage"
	"github.com/dabonzo/sslmonitor-sub001/internal/summary"
)

// HandleGetTargetResults returns recent check results for one target.
// Supports ?type=, ?since= (RFC3339), ?until= and ?limit= filters.
func HandleGetTargetResults(store storage.ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid target ID", http.StatusBadRequest)
			return
		}

		filter := storage.ResultFilter{TargetID: id}
		filter.CheckType = r.URL.Query().Get("type")
		if since := r.URL.Query().Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				http.Error(w, "Invalid since timestamp", http.StatusBadRequest)
				return
			}
			filter.Since = &t
		}
		if until := r.URL.Query().Get("until"); until != "" {
			t, err := time.Parse(time.RFC3339, until)
			if err != nil {
				http.Error(w, "Invalid until timestamp", http.StatusBadRequest)
				return
			}
			filter.Until = &t
		}
		if limit := r.URL.Query().Get("limit"); limit != "" {
			if n, err := strconv.Atoi(limit); err == nil {
				filter.Limit = n
			}
		}

		results, err := store.ListResults(r.Context(), filter)
		if err != nil {
			http.Error(w, "Failed to fetch results", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	}
}

// HandleGetTargetSummaries returns aggregated statistics for one target.
// ?period= selects the granularity (default daily), ?days= the lookback.
func HandleGetTargetSummaries(store storage.SummaryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlParamInt(r, "id")
		if err != nil {
			http.Error(w, "Invalid target ID", http.StatusBadRequest)
			return
		}

		periodType := r.URL.Query().Get("period")
		if periodType == "" {
			periodType = models.PeriodDaily
		}
		switch periodType {
		case models.PeriodHourly, models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly:
		default:
			http.Error(w, "Invalid period type", http.StatusBadRequest)
			return
		}

		days := 30
		if d := r.URL.Query().Get("days"); d != "" {
			if n, err := strconv.Atoi(d); err == nil && n > 0 {
				days = n
			}
		}

		summaries, err := store.ListSummaries(r.Context(), id, periodType, time.Now().UTC().AddDate(0, 0, -days))
		if err != nil {
			http.Error(w, "Failed to fetch summaries", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	}
}

// HandleTriggerAggregation recomputes summaries for a period on demand,
// e.g. after a backfill.
func HandleTriggerAggregation(aggregator *summary.Aggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PeriodType string    `json:"period_type"`
			Reference  time.Time `json:"reference"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeriodType == "" {
			http.Error(w, "period_type is required", http.StatusBadRequest)
			return
		}
		if req.Reference.IsZero() {
			req.Reference = time.Now().UTC()
		}

		if err := aggregator.Aggregate(r.Context(), req.PeriodType, req.Reference); err != nil {
			logger.Error("manual aggregation failed", zap.String("period_type", req.PeriodType), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message": "Aggregation completed"}`))
	}
}
