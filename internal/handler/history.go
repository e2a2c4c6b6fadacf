package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"emotionserver/internal/dto"
	"emotionserver/internal/logger"
	"emotionserver/internal/repository"
	"emotionserver/internal/service"
)

// TotalCountHeader carries the number of records matching a history query.
const TotalCountHeader = "X-Total-Count"

// GetHistoryHandler returns stored predictions, newest first.
func GetHistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := &dto.PredictionFilter{
			Emotion: q.Get("emotion"),
			Limit:   atoiDefault(q.Get("limit"), 0),
			Offset:  atoiDefault(q.Get("offset"), 0),
		}
		if s := q.Get("since"); s != "" {
			since, err := time.Parse(time.RFC3339, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "since must be RFC3339")
				return
			}
			filter.Since = since
		}

		records, total, err := manager.History(r.Context(), filter)
		if err != nil {
			logger.Error("Error querying predictions: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		out := make([]dto.PredictionResponse, 0, len(records))
		for i := range records {
			out = append(out, dto.NewPredictionResponse(&records[i]))
		}
		w.Header().Set(TotalCountHeader, strconv.Itoa(total))
		writeJSON(w, http.StatusOK, out)
	}
}

// GetPredictionHandler returns one record by the {id} path value.
func GetPredictionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		p, err := manager.GetPrediction(r.Context(), id)
		if err != nil {
			writeRepoError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.NewPredictionResponse(p))
	}
}

// GetStatsHandler returns per-emotion totals.
func GetStatsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.Stats(r.Context())
		if err != nil {
			logger.Error("Error computing prediction stats: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// DeletePredictionHandler removes one record.
func DeletePredictionHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := manager.DeletePrediction(r.Context(), id); err != nil {
			writeRepoError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.DeleteResponse{Deleted: 1})
	}
}

// ClearHistoryHandler removes every record.
func ClearHistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := manager.ClearHistory(r.Context())
		if err != nil {
			logger.Error("Error clearing predictions: %v", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, dto.DeleteResponse{Deleted: n})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeRepoError(w http.ResponseWriter, logger *logger.Logger, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "prediction not found")
		return
	}
	logger.Error("Error accessing predictions: %v", err)
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

// atoiDefault parses s or falls back to def when s is empty or invalid.
func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}
