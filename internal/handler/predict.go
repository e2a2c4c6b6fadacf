package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"emotionserver/internal/config"
	"emotionserver/internal/dto"
	"emotionserver/internal/logger"
	"emotionserver/internal/middleware"
	"emotionserver/internal/service"
	"emotionserver/internal/service/frame"
)

// NoFaceMessage is returned with status 200 when the upload holds no face.
const NoFaceMessage = "No face detected"

// PredictEmotionHandler classifies the multipart "file" upload and stores the result.
func PredictEmotionHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes())

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			case errors.Is(err, http.ErrMissingFile):
				writeError(w, http.StatusBadRequest, "missing file")
			default:
				writeError(w, http.StatusBadRequest, "invalid multipart form")
			}
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			logger.Error("Error reading upload %q: %v", header.Filename, err)
			writeError(w, http.StatusBadRequest, "invalid upload")
			return
		}

		ctx := r.Context()
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
			defer cancel()
		}

		_, p, err := manager.PredictImage(ctx, data, header.Filename, middleware.GetRequestID(r.Context()))
		switch {
		case errors.Is(err, frame.ErrUndecodable):
			logger.Warning("Rejected upload %q: %v", header.Filename, err)
			writeError(w, http.StatusBadRequest, frame.ErrUndecodable.Error())
			return
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusServiceUnavailable, "prediction timed out")
			return
		case err != nil:
			logger.Error("Error predicting emotion for %q: %v", header.Filename, err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		if p == nil {
			writeJSON(w, http.StatusOK, dto.ErrorResponse{Error: NoFaceMessage})
			return
		}
		writeJSON(w, http.StatusOK, dto.NewPredictionResponse(p))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
