package route

import (
	"net/http"

	"emotionserver/internal/config"
	"emotionserver/internal/handler"
	"emotionserver/internal/logger"
	"emotionserver/internal/metrics"
	"emotionserver/internal/middleware"
	"emotionserver/internal/service"
)

// SetupRoutes registers the API endpoints and wraps the mux with
// request id, metrics and authentication middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, logger *logger.Logger, metricsManager *metrics.Manager) http.Handler {
	mux := http.NewServeMux()

	// Prediction
	mux.HandleFunc("POST /predict_emotion", handler.PredictEmotionHandler(manager, cfg, logger))

	// History
	mux.HandleFunc("GET /history", handler.GetHistoryHandler(manager, logger))
	mux.HandleFunc("GET /history/stats", handler.GetStatsHandler(manager, logger))
	mux.HandleFunc("GET /history/{id}", handler.GetPredictionHandler(manager, logger))
	mux.HandleFunc("DELETE /history/{id}", handler.DeletePredictionHandler(manager, logger))
	mux.HandleFunc("DELETE /history", handler.ClearHistoryHandler(manager, logger))

	// Live view
	mux.HandleFunc("GET /api/view", handler.ViewWebsocketHandler(manager, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))

	mux.HandleFunc("GET /healthz", handler.HealthHandler(manager))

	var recorder middleware.HTTPRecorder
	if metricsManager != nil {
		mux.Handle("GET /metrics", metricsManager.Handler())
		recorder = metricsManager
	}

	// Apply middleware
	var h http.Handler = middleware.AuthMiddleware(cfg.APIToken, mux)
	h = middleware.Metrics(recorder, logger, h)
	return middleware.RequestID(h)
}
