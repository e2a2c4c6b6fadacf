package handler

import (
	"net/http"

	"emotionserver/internal/dto"
	"emotionserver/internal/service"
)

// HealthHandler reports liveness, the loaded label order and connected viewers.
func HealthHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewers := 0
		if hub := manager.GetWebsocketService(); hub != nil {
			viewers = hub.GetClientCount()
		}
		writeJSON(w, http.StatusOK, dto.HealthResponse{
			Status:  "ok",
			Labels:  manager.Labels(),
			Viewers: viewers,
		})
	}
}
