package route

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"emotionserver/internal/config"
	"emotionserver/internal/dto"
	"emotionserver/internal/logger"
	"emotionserver/internal/metrics"
	"emotionserver/internal/model"
	"emotionserver/internal/repository/sqlite"
	"emotionserver/internal/service"
	"emotionserver/internal/service/emotion"
	"emotionserver/internal/service/emotion/emotiontest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	token   string
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	m := metrics.NewManager()
	classifier := &emotiontest.OneHotClassifier{Index: 6}
	pipeline := emotion.NewPipeline(
		emotiontest.Locator{Regions: []image.Rectangle{image.Rect(4, 4, 36, 36)}},
		classifier,
		emotion.WithObserver(m),
	)
	manager := service.NewManager(pipeline, repo, nil, m, logger.NewNop())

	cfg := config.New()
	cfg.APIToken = token
	return &testServer{handler: SetupRoutes(manager, cfg, logger.NewNop(), m), token: token}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T) dto.PredictionResponse {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var data bytes.Buffer
	require.NoError(t, png.Encode(&data, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "face.png")
	require.NoError(t, err)
	part.Write(data.Bytes())
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/predict_emotion", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp dto.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)
	return resp
}

func TestRoutes_HistoryLifecycle(t *testing.T) {
	s := newTestServer(t, "")

	first := s.upload(t)
	s.upload(t)
	assert.Equal(t, "surprised", first.Emotion)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/history?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))
	var page []dto.PredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 1)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/history/%d", first.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/history/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.PredictionStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.PerEmotion["surprised"].Count)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/history/%d", first.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/history/%d", first.ID), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodDelete, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var del dto.DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &del))
	assert.Equal(t, int64(1), del.Deleted)
}

func TestRoutes_HistoryBadInput(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/history?since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/history/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/predict_emotion", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRoutes_Auth(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health dto.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, emotiontest.Labels, health.Labels)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutes_LiveViewDisabled(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/view", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutes_Metrics(t *testing.T) {
	s := newTestServer(t, "")
	s.upload(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `emotion_predictions_total{emotion="surprised"} 1`), body)
	assert.True(t, strings.Contains(body, "emotion_predictions_stored_total 1"))
	assert.True(t, strings.Contains(body, `route="POST /predict_emotion"`))
}
