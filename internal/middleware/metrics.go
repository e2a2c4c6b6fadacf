package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"emotionserver/internal/logger"
)

// HTTPRecorder receives one observation per served request.
type HTTPRecorder interface {
	RecordHTTPRequest(route, method string, status int, d time.Duration)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Metrics records status and latency per route pattern and logs failed requests.
func Metrics(recorder HTTPRecorder, logger *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		// The mux fills in Pattern on the way through.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		if recorder != nil {
			recorder.RecordHTTPRequest(route, r.Method, sw.status, elapsed)
		}

		switch {
		case sw.status >= 500:
			logger.Error("%s %s -> %d in %v [%s]", r.Method, r.URL.Path, sw.status, elapsed, GetRequestID(r.Context()))
		case sw.status >= 400:
			logger.Warning("%s %s -> %d in %v [%s]", r.Method, r.URL.Path, sw.status, elapsed, GetRequestID(r.Context()))
		default:
			logger.Debug("%s %s -> %d in %v", r.Method, r.URL.Path, sw.status, elapsed)
		}
	})
}
