package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rushteam/recserve/metrics"
)

const headerRequestID = "X-Request-ID"

type ctxKey struct{}

// requestID 透传或生成请求 id，写入响应头与 context
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestID 返回 context 中的请求 id
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// accessLog 记录访问日志与请求指标，endpoint 取路由模板而不是原始路径
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		took := time.Since(start)
		if endpoint != "/metrics" {
			metrics.ObserveRequest(endpoint, strconv.Itoa(status), took)
		}

		ev := s.logger.Info()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		} else if endpoint == "/health" || endpoint == "/metrics" {
			ev = s.logger.Debug()
		}
		ev.Str("request_id", RequestID(r.Context())).
			Str("method", r.Method).
			Str("endpoint", endpoint).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Float64("duration_ms", float64(took.Microseconds())/1000).
			Msg("request")
	})
}
