package webhook

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	logx "jokeline/pkg/logx"
)

// requestLogger logs one line per request. Health probes log at trace level.
func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []logx.Field{
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", status),
				logx.Int("bytes", ww.BytesWritten()),
				logx.Duration("took", time.Since(start)),
				logx.String("req_id", middleware.GetReqID(r.Context())),
			}
			switch {
			case status >= 500:
				log.Warn("http request", fields...)
			case r.URL.Path == "/healthz" || r.URL.Path == "/readyz":
				log.Trace("http request", fields...)
			default:
				log.Debug("http request", fields...)
			}
		})
	}
}
