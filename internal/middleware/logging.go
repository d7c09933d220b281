package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// responseLog records what a handler wrote.
type responseLog struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (l *responseLog) WriteHeader(code int) {
	l.status = code
	l.ResponseWriter.WriteHeader(code)
}

func (l *responseLog) Write(b []byte) (int, error) {
	n, err := l.ResponseWriter.Write(b)
	l.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// websocket upgrade needs for hijacking.
func (l *responseLog) Unwrap() http.ResponseWriter {
	return l.ResponseWriter
}

// quiet reports paths whose successful requests only log at debug.
func quiet(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/static/")
}

// RequestLogger logs one line per request. Spectator feeds log once when the
// socket closes, with the time the spectator stayed connected.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseLog{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			if rec.status == http.StatusSwitchingProtocols {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "spectator feed closed",
					slog.String("path", r.URL.Path),
					slog.Duration("connected", elapsed),
					slog.String("remote", RealIP(r)),
				)
				return
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", elapsed),
				slog.String("remote", RealIP(r)),
			}
			if r.Header.Get("HX-Request") == "true" {
				attrs = append(attrs, slog.Bool("htmx", true))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			case quiet(r.URL.Path):
				level = slog.LevelDebug
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}
