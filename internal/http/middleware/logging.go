// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the correlation and logging chain: RequestID attaches
// the X-Request-ID correlation id, Logger emits one structured access log
// line per request and stores a request-scoped zerolog.Logger in the context,
// and Recovery turns panics into the API's JSON string 500 body. Compose them
// in that order so panics and errors carry the correlation id.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	// maxQueryLogLength caps the raw query string in access logs.
	maxQueryLogLength = 2048
)

// RequestID reuses an incoming X-Request-ID or generates a fresh UUID, then
// writes it to the response header and the Gin context. Every workflow uses
// this id as the correlation id for published lifecycle events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one access log line per request. The line carries the
// correlation id, the acting user (X-User-Email), route, remote address,
// latency, and byte counts. Level follows the outcome: error for 5xx or
// collected Gin errors, warn for 4xx, info otherwise.
//
// A request-scoped logger with the same fields is stored in the context for
// LoggerFrom.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path // unmatched route
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("user_email", c.GetHeader("X-User-Email")).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		line := l.With().
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		switch status := c.Writer.Status(); {
		case len(c.Errors) > 0:
			line.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			line.Error().Msg("request")
		case status >= 400:
			line.Warn().Msg("request")
		default:
			line.Info().Msg("request")
		}
	}
}

// Recovery logs the panic with its stack and, when nothing has been written
// yet, responds with the API's standard 500 string body.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", asString(rid)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			c.AbortWithStatusJSON(http.StatusInternalServerError, "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger, or a
// bare fallback so callers never need a nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes (good enough for log output); max <= 0
// disables the cap.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
