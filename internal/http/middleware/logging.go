// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the correlation-id and recovery plumbing every request
// goes through, plus a plain (non-redacting) access logger:
//
//   - RequestID() gives each request a stable correlation id, propagated via
//     X-Request-ID and stored in the Gin context. Scheduler ticks triggered
//     over the API and the webhook ingests they cause can then be tied
//     together in the logs.
//   - Logger() emits structured access logs and attaches a request-scoped
//     zerolog.Logger; level follows the outcome (info/warn/error). The
//     router uses RedactingLogger instead because nearly every request here
//     carries contact phone numbers; Logger() remains for deployments that
//     ship logs to a store with its own scrubbing.
//   - Recovery() converts panics into the shared JSON 500 envelope while
//     keeping the correlation id and logging the stack.
//   - LoggerFrom() hands handlers the request-scoped logger, e.g.
//     lg.Info().Str("message_id", id).Msg("send accepted").
//
// Compose as RequestID, then a logger, then Recovery, so panics are logged
// with their correlation id. Query strings are truncated to a capped length
// and the request-scoped logger lives under the "logger" context key.
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
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation identifier per request.
// An incoming X-Request-ID is reused (header lookup is case-insensitive),
// otherwise a new UUIDv4 is generated; either way the id is written to the
// response header and stored under the "requestID" context key. Goes first
// in the chain so every later log line and error envelope can carry it.
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

// Logger writes a structured access log for each request and response.
//
// Records method, route path, remote IP, user agent, referer, correlation
// id, the owner id when auth middleware stored one, request size, response
// status, latency, and bytes written. A request-scoped zerolog.Logger is
// stored under the "logger" context key for downstream enrichment. Level
// follows the outcome: error for 5xx or collected Gin errors, warn for 4xx,
// info otherwise. Place after RequestID().
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Build request-scoped logger with common fields.
		rid, _ := c.Get(requestIDKey)
		uid, _ := c.Get("userID")
		path := c.FullPath()
		if path == "" {
			// Fallback when route not matched / 404.
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", asString(rid)).
			Str("user_id", asString(uid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("referer", c.Request.Referer()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			// ContentLength can be -1 if unknown.
			Int64("bytes_in", c.Request.ContentLength).
			Logger()

		// Make it available to handlers/services.
		c.Set("logger", &l)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		bytesOut := c.Writer.Size()

		// Attach response fields & emit at level based on status.
		ev := l.With().
			Int("status", status).
			Dur("latency", latency).
			Int("bytes_out", bytesOut).
			Logger()

		switch {
		// If Gin collected errors, prefer error level.
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery intercepts panics, logs the stack with the request id, and when
// nothing has been written yet answers with the same JSON error envelope the
// handlers use:
//
//	{ "request_id": "...", "code": "internal_error", "message": "internal server error" }
//
// A panic after the response started only aborts with a bare 500. Place
// after the logger so the panic is captured with structured context.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				// Only write if nothing has been written yet.
				if !c.Writer.Written() {
					c.Header("Content-Type", "application/json")
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger. When no Logger()
// ran, a plain fallback without request fields is returned, so callers
// never need a nil check.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// asString unwraps a context value that should be a string; anything else
// becomes "".
func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate caps s at max bytes and appends an ellipsis; max <= 0 disables
// the cap. Byte (not rune) truncation is fine for log output.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
