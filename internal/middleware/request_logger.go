package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/pkg/logger"
)

// RequestLogger writes one structured line per request through the global
// logger.
func RequestLogger() echo.MiddlewareFunc {
	return RequestLoggerWith(logger.Get())
}

// RequestLoggerWith logs to l. Lines carry the matched route and resource
// next to the raw path, and the caller's role once authentication has run.
// 401, 403 and 429 are logged at info.
func RequestLoggerWith(l *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			fields := append(requestFields(c, status, time.Since(start)), principalFields(PrincipalFrom(c))...)
			if err != nil && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Error(err))
			}
			level, msg := outcome(status)
			if ce := l.Check(level, msg); ce != nil {
				ce.Write(fields...)
			}
			return err
		}
	}
}

func requestFields(c echo.Context, status int, latency time.Duration) []zap.Field {
	req := c.Request()
	res := c.Response()
	requestID := req.Header.Get(echo.HeaderXRequestID)
	if requestID == "" {
		requestID = res.Header().Get(echo.HeaderXRequestID)
	}
	return []zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("route", routeOf(c)),
		zap.String("resource", cacheGroup(req.URL.Path)),
		zap.String("query", req.URL.RawQuery),
		zap.Int("status", status),
		zap.Int64("size", res.Size),
		zap.Duration("latency", latency),
		zap.String("remote_ip", c.RealIP()),
	}
}

func principalFields(p model.Principal) []zap.Field {
	if p.Anonymous() {
		return []zap.Field{zap.String("role", roleOf(p))}
	}
	return []zap.Field{zap.Uint64("user_id", p.ID), zap.String("role", roleOf(p))}
}

func outcome(status int) (zapcore.Level, string) {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel, "server error"
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return zapcore.InfoLevel, "request refused"
	case status == http.StatusTooManyRequests:
		return zapcore.InfoLevel, "request throttled"
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel, "client error"
	}
	return zapcore.InfoLevel, "request completed"
}

// routeOf is the matched route template, or "unmatched" for 404s and
// requests that never reached the router.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func roleOf(p model.Principal) string {
	switch {
	case p.IsAdmin:
		return "admin"
	case p.Anonymous():
		return "anonymous"
	}
	return "user"
}
