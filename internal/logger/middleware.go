package logger

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Middleware attaches a request-scoped logger to the request context. It must
// run after echo's RequestID middleware so the id is already on the response.
func Middleware(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = req.Header.Get(echo.HeaderXRequestID)
			}

			reqLogger := base.With().
				Str("request_id", requestID).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_addr", c.RealIP()).
				Logger()

			ctx := WithContext(req.Context(), reqLogger)
			ctx = WithRequestID(ctx, requestID)
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
