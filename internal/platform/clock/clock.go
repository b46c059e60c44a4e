// Package clock provides an injectable time source and a per-request frozen
// reference time so every classification within one request agrees on "now".
package clock

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

type contextKey string

const nowKey contextKey = "request_now"

// Func returns the current time. time.Now satisfies it.
type Func func() time.Time

// System is the wall clock.
var System Func = time.Now

// Fixed returns a Func that always reports t.
func Fixed(t time.Time) Func {
	return func() time.Time { return t }
}

// WithNow stores a frozen reference time on ctx.
func WithNow(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowKey, t)
}

// Now returns the frozen time stored on ctx, or fallback() when none is set.
// A nil fallback uses the system clock.
func Now(ctx context.Context, fallback Func) time.Time {
	if t, ok := ctx.Value(nowKey).(time.Time); ok {
		return t
	}
	if fallback == nil {
		fallback = System
	}
	return fallback()
}

// Middleware reads the clock once per request and freezes the result on the
// request context.
func Middleware(now Func) echo.MiddlewareFunc {
	if now == nil {
		now = System
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := WithNow(c.Request().Context(), now())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
