package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentHealth is the probe result for one dependency.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type HealthReport struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Pool       *PoolStats                 `json:"pool,omitempty"`
}

// CheckHealth pings every component. The report is healthy only when all of
// them answer.
func CheckHealth(ctx context.Context, components map[string]Pinger) *HealthReport {
	report := &HealthReport{Status: "healthy", Components: make(map[string]ComponentHealth, len(components))}
	for name, p := range components {
		if err := p.Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Components[name] = ComponentHealth{Status: "unhealthy", Error: err.Error()}
			continue
		}
		report.Components[name] = ComponentHealth{Status: "healthy"}
	}
	return report
}

// HealthHandler serves the health check. pool may be nil; its stats are
// included when present. components should include the pool itself.
func HealthHandler(pool *pgxpool.Pool, components map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := CheckHealth(ctx, components)
		if pool != nil {
			report.Pool = GetPoolStats(pool)
		}
		if report.Status != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
