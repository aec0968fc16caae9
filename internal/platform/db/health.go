package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Pinger is a store that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats is a snapshot of pgx pool counters.
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

// PoolPinger adapts a pgx pool to Pinger and exposes its stats.
type PoolPinger struct{ Pool *pgxpool.Pool }

func (p PoolPinger) Ping(ctx context.Context) error { return p.Pool.Ping(ctx) }

func (p PoolPinger) Stats() any { return GetPoolStats(p.Pool) }

// HealthHandler answers 200 when the store responds within five seconds and
// 503 otherwise. A nil store means the backend is not configured.
func HealthHandler(backend string, store Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if store == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":  "unconfigured",
				"backend": backend,
			})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]any{"backend": backend}
		if s, ok := store.(interface{ Stats() any }); ok {
			body["pool"] = s.Stats()
		}

		if err := store.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}
