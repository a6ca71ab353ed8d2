package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStater exposes pool statistics. *pgxpool.Pool satisfies it.
type PoolStater interface {
	Stat() *pgxpool.Stat
}

// RecordDBPoolMetrics copies the current pool statistics into the db gauges.
func RecordDBPoolMetrics(pool PoolStater) {
	if pool == nil {
		return
	}
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))

	DBPoolAcquireWait.Set(stats.AcquireDuration().Seconds())
	DBPoolEmptyAcquires.Set(float64(stats.EmptyAcquireCount()))
}
