package db

import "gorm.io/gorm"

// PoolStats is a snapshot of the underlying connection pool, exposed
// through the health endpoint.
type PoolStats struct {
	MaxOpen int   `json:"max_open"`
	Open    int   `json:"open"`
	InUse   int   `json:"in_use"`
	Idle    int   `json:"idle"`
	Waiting int64 `json:"waiting"`
}

// Stats reads pool statistics from a gorm DB. Returns a zero snapshot
// if the underlying sql.DB is not reachable.
func Stats(gdb *gorm.DB) PoolStats {
	sqlDB, err := gdb.DB()
	if err != nil {
		return PoolStats{}
	}
	s := sqlDB.Stats()
	return PoolStats{
		MaxOpen: s.MaxOpenConnections,
		Open:    s.OpenConnections,
		InUse:   s.InUse,
		Idle:    s.Idle,
		Waiting: s.WaitCount,
	}
}
