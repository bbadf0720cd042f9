package database

import (
	"context"
	"fmt"
)

// Optimize runs SQLite's PRAGMA optimize to refresh planner stats.
func (db *DB) Optimize(ctx context.Context) error {
	if db == nil || db.conn == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := db.exec(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}

	return nil
}

// Vacuum rebuilds the database file to reclaim unused space.
func (db *DB) Vacuum(ctx context.Context) error {
	if db == nil || db.conn == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := db.exec(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}

// Stats summarizes the stored data
type Stats struct {
	Submitters int64
	Passes     int64
	Images     int64
	ByStatus   map[Status]int64
}

// Stats counts rows per table and records per status
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	stats := &Stats{ByStatus: make(map[Status]int64)}
	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM users", &stats.Submitters},
		{"SELECT COUNT(*) FROM pereval_added", &stats.Passes},
		{"SELECT COUNT(*) FROM images", &stats.Images},
	}
	for _, c := range counts {
		if err := db.queryRow(ctx, c.query).Scan(c.dest); err != nil {
			return nil, persistence("stats", err)
		}
	}

	rows, err := db.conn.QueryContext(ctx, "SELECT status, COUNT(*) FROM pereval_added GROUP BY status")
	if err != nil {
		return nil, persistence("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, persistence("stats", err)
		}
		stats.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("stats", err)
	}
	return stats, nil
}
