package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/m3rciful/formbot/core/logger"
)

// OpenBolt opens (creating if needed) the embedded database at path. The
// file lock is awaited for at most one second so a second process fails fast.
func OpenBolt(path string) (*bolt.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bolt dir: %w", err)
		}
	}
	start := time.Now()
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		logger.Error(context.Background(), "db", "db.connect",
			slog.String("status", "error"),
			slog.String("driver", "bolt"),
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("bolt open %s: %w", path, err)
	}
	logger.Info(context.Background(), "db", "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", "bolt"),
		slog.String("path", path),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}
