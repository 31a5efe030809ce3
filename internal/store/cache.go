package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetCache returns the value stored under key. Expired entries are treated
// as absent and removed.
func (s *Store) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}

	if !time.Now().UTC().Before(expiresAt) {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("expire cache: %w", err)
		}
		return nil, false, nil
	}
	return value, true, nil
}

// SetCache stores value under key until ttl elapses.
func (s *Store) SetCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, time.Now().UTC().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("set cache: %w", err)
	}
	return nil
}

// DeleteCache removes key. Deleting a missing key is not an error.
func (s *Store) DeleteCache(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache: %w", err)
	}
	return nil
}

// PurgeExpiredCache removes every expired entry and returns how many went.
func (s *Store) PurgeExpiredCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}
