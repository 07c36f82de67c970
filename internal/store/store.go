// Package store persists verification and sweep runs to a sqlite results
// database so runs can be compared across policy versions.
package store

import (
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/bodymeasure/internal/db"
)

// Store wraps a results database.
type Store struct {
	db *db.DB
}

// Open opens or creates the results database at path and migrates it.
func Open(path string) (*Store, error) {
	d, err := db.Open(path, db.SchemaStore)
	if err != nil {
		return nil, err
	}
	return &Store{db: d}, nil
}

// New wraps an already migrated database.
func New(d *db.DB) *Store {
	return &Store{db: d}
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

const (
	busyRetries = 5
	busyBackoff = 50 * time.Millisecond
)

// retryOnBusy retries fn while sqlite reports the database as locked.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(busyBackoff * time.Duration(attempt+1))
	}
	return err
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// nullStr returns nil for empty strings, pointer to string otherwise.
func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullFloat stores non-finite values as NULL.
func nullFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// floatOrNaN is the inverse of nullFloat.
func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
