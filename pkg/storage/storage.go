// Package storage defines the contract every element set archive backend
// honors. Backends own their record set exclusively; records cross the
// boundary by value.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pmkol/tlesync/pkg/tle"
)

// Backend is a persistent set of element sets keyed by (catalog id, epoch).
type Backend interface {
	// Exists reports whether a record for id at epoch is stored.
	Exists(ctx context.Context, id int, epoch time.Time) (bool, error)

	// Add stores r under (r.CatalogID, r.Epoch()). Lines are truncated to
	// tle.LineLength. Adding an existing record overwrites it.
	Add(ctx context.Context, r tle.Record) error

	// GetRange returns the records of id whose epoch lies in [start, end],
	// ordered by ascending epoch.
	GetRange(ctx context.Context, id int, start, end time.Time) ([]tle.Record, error)

	// Remove deletes the record for id at epoch. It returns ErrNotFound
	// if there is none.
	Remove(ctx context.Context, id int, epoch time.Time) error

	// IDs lists the catalog ids having at least one stored record, ascending.
	IDs(ctx context.Context) ([]int, error)

	Close() error
}

var (
	ErrNotFound = errors.New("record not found")
	ErrLocked   = errors.New("record is locked")
)

// IOError is a local storage failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// LockError is returned when a lock could not be taken within the
// configured number of attempts. It unwraps to ErrLocked.
type LockError struct {
	Path     string
	Attempts int
}

func (e *LockError) Error() string {
	return fmt.Sprintf("%s: still locked after %d attempts", e.Path, e.Attempts)
}

func (e *LockError) Unwrap() error {
	return ErrLocked
}
