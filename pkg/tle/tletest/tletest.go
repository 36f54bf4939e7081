// Package tletest builds well-formed element set lines for tests.
package tletest

import (
	"fmt"
	"time"

	"github.com/pmkol/tlesync/pkg/tle"
)

// Line1 returns a 69 column first line for id with the epoch field set to epoch.
func Line1(id int, epoch time.Time) string {
	f, err := tle.FormatEpoch(epoch)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("1 %05dU 98067A   %s  .00016717  00000-0  10270-3 0  9005", id, f)
}

// Line2 returns a 69 column second line for id.
func Line2(id int) string {
	return fmt.Sprintf("2 %05d  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000 12345", id)
}

// Record returns a record for id at epoch. It panics on invalid input.
func Record(id int, epoch time.Time) tle.Record {
	r, err := tle.NewRecord("", Line1(id, epoch), Line2(id))
	if err != nil {
		panic(err)
	}
	return r
}
