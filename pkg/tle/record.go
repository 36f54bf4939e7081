package tle

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Record is a single element set. The epoch is always derived from Line1
// and cannot be set independently.
type Record struct {
	CatalogID int
	Name      string
	Line1     string
	Line2     string

	epoch time.Time
}

// NewRecord validates line1 and line2 and derives the catalog id and epoch.
// name is the display name without the "0 " prefix and may be empty.
func NewRecord(name, line1, line2 string) (Record, error) {
	line1 = strings.TrimRight(line1, "\r\n")
	line2 = strings.TrimRight(line2, "\r\n")

	id, err := ParseCatalogID(line1)
	if err != nil {
		return Record{}, err
	}
	epoch, err := ParseEpoch(line1)
	if err != nil {
		return Record{}, err
	}
	if len(line2) < 7 || line2[0] != '2' {
		return Record{}, formatErr("line2", line2, "line number is not 2")
	}
	if id2, err := strconv.Atoi(strings.TrimSpace(line2[2:7])); err != nil || id2 != id {
		return Record{}, formatErr("line2", line2, "catalog number does not match line1")
	}

	return Record{
		CatalogID: id,
		Name:      name,
		Line1:     line1,
		Line2:     line2,
		epoch:     epoch,
	}, nil
}

// Epoch returns the time at which the element set is valid.
func (r Record) Epoch() time.Time {
	return r.epoch
}

type recordJSON struct {
	ID    int       `json:"id"`
	Name  string    `json:"name,omitempty"`
	Epoch time.Time `json:"epoch"`
	Line1 string    `json:"line1"`
	Line2 string    `json:"line2"`
}

// MarshalJSON includes the derived epoch for readers; UnmarshalJSON ignores it
// and derives it again from line1.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:    r.CatalogID,
		Name:  r.Name,
		Epoch: r.epoch,
		Line1: r.Line1,
		Line2: r.Line2,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var v recordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	nr, err := NewRecord(v.Name, v.Line1, v.Line2)
	if err != nil {
		return err
	}
	*r = nr
	return nil
}
