package spacetrack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pmkol/tlesync/pkg/tle"
)

// Query selects element sets whose epoch falls in the days of [Start, End].
// Either IDs or the inclusive id range MinID..MaxID must be set.
type Query struct {
	IDs          []int
	MinID, MaxID int
	Start, End   time.Time
}

func (q Query) idPredicate() (string, error) {
	if len(q.IDs) > 0 {
		ids := slices.Clone(q.IDs)
		slices.Sort(ids)
		return joinIDs(slices.Compact(ids)), nil
	}
	if q.MinID > 0 && q.MaxID >= q.MinID {
		return fmt.Sprintf("%d--%d", q.MinID, q.MaxID), nil
	}
	return "", errors.New("query has no catalog ids")
}

func (q Query) path() (string, error) {
	ids, err := q.idPredicate()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"/basicspacedata/query/class/tle/format/json/predicates/NORAD_CAT_ID,EPOCH,TLE_LINE0,TLE_LINE1,TLE_LINE2/EPOCH/%s/NORAD_CAT_ID/%s/orderby/EPOCH%%20desc",
		epochRange(q.Start, q.End), ids,
	), nil
}

type tleRow struct {
	NoradCatID json.Number `json:"NORAD_CAT_ID"`
	Epoch      string      `json:"EPOCH"`
	Line0      string      `json:"TLE_LINE0"`
	Line1      string      `json:"TLE_LINE1"`
	Line2      string      `json:"TLE_LINE2"`
}

// FetchRange runs q in a new session. Records are returned in the order
// the server sent them, newest epoch first.
func (c *Client) FetchRange(ctx context.Context, q Query) ([]tle.Record, error) {
	p, err := q.path()
	if err != nil {
		return nil, err
	}
	var out []tle.Record
	err = c.withSession(ctx, func(s *session) error {
		b, err := s.query(ctx, p)
		if err != nil {
			return err
		}
		var rows []tleRow
		if err := json.Unmarshal(b, &rows); err != nil {
			return &RequestError{URL: c.opts.BaseURL + p, Err: fmt.Errorf("decode tle response: %w", err)}
		}
		out, err = recordsFromRows(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func recordsFromRows(rows []tleRow) ([]tle.Record, error) {
	out := make([]tle.Record, 0, len(rows))
	for _, row := range rows {
		name, err := tle.ParseName(row.Line0)
		if err != nil {
			return nil, err
		}
		r, err := tle.NewRecord(name, row.Line1, row.Line2)
		if err != nil {
			return nil, err
		}
		if len(row.NoradCatID) > 0 {
			if id, err := row.NoradCatID.Int64(); err != nil || int(id) != r.CatalogID {
				return nil, &tle.FormatError{Field: "NORAD_CAT_ID", Input: row.NoradCatID.String(), Reason: "does not match line1"}
			}
		}
		out = append(out, r)
	}
	return out, nil
}
