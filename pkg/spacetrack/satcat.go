package spacetrack

import (
	"context"
	"encoding/json"
	"fmt"
)

// satcatPageSize is the number of catalog rows requested per page.
const satcatPageSize = 25000

// Satellite is one entry of the satellite catalog.
type Satellite struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type satcatRow struct {
	NoradCatID json.Number `json:"NORAD_CAT_ID"`
	Name       string      `json:"SATNAME"`
}

// FetchSatcat downloads the whole satellite catalog, ordered by descending
// id, paging through it in a single session.
func (c *Client) FetchSatcat(ctx context.Context) ([]Satellite, error) {
	return c.fetchSatcat(ctx, satcatPageSize)
}

func (c *Client) fetchSatcat(ctx context.Context, pageSize int) ([]Satellite, error) {
	var out []Satellite
	err := c.withSession(ctx, func(s *session) error {
		for offset := 0; ; offset += pageSize {
			p := fmt.Sprintf(
				"/basicspacedata/query/class/satcat/format/json/predicates/NORAD_CAT_ID,SATNAME/limit/%d,%d/orderby/NORAD_CAT_ID%%20desc",
				pageSize, offset,
			)
			b, err := s.query(ctx, p)
			if err != nil {
				return err
			}
			var rows []satcatRow
			if err := json.Unmarshal(b, &rows); err != nil {
				return &RequestError{URL: c.opts.BaseURL + p, Err: fmt.Errorf("decode satcat response: %w", err)}
			}
			for _, row := range rows {
				id, err := row.NoradCatID.Int64()
				if err != nil {
					return &RequestError{URL: c.opts.BaseURL + p, Err: fmt.Errorf("decode satcat response: invalid NORAD_CAT_ID %q", row.NoradCatID)}
				}
				out = append(out, Satellite{ID: int(id), Name: row.Name})
			}
			if len(rows) < pageSize {
				return nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
