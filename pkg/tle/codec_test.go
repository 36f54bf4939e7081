package tle

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func withEpoch(field string) string {
	return issLine1[:18] + field + issLine1[32:]
}

func TestParseCatalogID(t *testing.T) {
	id, err := ParseCatalogID(issLine1)
	require.NoError(t, err)
	assert.Equal(t, 25544, id)

	id, err = ParseCatalogID("1 00005U 58002B   24100.50000000  .00000000  00000-0  00000-0 0  9990")
	require.NoError(t, err)
	assert.Equal(t, 5, id)

	for _, bad := range []string{"", "1 255", "1 ABCDEU", "2 25544U", "1 00000U 98067A"} {
		_, err := ParseCatalogID(bad)
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), "input %q", bad)
	}
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		name  string
		field string
		want  time.Time
	}{
		{"half day", "24001.50000000", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"day 100", "24100.50000000", time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)},
		{"pivot below", "56001.00000000", time.Date(2056, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"pivot", "57001.00000000", time.Date(1957, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"truncates", "24001.00001000", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(864 * time.Millisecond).Truncate(time.Second)},
		{"leap day 366", "24366.00000000", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEpoch(withEpoch(tt.field))
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestParseEpochMalformed(t *testing.T) {
	for _, field := range []string{"2X001.5000000 ", "24ABC.50000000", "24000.50000000", "23366.00000000", "24001.5000000x"} {
		_, err := ParseEpoch(withEpoch(field))
		var fe *FormatError
		assert.True(t, errors.As(err, &fe), "field %q", field)
	}
	_, err := ParseEpoch(issLine1[:20])
	assert.Error(t, err)
}

func TestFormatEpochRoundTrip(t *testing.T) {
	start := time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)
	for s := int64(0); s < 3*86400; s += 997 {
		want := start.Add(time.Duration(s) * time.Second)
		f, err := FormatEpoch(want)
		require.NoError(t, err)
		require.Len(t, f, 14)
		got, err := ParseEpoch(withEpoch(f))
		require.NoError(t, err)
		require.True(t, want.Equal(got), "field %s: want %s, got %s", f, want, got)
	}

	_, err := FormatEpoch(time.Date(2060, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestParseName(t *testing.T) {
	name, err := ParseName("0 ISS (ZARYA)")
	require.NoError(t, err)
	assert.Equal(t, "ISS (ZARYA)", name)

	name, err = ParseName("")
	require.NoError(t, err)
	assert.Empty(t, name)

	_, err = ParseName("ISS (ZARYA)")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, issLine1, Truncate(issLine1+"   trailing"))
	assert.Equal(t, "short", Truncate("short"))
}

func TestNewRecord(t *testing.T) {
	r, err := NewRecord("ISS (ZARYA)", issLine1+"\r\n", issLine2)
	require.NoError(t, err)
	assert.Equal(t, 25544, r.CatalogID)
	assert.Equal(t, issLine1, r.Line1)
	assert.True(t, time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC).Equal(r.Epoch()))

	_, err = NewRecord("", issLine1, strings.Replace(issLine2, "25544", "25545", 1))
	assert.Error(t, err)
	_, err = NewRecord("", issLine1, issLine1)
	assert.Error(t, err)
}

func TestRecordJSON(t *testing.T) {
	r, err := NewRecord("ISS (ZARYA)", issLine1, issLine2)
	require.NoError(t, err)

	b, err := r.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"epoch":"2024-04-09T12:00:00Z"`)

	// A stale epoch in the payload is ignored.
	tampered := strings.Replace(string(b), "2024-04-09T12:00:00Z", "1999-01-01T00:00:00Z", 1)
	var got Record
	require.NoError(t, got.UnmarshalJSON([]byte(tampered)))
	assert.Equal(t, r, got)
}
