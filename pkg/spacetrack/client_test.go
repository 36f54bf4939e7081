package spacetrack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmkol/tlesync/pkg/tle"
	"github.com/pmkol/tlesync/pkg/tle/tletest"
)

const sessionCookie = "chocolatechip"

type fakeServer struct {
	*httptest.Server

	loginStatus int
	queryStatus int
	contentType string
	body        func(r *http.Request) string

	logins  atomic.Int32
	logouts atomic.Int32
	queries atomic.Int32

	mu    sync.Mutex
	paths []string
}

func (fs *fakeServer) queryPaths() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.paths...)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		loginStatus: http.StatusOK,
		queryStatus: http.StatusOK,
		contentType: "application/json; charset=utf-8",
		body:        func(*http.Request) string { return "[]" },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		fs.logins.Add(1)
		if r.Method != http.MethodPost || r.FormValue("identity") != "user" || r.FormValue("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if fs.loginStatus != http.StatusOK {
			w.WriteHeader(fs.loginStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "chocolatechip", Value: sessionCookie, Path: "/"})
		w.Write([]byte(`""`))
	})
	mux.HandleFunc(logoutPath, func(w http.ResponseWriter, r *http.Request) {
		fs.logouts.Add(1)
		w.Write([]byte(`"Successfully logged out"`))
	})
	mux.HandleFunc("/basicspacedata/", func(w http.ResponseWriter, r *http.Request) {
		fs.queries.Add(1)
		fs.mu.Lock()
		fs.paths = append(fs.paths, r.URL.EscapedPath())
		fs.mu.Unlock()
		if c, err := r.Cookie("chocolatechip"); err != nil || c.Value != sessionCookie {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.True(t, strings.HasPrefix(r.UserAgent(), "tlesync/"))
		w.Header().Set("Content-Type", fs.contentType)
		w.WriteHeader(fs.queryStatus)
		w.Write([]byte(fs.body(r)))
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) client(identity string) *Client {
	return New(Opts{BaseURL: fs.URL + "/", Identity: identity, Password: "secret", Timeout: 5 * time.Second})
}

func tleRowJSON(t *testing.T, rs ...tle.Record) string {
	t.Helper()
	rows := make([]map[string]string, 0, len(rs))
	for _, r := range rs {
		rows = append(rows, map[string]string{
			"NORAD_CAT_ID": strconv.Itoa(r.CatalogID),
			"EPOCH":        r.Epoch().Format("2006-01-02 15:04:05"),
			"TLE_LINE0":    "0 OBJECT " + strconv.Itoa(r.CatalogID),
			"TLE_LINE1":    r.Line1,
			"TLE_LINE2":    r.Line2,
		})
	}
	b, err := json.Marshal(rows)
	require.NoError(t, err)
	return string(b)
}

func TestClient_FetchRange(t *testing.T) {
	fs := newFakeServer(t)
	e1 := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	e2 := time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)
	fs.body = func(*http.Request) string {
		return tleRowJSON(t, tletest.Record(25544, e1), tletest.Record(5, e2))
	}

	c := fs.client("user")
	got, err := c.FetchRange(context.Background(), Query{
		IDs:   []int{25544, 5, 25544},
		Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 25544, got[0].CatalogID)
	assert.Equal(t, "OBJECT 25544", got[0].Name)
	assert.True(t, e1.Equal(got[0].Epoch()))
	assert.True(t, e2.Equal(got[1].Epoch()))

	assert.EqualValues(t, 1, fs.logins.Load())
	assert.EqualValues(t, 1, fs.logouts.Load())
	paths := fs.queryPaths()
	require.Len(t, paths, 1)
	assert.Equal(t,
		"/basicspacedata/query/class/tle/format/json/predicates/NORAD_CAT_ID,EPOCH,TLE_LINE0,TLE_LINE1,TLE_LINE2/EPOCH/2024-03-01--2024-03-03/NORAD_CAT_ID/5,25544/orderby/EPOCH%20desc",
		paths[0])
}

func TestClient_FetchRangeIDRange(t *testing.T) {
	fs := newFakeServer(t)
	c := fs.client("user")
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := c.FetchRange(context.Background(), Query{MinID: 1, MaxID: 60000, Start: day, End: day})
	require.NoError(t, err)
	assert.Empty(t, got)
	paths := fs.queryPaths()
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "/NORAD_CAT_ID/1--60000/")

	_, err = c.FetchRange(context.Background(), Query{Start: day, End: day})
	assert.Error(t, err)
	assert.EqualValues(t, 1, fs.logins.Load(), "no session for an invalid query")
}

func TestClient_AuthError(t *testing.T) {
	fs := newFakeServer(t)
	c := fs.client("intruder")

	_, err := c.FetchRange(context.Background(), Query{IDs: []int{1}, Start: time.Now(), End: time.Now()})
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)
	assert.EqualValues(t, 0, fs.queries.Load())
	assert.EqualValues(t, 1, fs.logouts.Load())
}

func TestClient_RequestError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
	}{
		{"server error", http.StatusInternalServerError, "application/json"},
		{"html", http.StatusOK, "text/html; charset=utf-8"},
		{"no content type", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t)
			fs.queryStatus = tt.status
			fs.contentType = tt.contentType

			_, err := fs.client("user").FetchRange(context.Background(), Query{IDs: []int{1}, Start: time.Now(), End: time.Now()})
			var re *RequestError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.EqualValues(t, 1, fs.logouts.Load())
		})
	}
}

func TestClient_UndecodableBody(t *testing.T) {
	fetches := map[string]func(c *Client) error{
		"tle": func(c *Client) error {
			_, err := c.FetchRange(context.Background(), Query{IDs: []int{1}, Start: time.Now(), End: time.Now()})
			return err
		},
		"satcat": func(c *Client) error {
			_, err := c.FetchSatcat(context.Background())
			return err
		},
	}
	for class, fetch := range fetches {
		t.Run(class, func(t *testing.T) {
			fs := newFakeServer(t)
			fs.body = func(*http.Request) string { return `{"error":"not an array"` }

			err := fetch(fs.client("user"))
			var re *RequestError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, http.StatusOK, re.StatusCode)
			assert.True(t, strings.HasPrefix(re.URL, fs.URL+"/basicspacedata/query/class/"+class+"/"), re.URL)
			var se *json.SyntaxError
			assert.ErrorAs(t, err, &se)
			assert.EqualValues(t, 1, fs.logouts.Load())
		})
	}
}

func TestClient_MalformedRecord(t *testing.T) {
	fs := newFakeServer(t)
	fs.body = func(*http.Request) string {
		return `[{"NORAD_CAT_ID":"1","TLE_LINE0":"0 X","TLE_LINE1":"1 00001U garbage","TLE_LINE2":"2 00001"}]`
	}
	_, err := fs.client("user").FetchRange(context.Background(), Query{IDs: []int{1}, Start: time.Now(), End: time.Now()})
	var fe *tle.FormatError
	require.ErrorAs(t, err, &fe)
	assert.EqualValues(t, 1, fs.logouts.Load())
}

func TestClient_MismatchedCatalogID(t *testing.T) {
	fs := newFakeServer(t)
	r := tletest.Record(7, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	fs.body = func(*http.Request) string {
		return fmt.Sprintf(`[{"NORAD_CAT_ID":"8","TLE_LINE0":"0 X","TLE_LINE1":%q,"TLE_LINE2":%q}]`, r.Line1, r.Line2)
	}
	_, err := fs.client("user").FetchRange(context.Background(), Query{IDs: []int{7}, Start: time.Now(), End: time.Now()})
	var fe *tle.FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestClient_CanceledContextStillLogsOut(t *testing.T) {
	fs := newFakeServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	fs.body = func(*http.Request) string {
		cancel()
		return "[]"
	}
	_, _ = fs.client("user").FetchRange(ctx, Query{IDs: []int{1}, Start: time.Now(), End: time.Now()})
	assert.EqualValues(t, 1, fs.logouts.Load())
}

func TestClient_FetchSatcat(t *testing.T) {
	fs := newFakeServer(t)
	const total = 7
	fs.body = func(r *http.Request) string {
		var limit, offset int
		i := strings.Index(r.URL.Path, "/limit/")
		_, err := fmt.Sscanf(r.URL.Path[i:], "/limit/%d,%d/", &limit, &offset)
		require.NoError(t, err)
		var rows []string
		for id := total - offset; id > 0 && id > total-offset-limit; id-- {
			rows = append(rows, fmt.Sprintf(`{"NORAD_CAT_ID":"%d","SATNAME":"SAT %d"}`, id, id))
		}
		return "[" + strings.Join(rows, ",") + "]"
	}

	got, err := fs.client("user").fetchSatcat(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, total)
	assert.Equal(t, Satellite{ID: 7, Name: "SAT 7"}, got[0])
	assert.Equal(t, 1, got[total-1].ID)
	assert.EqualValues(t, 3, fs.queries.Load())
	assert.EqualValues(t, 1, fs.logins.Load())
	assert.EqualValues(t, 1, fs.logouts.Load())
}

func TestProxyURL(t *testing.T) {
	assert.Nil(t, Proxy{}.url())
	assert.Equal(t, "http://proxy.local:3128", Proxy{Host: "proxy.local", Port: 3128}.url().String())
	assert.Equal(t, "socks5://u:p@10.0.0.1:1080", Proxy{Host: "socks5://10.0.0.1", Port: 1080, Login: "u", Password: "p"}.url().String())
}

func TestRequestErrorMessage(t *testing.T) {
	err := error(&RequestError{URL: "u", Err: errors.New("boom")})
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, (&RequestError{URL: "u", StatusCode: 500}).Error(), "500")
	assert.Contains(t, (&AuthError{StatusCode: 401}).Error(), "401")
}
