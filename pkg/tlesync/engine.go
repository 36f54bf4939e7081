// Package tlesync keeps a storage.Backend in sync with the remote catalog
// and answers nearest-epoch queries against it.
package tlesync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pmkol/tlesync/pkg/cache"
	"github.com/pmkol/tlesync/pkg/spacetrack"
	"github.com/pmkol/tlesync/pkg/storage"
	"github.com/pmkol/tlesync/pkg/tle"
)

const (
	defaultCacheTTL   = 6 * time.Hour
	defaultWindowDays = 5
	satcatTTL         = 7 * 24 * time.Hour
	day               = 24 * time.Hour
)

var (
	// ErrNoCatalog is returned by remote operations of an Engine built
	// without a Catalog.
	ErrNoCatalog = errors.New("no remote catalog configured")

	errNoIDs = errors.New("no catalog ids given")

	nopLogger = zap.NewNop()
)

// Catalog is the remote source of element sets. *spacetrack.Client
// implements it.
type Catalog interface {
	FetchRange(ctx context.Context, q spacetrack.Query) ([]tle.Record, error)
	FetchSatcat(ctx context.Context) ([]spacetrack.Satellite, error)
}

var _ Catalog = (*spacetrack.Client)(nil)

type Opts struct {
	Storage storage.Backend
	Catalog Catalog

	// Cache may be nil, which disables caching.
	Cache    *cache.ResultCache
	CacheTTL time.Duration

	// WindowDays is the default half width of Get and the default length
	// of download windows.
	WindowDays int

	Logger  *zap.Logger
	Metrics prometheus.Registerer
}

func (opts *Opts) Init() error {
	if opts.Storage == nil {
		return errors.New("nil storage")
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = defaultWindowDays
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

type Engine struct {
	opts Opts
	m    *metrics
	sf   singleflight.Group
	now  func() time.Time
}

func NewEngine(opts Opts) (*Engine, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	e := &Engine{
		opts: opts,
		m:    newMetrics(),
		now:  time.Now,
	}
	if opts.Metrics != nil {
		if err := e.m.register(opts.Metrics); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) WindowDays() int {
	return e.opts.WindowDays
}

// Window fills in a query window. A zero end means now. A zero start, or one
// not before end, means WindowDays days before end.
func (e *Engine) Window(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = e.now()
	}
	if start.IsZero() || !start.Before(end) {
		start = end.Add(-time.Duration(e.opts.WindowDays) * day)
	}
	return start.UTC(), end.UTC()
}

// remoteWindow widens [start, end] to whole UTC days. end always moves to
// the following midnight.
func (e *Engine) remoteWindow(start, end time.Time) (time.Time, time.Time) {
	start, end = e.Window(start, end)
	return start.Truncate(day), end.Truncate(day).Add(day)
}

// Download returns the remote element sets of ids for the window, newest
// first. Results are cached for CacheTTL; a failed download caches nothing.
func (e *Engine) Download(ctx context.Context, ids []int, start, end time.Time) ([]tle.Record, error) {
	if len(ids) == 0 {
		return nil, errNoIDs
	}
	start, end = e.remoteWindow(start, end)
	q := spacetrack.Query{IDs: ids, Start: start, End: end}
	return e.fetch(ctx, cache.Key(ids, start, end), q)
}

// DownloadAll is Download over every object of the satellite catalog.
func (e *Engine) DownloadAll(ctx context.Context, start, end time.Time) ([]tle.Record, error) {
	minID, maxID, err := e.catalogRange(ctx)
	if err != nil {
		return nil, err
	}
	start, end = e.remoteWindow(start, end)
	q := spacetrack.Query{MinID: minID, MaxID: maxID, Start: start, End: end}
	return e.fetch(ctx, cache.RangeKey(minID, maxID, start, end), q)
}

func (e *Engine) fetch(ctx context.Context, key string, q spacetrack.Query) ([]tle.Record, error) {
	if e.opts.Catalog == nil {
		return nil, ErrNoCatalog
	}

	var recs []tle.Record
	if e.opts.Cache.Get(key, &recs) {
		e.m.cacheHits.Inc()
		return recs, nil
	}
	e.m.cacheMisses.Inc()

	v, err, _ := e.sf.Do(key, func() (any, error) {
		e.m.remoteQueries.Inc()
		recs, err := e.opts.Catalog.FetchRange(ctx, q)
		if err != nil {
			e.m.remoteErrors.Inc()
			return nil, err
		}
		if err := e.opts.Cache.Set(key, recs, e.opts.CacheTTL); err != nil {
			e.opts.Logger.Warn("failed to cache download", zap.String("key", key), zap.Error(err))
		}
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]tle.Record)), nil
}

// Satcat returns the satellite catalog, cached for a week.
func (e *Engine) Satcat(ctx context.Context) ([]spacetrack.Satellite, error) {
	if e.opts.Catalog == nil {
		return nil, ErrNoCatalog
	}
	var sats []spacetrack.Satellite
	if e.opts.Cache.Get(cache.SatcatKey, &sats) {
		e.m.cacheHits.Inc()
		return sats, nil
	}
	e.m.cacheMisses.Inc()

	v, err, _ := e.sf.Do(cache.SatcatKey, func() (any, error) {
		e.m.remoteQueries.Inc()
		sats, err := e.opts.Catalog.FetchSatcat(ctx)
		if err != nil {
			e.m.remoteErrors.Inc()
			return nil, err
		}
		if err := e.opts.Cache.Set(cache.SatcatKey, sats, satcatTTL); err != nil {
			e.opts.Logger.Warn("failed to cache satcat", zap.Error(err))
		}
		return sats, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]spacetrack.Satellite)), nil
}

func (e *Engine) catalogRange(ctx context.Context) (int, int, error) {
	sats, err := e.Satcat(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(sats) == 0 {
		return 0, 0, errors.New("satellite catalog is empty")
	}
	minID, maxID := sats[0].ID, sats[0].ID
	for _, s := range sats[1:] {
		minID = min(minID, s.ID)
		maxID = max(maxID, s.ID)
	}
	return minID, maxID, nil
}

// Update downloads the element sets of ids and adds those not stored yet.
// The first failed add aborts the update; records added before it stay.
func (e *Engine) Update(ctx context.Context, ids []int, start, end time.Time) ([]tle.Record, error) {
	recs, err := e.Download(ctx, ids, start, end)
	if err != nil {
		return nil, err
	}
	return recs, e.store(ctx, recs)
}

// UpdateAll is Update over every object of the satellite catalog.
func (e *Engine) UpdateAll(ctx context.Context, start, end time.Time) ([]tle.Record, error) {
	recs, err := e.DownloadAll(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return recs, e.store(ctx, recs)
}

// UpdateExisting is Update over every id already in storage.
func (e *Engine) UpdateExisting(ctx context.Context, start, end time.Time) ([]tle.Record, error) {
	ids, err := e.opts.Storage.IDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return e.Update(ctx, ids, start, end)
}

func (e *Engine) store(ctx context.Context, recs []tle.Record) error {
	added := 0
	for _, r := range recs {
		ok, err := e.opts.Storage.Exists(ctx, r.CatalogID, r.Epoch())
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := e.opts.Storage.Add(ctx, r); err != nil {
			return fmt.Errorf("failed to add element set %d at %s: %w", r.CatalogID, r.Epoch().Format(time.DateTime), err)
		}
		e.m.recordsAdded.Inc()
		added++
	}
	if added > 0 {
		e.opts.Logger.Info("element sets added", zap.Int("added", added), zap.Int("downloaded", len(recs)))
	}
	return nil
}

// Get returns the stored element set of id whose epoch is nearest to t
// within WindowDays days on either side.
func (e *Engine) Get(ctx context.Context, id int, t time.Time) (tle.Record, error) {
	return e.GetWithin(ctx, id, t, e.opts.WindowDays)
}

// GetWithin is Get with an explicit window. It returns storage.ErrNotFound
// when the window holds no record.
func (e *Engine) GetWithin(ctx context.Context, id int, t time.Time, windowDays int) (tle.Record, error) {
	w := time.Duration(windowDays) * day
	recs, err := e.opts.Storage.GetRange(ctx, id, t.Add(-w), t.Add(w))
	if err != nil {
		return tle.Record{}, err
	}
	r, ok := nearest(recs, t)
	if !ok {
		return tle.Record{}, fmt.Errorf("%05d near %s: %w", id, t.UTC().Format(time.DateTime), storage.ErrNotFound)
	}
	return r, nil
}

// nearest scans all of recs, so the order of recs does not matter.
// Ties go to the earlier epoch.
func nearest(recs []tle.Record, t time.Time) (tle.Record, bool) {
	var (
		best     tle.Record
		bestDist time.Duration
		found    bool
	)
	for _, r := range recs {
		d := t.Sub(r.Epoch()).Abs()
		if !found || d < bestDist || (d == bestDist && r.Epoch().Before(best.Epoch())) {
			best, bestDist, found = r, d, true
		}
	}
	return best, found
}

// GetRange returns the stored element sets of id within the window.
func (e *Engine) GetRange(ctx context.Context, id int, start, end time.Time) ([]tle.Record, error) {
	start, end = e.Window(start, end)
	return e.opts.Storage.GetRange(ctx, id, start, end)
}

// Lookup returns the stored element sets of every id within the window,
// keyed by id. Ids without records are left out. With download set, those
// ids are updated from the remote catalog first and looked up again.
func (e *Engine) Lookup(ctx context.Context, ids []int, start, end time.Time, download bool) (map[int][]tle.Record, error) {
	start, end = e.Window(start, end)
	res, err := e.lookup(ctx, ids, start, end)
	if err != nil || !download {
		return res, err
	}

	var missing []int
	for _, id := range ids {
		if _, ok := res[id]; !ok && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return res, nil
	}
	if _, err := e.Update(ctx, missing, start, end); err != nil {
		return nil, err
	}
	return e.lookup(ctx, ids, start, end)
}

func (e *Engine) lookup(ctx context.Context, ids []int, start, end time.Time) (map[int][]tle.Record, error) {
	res := make(map[int][]tle.Record, len(ids))
	for _, id := range ids {
		if _, ok := res[id]; ok {
			continue
		}
		recs, err := e.opts.Storage.GetRange(ctx, id, start, end)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			res[id] = recs
		}
	}
	return res, nil
}

func (e *Engine) Exists(ctx context.Context, id int, epoch time.Time) (bool, error) {
	return e.opts.Storage.Exists(ctx, id, epoch)
}

func (e *Engine) Add(ctx context.Context, r tle.Record) error {
	return e.opts.Storage.Add(ctx, r)
}

func (e *Engine) Remove(ctx context.Context, id int, epoch time.Time) error {
	return e.opts.Storage.Remove(ctx, id, epoch)
}

func (e *Engine) IDs(ctx context.Context) ([]int, error) {
	return e.opts.Storage.IDs(ctx)
}
