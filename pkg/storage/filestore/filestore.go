// Package filestore keeps one file per element set in a browsable tree:
//
//	<dir>/<catalog id:05d>/<year>/<month>/<day>/<HH>-<MM>-<SS>.tle
//
// Every file holds line1, a newline and line2. The catalog id and the epoch
// are recovered from the path. Files are guarded by advisory locks: readers
// take a shared lock, writers and deleters an exclusive one.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pmkol/tlesync/pkg/pool"
	"github.com/pmkol/tlesync/pkg/storage"
	"github.com/pmkol/tlesync/pkg/tle"
)

const (
	defaultDirMode      = 0o775
	defaultFileMode     = 0o666
	defaultLockAttempts = 10
	defaultLockInterval = 100 * time.Millisecond

	fileExt = ".tle"

	// Two lines plus separators, with slack for stray carriage returns.
	maxFileSize = 4 * tle.LineLength
)

var (
	nopLogger = zap.NewNop()

	fileNameRe = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{2})\.tle$`)

	// errEmptyFile marks a file created by a writer that has not taken its lock yet.
	errEmptyFile = errors.New("empty record file")
)

type Opts struct {
	// Dir is the storage root. Required.
	Dir string

	// DirMode is used for directories created on demand. Default 0775.
	DirMode fs.FileMode

	// FileMode, when set, is applied to every written file.
	// Otherwise files are created with 0666 minus umask.
	FileMode fs.FileMode

	// LockAttempts bounds the non-blocking lock attempts of Remove and the
	// reopens of Add after a concurrent Remove. Default 10.
	LockAttempts int

	// LockInterval is the pause between two attempts. Default 100ms.
	LockInterval time.Duration

	// Logger receives warnings about skipped files. Optional.
	Logger *zap.Logger
}

func (opts *Opts) Init() error {
	if len(opts.Dir) == 0 {
		return errors.New("empty storage dir")
	}
	if opts.DirMode == 0 {
		opts.DirMode = defaultDirMode
	}
	if opts.LockAttempts <= 0 {
		opts.LockAttempts = defaultLockAttempts
	}
	if opts.LockInterval <= 0 {
		opts.LockInterval = defaultLockInterval
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

type FileStore struct {
	opts Opts
}

var _ storage.Backend = (*FileStore)(nil)

// New creates the storage root if needed.
func New(opts Opts) (*FileStore, error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, opts.DirMode); err != nil {
		return nil, &storage.IOError{Op: "mkdir", Path: opts.Dir, Err: err}
	}
	return &FileStore{opts: opts}, nil
}

func (s *FileStore) Dir() string {
	return s.opts.Dir
}

func (s *FileStore) satellitePath(id int) string {
	return filepath.Join(s.opts.Dir, fmt.Sprintf("%05d", id))
}

func (s *FileStore) dayPath(id int, t time.Time) string {
	t = t.UTC()
	return filepath.Join(s.satellitePath(id), t.Format("2006"), t.Format("01"), t.Format("02"))
}

func (s *FileStore) filePath(id int, t time.Time) string {
	return filepath.Join(s.dayPath(id, t), t.UTC().Format("15-04-05")+fileExt)
}

func (s *FileStore) Exists(_ context.Context, id int, epoch time.Time) (bool, error) {
	p := s.filePath(id, epoch)
	_, err := os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, &storage.IOError{Op: "stat", Path: p, Err: err}
	}
}

// Add derives the path from r.Line1 and writes the file under an
// exclusive lock, synced before the lock is released.
func (s *FileStore) Add(_ context.Context, r tle.Record) error {
	id, err := tle.ParseCatalogID(r.Line1)
	if err != nil {
		return err
	}
	epoch, err := tle.ParseEpoch(r.Line1)
	if err != nil {
		return err
	}

	dir := s.dayPath(id, epoch)
	if err := os.MkdirAll(dir, s.opts.DirMode); err != nil {
		return &storage.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	p := s.filePath(id, epoch)
	f, err := s.openLocked(p)
	if err != nil {
		return err
	}
	defer f.Close()
	defer unlockFile(f)

	if err := writeRecord(f, r); err != nil {
		return &storage.IOError{Op: "write", Path: p, Err: err}
	}
	if s.opts.FileMode != 0 {
		if err := f.Chmod(s.opts.FileMode); err != nil {
			return &storage.IOError{Op: "chmod", Path: p, Err: err}
		}
	}
	return nil
}

// openLocked opens p for writing under an exclusive lock. A Remove may
// unlink p while we wait for the lock; the orphaned file is then dropped and
// p opened again, at most LockAttempts times.
func (s *FileStore) openLocked(p string) (*os.File, error) {
	for attempt := 1; ; attempt++ {
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE, defaultFileMode)
		if err != nil {
			return nil, &storage.IOError{Op: "open", Path: p, Err: err}
		}
		if err := lockFile(f, true); err != nil {
			f.Close()
			return nil, &storage.IOError{Op: "lock", Path: p, Err: err}
		}

		same, err := isFileAt(f, p)
		if same {
			return f, nil
		}
		unlockFile(f)
		f.Close()
		if err != nil {
			return nil, &storage.IOError{Op: "stat", Path: p, Err: err}
		}
		if attempt >= s.opts.LockAttempts {
			return nil, &storage.LockError{Path: p, Attempts: attempt}
		}
	}
}

// isFileAt reports whether f is still the file linked at p.
func isFileAt(f *os.File, p string) (bool, error) {
	fi, err := f.Stat()
	if err != nil {
		return false, err
	}
	pi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(fi, pi), nil
}

func writeRecord(f *os.File, r tle.Record) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(tle.Truncate(r.Line1)+"\n"+tle.Truncate(r.Line2)), 0); err != nil {
		return err
	}
	return f.Sync()
}

// GetRange scans the day directories covering [start, end] in ascending
// order and keeps the records whose epoch lies inside the exact bounds.
func (s *FileStore) GetRange(ctx context.Context, id int, start, end time.Time) ([]tle.Record, error) {
	start, end = start.UTC(), end.UTC()
	var out []tle.Record
	for day := start.Truncate(24 * time.Hour); !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := s.readDay(id, day)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.Epoch().Before(start) || r.Epoch().After(end) {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *FileStore) readDay(id int, day time.Time) ([]tle.Record, error) {
	dir := s.dayPath(id, day)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &storage.IOError{Op: "readdir", Path: dir, Err: err}
	}

	recs := make([]tle.Record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		r, err := read(p)
		if err != nil {
			// Lost a race with Add or Remove: the record is not there yet, or anymore.
			if errors.Is(err, errEmptyFile) || errors.Is(err, fs.ErrNotExist) {
				continue
			}
			s.opts.Logger.Warn("skipping unreadable record file", zap.String("path", p), zap.Error(err))
			continue
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// read loads the record at p under a shared lock. The id and epoch encoded
// in p must agree with the ones derived from the content.
func read(p string) (tle.Record, error) {
	id, epoch, err := parseFilePath(p)
	if err != nil {
		return tle.Record{}, err
	}

	f, err := os.Open(p)
	if err != nil {
		return tle.Record{}, err
	}
	defer f.Close()

	if err := lockFile(f, false); err != nil {
		return tle.Record{}, &storage.IOError{Op: "lock", Path: p, Err: err}
	}
	b, err := io.ReadAll(io.LimitReader(f, maxFileSize))
	unlockFile(f)
	if err != nil {
		return tle.Record{}, &storage.IOError{Op: "read", Path: p, Err: err}
	}
	if len(b) == 0 {
		return tle.Record{}, errEmptyFile
	}

	line1, line2, ok := strings.Cut(string(b), "\n")
	if !ok {
		return tle.Record{}, &tle.FormatError{Field: "record file", Input: p, Reason: "expected two lines"}
	}
	r, err := tle.NewRecord("", line1, line2)
	if err != nil {
		return tle.Record{}, err
	}
	if r.CatalogID != id || !r.Epoch().Equal(epoch) {
		return tle.Record{}, &tle.FormatError{Field: "path", Input: p, Reason: "does not match the element set"}
	}
	return r, nil
}

// parseFilePath recovers the catalog id and epoch from the last five
// segments of p: id/year/month/day/HH-MM-SS.tle.
func parseFilePath(p string) (int, time.Time, error) {
	bad := func(reason string) (int, time.Time, error) {
		return 0, time.Time{}, &tle.FormatError{Field: "path", Input: p, Reason: reason}
	}

	parts := strings.Split(filepath.ToSlash(filepath.Clean(p)), "/")
	if len(parts) < 5 {
		return bad("fewer than five segments")
	}
	parts = parts[len(parts)-5:]

	m := fileNameRe.FindStringSubmatch(parts[4])
	if m == nil {
		return bad("file name is not HH-MM-SS.tle")
	}

	nums := make([]int, 0, 7)
	for _, seg := range []string{parts[0], parts[1], parts[2], parts[3], m[1], m[2], m[3]} {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 {
			return bad("non-numeric segment " + strconv.Quote(seg))
		}
		nums = append(nums, n)
	}
	id, year, month, day, hour, minute, sec := nums[0], nums[1], nums[2], nums[3], nums[4], nums[5], nums[6]
	if id <= 0 {
		return bad("catalog id is not positive")
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	// time.Date normalizes overflowing fields; reject them instead.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != sec {
		return bad("date or time out of range")
	}
	return id, t, nil
}

// Remove deletes the record file once it can take an exclusive lock without
// blocking. It gives up with a *storage.LockError after LockAttempts tries.
func (s *FileStore) Remove(ctx context.Context, id int, epoch time.Time) error {
	p := s.filePath(id, epoch)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", p, storage.ErrNotFound)
		}
		return &storage.IOError{Op: "open", Path: p, Err: err}
	}
	defer f.Close()

	for attempt := 1; ; attempt++ {
		locked, err := tryLockFile(f)
		if err != nil {
			return &storage.IOError{Op: "lock", Path: p, Err: err}
		}
		if locked {
			rmErr := os.Remove(p)
			unlockFile(f)
			if rmErr != nil {
				return &storage.IOError{Op: "remove", Path: p, Err: rmErr}
			}
			return nil
		}
		if attempt >= s.opts.LockAttempts {
			return &storage.LockError{Path: p, Attempts: attempt}
		}
		if err := pool.Sleep(ctx, s.opts.LockInterval); err != nil {
			return err
		}
	}
}

// IDs lists the catalog id directories under the storage root.
func (s *FileStore) IDs(_ context.Context) ([]int, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return nil, &storage.IOError{Op: "readdir", Path: s.opts.Dir, Err: err}
	}
	var ids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *FileStore) Close() error {
	return nil
}
