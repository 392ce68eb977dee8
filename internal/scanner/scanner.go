// Package scanner tails the release message table and fans every new row out
// to the in-process listeners.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chiwei-platform/config-service/internal/domain"
	"github.com/chiwei-platform/config-service/internal/metrics"
	"github.com/chiwei-platform/config-service/internal/port"
	"github.com/juju/clock"
)

const (
	DefaultInterval        = time.Second
	DefaultBatchSize       = 500
	DefaultMaxBackoff      = 30 * time.Second
	DefaultMissingAttempts = 10
	maxMissingIDsPerGap    = 1000
)

// Listener reacts to a single change-log row. Implementations handle their
// own errors; a row is never retried because a listener failed.
type Listener interface {
	HandleMessage(ctx context.Context, msg *domain.ReleaseMessage)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, msg *domain.ReleaseMessage)

func (f ListenerFunc) HandleMessage(ctx context.Context, msg *domain.ReleaseMessage) {
	f(ctx, msg)
}

type Options struct {
	Interval   time.Duration
	BatchSize  int
	MaxBackoff time.Duration
	// MissingAttempts is how many scans a skipped id is rechecked before it is
	// given up on.
	MissingAttempts int
}

func (o *Options) withDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MissingAttempts <= 0 {
		o.MissingAttempts = DefaultMissingAttempts
	}
}

// Scanner reads rows with id above its watermark in ascending order and
// delivers each one to every listener in registration order.
type Scanner struct {
	repo      port.ReleaseMessageRepository
	clock     clock.Clock
	opts      Options
	listeners []Listener

	scanMu    sync.Mutex
	watermark atomic.Int64
	// skipped id -> rechecks so far
	missing map[int64]int
}

func New(repo port.ReleaseMessageRepository, clk clock.Clock, opts Options, listeners ...Listener) *Scanner {
	if clk == nil {
		clk = clock.WallClock
	}
	opts.withDefaults()
	return &Scanner{
		repo:      repo,
		clock:     clk,
		opts:      opts,
		listeners: listeners,
		missing:   make(map[int64]int),
	}
}

// Watermark returns the highest row id delivered so far.
func (s *Scanner) Watermark() int64 {
	return s.watermark.Load()
}

// Prime moves the watermark to the newest row so history is not replayed at
// startup. Clients catch up through the id check done on registration.
func (s *Scanner) Prime(ctx context.Context) error {
	id, err := s.repo.FindLatestID(ctx)
	if err != nil {
		return fmt.Errorf("read latest release message id: %w", err)
	}
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	if id > s.watermark.Load() {
		s.setWatermark(id)
	}
	return nil
}

// Run scans on every interval until ctx is done. Read failures back off
// exponentially and leave the watermark where it was.
func (s *Scanner) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.Interval
	b.MaxInterval = s.opts.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	wait := s.opts.Interval
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}

		if err := s.ScanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.ScannerErrors.Inc()
			wait = b.NextBackOff()
			slog.Warn("scanner: read failed, backing off",
				"watermark", s.Watermark(), "retry_in", wait, "error", err)
			continue
		}
		b.Reset()
		wait = s.opts.Interval
	}
}

// ScanOnce drains every row currently above the watermark, then rechecks ids
// that were skipped by earlier scans.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	for {
		rows, err := s.repo.FindSince(ctx, s.watermark.Load(), s.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("read release messages since %d: %w", s.watermark.Load(), err)
		}
		for _, row := range rows {
			wm := s.watermark.Load()
			if row.ID <= wm {
				continue
			}
			s.rememberGap(wm, row.ID)
			s.dispatch(ctx, row)
			s.setWatermark(row.ID)
		}
		if len(rows) < s.opts.BatchSize {
			break
		}
	}

	return s.recheckMissing(ctx)
}

// rememberGap records ids between the watermark and the next row. They may
// belong to transactions that had not committed when the batch was read.
func (s *Scanner) rememberGap(watermark, next int64) {
	if watermark <= 0 || next-watermark <= 1 {
		return
	}
	if next-watermark-1 > maxMissingIDsPerGap {
		slog.Warn("scanner: id gap too large to recheck", "from", watermark, "to", next)
		return
	}
	for id := watermark + 1; id < next; id++ {
		s.missing[id] = 0
	}
	metrics.ScannerMissingIDs.Set(float64(len(s.missing)))
}

func (s *Scanner) recheckMissing(ctx context.Context) error {
	if len(s.missing) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(s.missing))
	for id := range s.missing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("recheck %d skipped release messages: %w", len(ids), err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	for _, row := range rows {
		if _, ok := s.missing[row.ID]; !ok {
			continue
		}
		delete(s.missing, row.ID)
		slog.Debug("scanner: late release message found", "id", row.ID, "message", row.Message)
		s.dispatch(ctx, row)
	}
	for id, attempts := range s.missing {
		if attempts+1 >= s.opts.MissingAttempts {
			delete(s.missing, id)
			continue
		}
		s.missing[id] = attempts + 1
	}
	metrics.ScannerMissingIDs.Set(float64(len(s.missing)))
	return nil
}

func (s *Scanner) dispatch(ctx context.Context, row *domain.ReleaseMessage) {
	for _, l := range s.listeners {
		l.HandleMessage(ctx, row)
	}
}

func (s *Scanner) setWatermark(id int64) {
	s.watermark.Store(id)
	metrics.ScannerWatermark.Set(float64(id))
}
