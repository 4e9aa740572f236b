// Package sweeper removes expired entities from every store.
//
// A pass lists, per family, the entities that expired before the pass
// started and deletes the deletable ones. Every delete is conditional on
// the entity still being deletable and expired when it happens, and an
// entity that is already gone is not an error, so any number of sweepers
// may run at the same time, on the same or on different instances.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/luikyv/go-authority/internal/metrics"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
)

const (
	DefaultInterval  = time.Minute
	DefaultBatchSize = 100
)

// Family is a named set of entities that expire.
type Family struct {
	Name  string
	Index goidc.ExpirationIndex
}

// Report summarizes what a pass did to one family. Scanned is the sum of
// Deleted, Skipped and Failed.
type Report struct {
	Family  string
	Scanned int
	Deleted int
	// Skipped counts expired entities kept because they are not deletable.
	Skipped int
	Failed  int
}

type Sweeper struct {
	families  []Family
	interval  time.Duration
	batchSize int
	clock     timeutil.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Sweeper)

func WithInterval(interval time.Duration) Option {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		s.batchSize = size
	}
}

func WithClock(clock timeutil.Clock) Option {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func New(families []Family, opts ...Option) *Sweeper {
	s := &Sweeper{
		families:  families,
		interval:  DefaultInterval,
		batchSize: DefaultBatchSize,
		clock:     timeutil.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	return s
}

// SweepOnce runs one pass over every family and returns a report per
// family, in the order they were registered. Failing to list a family
// doesn't stop the pass, the error is returned once every family was
// visited. The pass stops early, between batches, when ctx is done.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]Report, error) {
	start := time.Now()
	before := timeutil.Timestamp(s.clock())

	var reports []Report
	var errs []error
	for _, f := range s.families {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		report, err := s.sweep(ctx, f, before)
		reports = append(reports, report)
		s.metrics.SweptFamily(f.Name, report.Deleted, report.Skipped, report.Failed)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				errs = append(errs, err)
				break
			}
			s.logger.Error("could not sweep the family", slog.String("family", f.Name), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("sweeping %s: %w", f.Name, err))
		}
	}

	elapsed := time.Since(start)
	s.metrics.SweepDuration(elapsed)

	total := Report{}
	for _, r := range reports {
		total.Scanned += r.Scanned
		total.Deleted += r.Deleted
		total.Skipped += r.Skipped
		total.Failed += r.Failed
	}
	s.logger.Info("sweep finished", slog.Int("scanned", total.Scanned), slog.Int("deleted", total.Deleted),
		slog.Int("skipped", total.Skipped), slog.Int("failed", total.Failed), slog.Duration("elapsed", elapsed))

	return reports, errors.Join(errs...)
}

// sweep pages through the expired entities of a family. Entities kept in
// earlier batches still match the query, so the offset moves past them and
// they never hide deletable entities behind them.
func (s *Sweeper) sweep(ctx context.Context, f Family, before int) (Report, error) {
	report := Report{Family: f.Name}
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entries, err := f.Index.Expired(ctx, before, offset, s.batchSize)
		if err != nil {
			return report, err
		}

		for _, e := range entries {
			report.Scanned++
			if !e.Deletable {
				report.Skipped++
				offset++
				continue
			}

			// The store checks again that the entity can be swept, it may have
			// been renewed or made non deletable since it was listed.
			deleted, err := f.Index.DeleteExpired(ctx, e.ID, before)
			if err != nil {
				s.logger.Warn("could not delete the expired entity", slog.String("family", f.Name),
					slog.String("id", e.ID), slog.String("error", err.Error()))
				report.Failed++
				offset++
				continue
			}
			if !deleted {
				// Still expired but no longer deletable, it is listed again in the
				// next batch and skipped then. Otherwise it left the query.
				report.Skipped++
				continue
			}
			report.Deleted++
		}

		if len(entries) < s.batchSize {
			s.logger.Debug("family swept", slog.String("family", f.Name), slog.Int("deleted", report.Deleted),
				slog.Int("skipped", report.Skipped), slog.Int("failed", report.Failed))
			return report, nil
		}
	}
}

// Start runs a pass every interval until [Sweeper.Stop] is called or ctx
// is done. Calling Start on a running sweeper is an error.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return errors.New("the sweeper is already running")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval))
	return nil
}

// Stop cancels the running pass, if any, and waits for the loop to exit.
// Stopping a sweeper that isn't running does nothing.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors were already logged and the next tick tries again.
			_, _ = s.SweepOnce(ctx)
		}
	}
}
