package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/vilosource/cielo-azure-billing/internal/blob"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	obsmetrics "github.com/vilosource/cielo-azure-billing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobFetchSources = "fetch_sources"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

//go:generate mockgen -destination=mock_fetcher_test.go -package=scheduler . SourceFetcher

// SourceFetcher fetches the active blob sources.
type SourceFetcher interface {
	FetchAll(ctx context.Context, names []string, opts blob.FetchOptions, timeout time.Duration) ([]blob.FetchReport, error)
}

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Fetcher SourceFetcher
	Config  Config                 `optional:"true"`
	Jobs    *obsmetrics.JobMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	fetcher SourceFetcher
	jobs    *obsmetrics.JobMetrics

	mu   sync.Mutex
	cron *cron.Cron
	stop context.CancelFunc
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Fetcher == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg,
		genID:   p.GenID,
		clock:   p.Clock,
		fetcher: p.Fetcher,
		jobs:    p.Jobs,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := &jobRun{
		job:       name,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	s.logJobStart(ctx, run)
	s.jobs.IncJobRun(name)

	err := fn(ctx, run)
	s.jobs.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	s.jobs.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce fetches every active source for the current billing period. A
// failing source is logged and the remaining sources still run.
func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobFetchSources, s.cfg.JobTimeout, func(ctx context.Context, run *jobRun) error {
		reports, err := s.fetcher.FetchAll(ctx, nil, blob.FetchOptions{}, s.cfg.SourceTimeout)
		for _, report := range reports {
			run.AddProcessed(len(report.Runs))
			s.logger(ctx).Info("scheduler.source.fetched",
				zap.String("source", report.Source),
				zap.String("period", report.Period),
				zap.String("status", report.Status),
				zap.Int("manifests", report.Manifests),
			)
		}
		if err != nil {
			s.logger(ctx).Error("scheduler.fetch.failed", zap.Error(err))
		}
		return err
	})
}

// Start registers RunOnce on the cron schedule. Overlapping ticks are skipped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{log: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.cfg.Schedule, func() {
		_ = s.RunOnce(ctx)
	}); err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c.Start()
	s.cron = c
	s.stop = cancel
	s.log.Info("scheduler started", zap.String("schedule", s.cfg.Schedule), zap.Duration("source_timeout", s.cfg.SourceTimeout))
	return nil
}

// Stop cancels a running fetch and waits for it to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.stop
	s.cron, s.stop = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
