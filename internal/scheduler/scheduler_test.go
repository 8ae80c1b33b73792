package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vilosource/cielo-azure-billing/internal/blob"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	calls    int
	timeout  time.Duration
	opts     blob.FetchOptions
	names    []string
	reports  []blob.FetchReport
	err      error
	deadline bool
}

func (f *fakeFetcher) FetchAll(ctx context.Context, names []string, opts blob.FetchOptions, timeout time.Duration) ([]blob.FetchReport, error) {
	f.calls++
	f.names = names
	f.opts = opts
	f.timeout = timeout
	_, f.deadline = ctx.Deadline()
	return f.reports, f.err
}

func newTestScheduler(t *testing.T, fetcher SourceFetcher, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := New(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)),
		Fetcher: fetcher,
		Config:  cfg,
	})
	require.NoError(t, err)
	return s
}

func TestRunOnceFetchesAllSources(t *testing.T) {
	fetcher := &fakeFetcher{reports: []blob.FetchReport{
		{Source: "prod", Status: "imported", Runs: []blob.RunOutcome{{RunID: "a"}, {RunID: "b"}}},
		{Source: "dev", Status: "no manifests"},
	}}
	s := newTestScheduler(t, fetcher, Config{SourceTimeout: time.Minute})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, fetcher.calls)
	assert.Nil(t, fetcher.names)
	assert.Equal(t, blob.FetchOptions{}, fetcher.opts)
	assert.Equal(t, time.Minute, fetcher.timeout)
	assert.True(t, fetcher.deadline)
}

func TestRunOnceWrapsFetchErrors(t *testing.T) {
	cause := errors.New("source prod: boom")
	fetcher := &fakeFetcher{err: cause}
	s := newTestScheduler(t, fetcher, Config{})

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), jobFetchSources)
	assert.Equal(t, DefaultConfig().SourceTimeout, fetcher.timeout)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, err = New(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.SystemClock{},
		Fetcher: &fakeFetcher{},
		Config:  Config{Schedule: "every day"},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{Log: zap.NewNop(), GenID: node, Clock: clock.SystemClock{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t, &fakeFetcher{}, Config{Schedule: "*/5 * * * *"})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestRunOnceReportsPartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockSourceFetcher(ctrl)
	partial := []blob.FetchReport{
		{Source: "prod", Status: "imported", Runs: []blob.RunOutcome{{RunID: "a"}}},
		{Source: "dev", Status: "error: listing failed"},
	}
	fetcher.EXPECT().
		FetchAll(gomock.Any(), gomock.Nil(), blob.FetchOptions{}, 2*time.Minute).
		Return(partial, errors.New("source dev: listing failed")).
		Times(1)

	s := newTestScheduler(t, fetcher, Config{SourceTimeout: 2 * time.Minute})
	err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "source dev")
}

func TestRunOnceHonoursCancelledParent(t *testing.T) {
	ctrl := gomock.NewController(t)
	fetcher := NewMockSourceFetcher(ctrl)
	fetcher.EXPECT().
		FetchAll(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []string, _ blob.FetchOptions, _ time.Duration) ([]blob.FetchReport, error) {
			return nil, ctx.Err()
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestScheduler(t, fetcher, Config{})
	assert.ErrorIs(t, s.RunOnce(ctx), context.Canceled)
}
