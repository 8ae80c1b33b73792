package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sourcedomain "github.com/vilosource/cielo-azure-billing/internal/blobsource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/blobsource/repository"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	"github.com/vilosource/cielo-azure-billing/internal/config"
	"github.com/vilosource/cielo-azure-billing/pkg/db/dbtest"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (sourcedomain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t, &sourcedomain.BlobSource{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clk,
	}), clk
}

func boolPtr(v bool) *bool { return &v }

func TestSyncCreatesUpdatesAndDeactivates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Sync(ctx, []config.SourceDefinition{
		{Name: "prod", BaseFolder: "https://a.blob.core.windows.net/c/prod"},
		{Name: "dev", BaseFolder: "https://a.blob.core.windows.net/c/dev"},
	}))

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, svc.Sync(ctx, []config.SourceDefinition{
		{Name: "prod", BaseFolder: "https://a.blob.core.windows.net/c/prod-v2"},
	}))

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	byName := map[string]sourcedomain.BlobSource{}
	for _, s := range all {
		byName[s.Name] = s
	}
	assert.False(t, byName["dev"].Active)
	assert.True(t, byName["prod"].Active)
	assert.Equal(t, "https://a.blob.core.windows.net/c/prod-v2", byName["prod"].BaseFolder)

	require.NoError(t, svc.Sync(ctx, []config.SourceDefinition{
		{Name: "prod", BaseFolder: "https://a.blob.core.windows.net/c/prod-v2", Active: boolPtr(false)},
	}))
	active, err = svc.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRecordAttemptAndResult(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Sync(ctx, []config.SourceDefinition{{Name: "prod", BaseFolder: "https://a/c/p"}}))

	source, err := svc.GetByName(ctx, "prod")
	require.NoError(t, err)
	require.NoError(t, svc.RecordAttempt(ctx, source))

	clk.Advance(time.Minute)
	imported := clk.Now()
	require.NoError(t, svc.RecordResult(ctx, source, sourcedomain.StatusImported, &imported))

	reloaded, err := svc.GetByName(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, sourcedomain.StatusImported, reloaded.LastStatus)
	require.NotNil(t, reloaded.LastAttemptedAt)
	require.NotNil(t, reloaded.LastImportedAt)
	assert.True(t, reloaded.LastImportedAt.Equal(imported))

	require.NoError(t, svc.RecordResult(ctx, source, sourcedomain.ErrorStatus(errors.New("boom")), nil))
	reloaded, err = svc.GetByName(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, "error: boom", reloaded.LastStatus)
	assert.True(t, reloaded.LastImportedAt.Equal(imported))
}

func TestGetByNameNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetByName(context.Background(), "missing")
	assert.ErrorIs(t, err, sourcedomain.ErrNotFound)
	_, err = svc.GetByName(context.Background(), " ")
	assert.ErrorIs(t, err, sourcedomain.ErrInvalidName)
}
