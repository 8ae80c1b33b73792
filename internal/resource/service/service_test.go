package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vilosource/cielo-azure-billing/internal/clock"
	resourcedomain "github.com/vilosource/cielo-azure-billing/internal/resource/domain"
	"github.com/vilosource/cielo-azure-billing/internal/resource/repository"
	"github.com/vilosource/cielo-azure-billing/pkg/db/dbtest"
	"go.uber.org/zap"
)

func TestBackfillNames(t *testing.T) {
	db := dbtest.Open(t, &resourcedomain.Resource{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	named := "kept"
	empty := ""
	seed := []resourcedomain.Resource{
		{ID: node.Generate(), ResourceID: "/subscriptions/s/resourceGroups/rg/providers/x/vm-1", CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), ResourceID: "/subscriptions/s/disks/disk-9/", ResourceName: &empty, CreatedAt: now, UpdatedAt: now},
		{ID: node.Generate(), ResourceID: "/subscriptions/s/other", ResourceName: &named, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, db.Create(&seed).Error)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(now.Add(time.Hour)),
	})

	updated, err := svc.BackfillNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	items, err := svc.List(context.Background(), resourcedomain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	names := map[string]string{}
	for _, item := range items {
		require.NotNil(t, item.ResourceName)
		names[item.ResourceID] = *item.ResourceName
	}
	assert.Equal(t, "vm-1", names["/subscriptions/s/resourceGroups/rg/providers/x/vm-1"])
	assert.Equal(t, "disk-9", names["/subscriptions/s/disks/disk-9/"])
	assert.Equal(t, "kept", names["/subscriptions/s/other"])

	again, err := svc.BackfillNames(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestGetByIDErrors(t *testing.T) {
	db := dbtest.Open(t, &resourcedomain.Resource{})
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide(), Clock: clock.SystemClock{}})

	_, err := svc.GetByID(context.Background(), "abc")
	assert.ErrorIs(t, err, resourcedomain.ErrInvalidID)

	_, err = svc.GetByID(context.Background(), "12345")
	assert.ErrorIs(t, err, resourcedomain.ErrNotFound)
}
