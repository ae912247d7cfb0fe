package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/cloudbox/internal/model"
	"github.com/templui/cloudbox/internal/testutil"
)

func TestBuildQuota(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		used  int64
		want  model.Quota
	}{
		{name: "rounded to two decimals", total: 3, used: 1, want: model.Quota{Total: 3, Used: 1, Available: 2, Percentage: 33.33}},
		{name: "empty", total: 1000, used: 0, want: model.Quota{Total: 1000, Available: 1000}},
		{name: "over limit clamps", total: 100, used: 150, want: model.Quota{Total: 100, Used: 150, Available: 0, Percentage: 100}},
		{name: "zero total", total: 0, used: 0, want: model.Quota{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, *buildQuota(tt.total, tt.used))
		})
	}
}

func TestQuotaRecomputesZeroCounter(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.upload(t, "alice", "a.txt", "0123456789", nil)
	require.NoError(t, env.store.Users.SetStorageUsed(ctx, "alice", 0))

	quota, err := env.storage.Quota(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(10), quota.Used)
	assert.Equal(t, int64(10), env.used(t, "alice"), "corrected value is persisted")

	_, err = env.storage.Quota(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQuotaUsesUserLimit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	testutil.CreateUser(t, env.store, "carol", 4000)
	quota, err := env.storage.Quota(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), quota.Total)
}

func TestReconcile(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	env.upload(t, "alice", "a.txt", "abcd", nil)
	require.NoError(t, env.store.Users.SetStorageUsed(ctx, "alice", 999))

	result, err := env.storage.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, &ReconcileResult{UserID: "alice", Before: 999, After: 4}, result)
	assert.Equal(t, int64(4), env.used(t, "alice"))

	summary, err := env.storage.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.UsersScanned)
	assert.Zero(t, summary.UsersFixed)

	logs, err := env.store.Logs.List(ctx, model.MaintenanceQuotaReconcile, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"userId":"alice","before":999,"after":4}`, logs[0].Details)

	_, err = env.storage.Reconcile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
