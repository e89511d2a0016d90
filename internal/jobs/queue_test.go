package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"murmur/internal/entry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// newTestDB opens a fresh in-memory sqlite database with the pipeline schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:jobstest%d?mode=memory&cache=shared", dbSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(&entry.Entry{}, &entry.Tag{}, &entry.EntryTag{}, &AiJob{}))
	return gdb
}

func createEntry(t *testing.T, gdb *gorm.DB, workspaceID uint64) *entry.Entry {
	t.Helper()
	s := &entry.Store{DB: gdb}
	e, err := s.Create(context.Background(), workspaceID, entry.CreateInput{AudioURI: "/audio/x.m4a"})
	require.NoError(t, err)
	return e
}

func TestEnqueueIsIdempotentPerEntryAndType(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	ctx := context.Background()
	e := createEntry(t, gdb, 1)

	first, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)
	assert.True(t, first.Enqueued)

	second, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)
	assert.False(t, second.Enqueued)
	assert.Equal(t, first.JobID, second.JobID)

	var n int64
	require.NoError(t, gdb.Model(&AiJob{}).Where("entry_id = ?", e.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// a different type for the same entry is a separate job
	third, err := q.Enqueue(ctx, 1, e.ID, TypeSummarize)
	require.NoError(t, err)
	assert.True(t, third.Enqueued)
}

func TestEnqueueStampsEntryQueued(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	s := &entry.Store{DB: gdb}
	ctx := context.Background()
	e := createEntry(t, gdb, 1)

	// simulate an earlier failure so clearing is observable
	require.NoError(t, s.Update(ctx, 1, e.ID, map[string]any{
		"ai_status": entry.StatusError,
		"error_msg": "old failure",
	}))

	_, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)

	got, err := s.Get(ctx, 1, e.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.StatusQueued, got.AIStatus)
	assert.Nil(t, got.ErrorMsg)
}

func TestEnqueueAllowedAfterTerminalFailure(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	ctx := context.Background()
	e := createEntry(t, gdb, 1)

	first, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)

	require.NoError(t, gdb.Model(&AiJob{}).Where("id = ?", first.JobID).
		Update("status", StatusError).Error)

	again, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)
	assert.True(t, again.Enqueued)
	assert.NotEqual(t, first.JobID, again.JobID)
}

func TestClaimFIFO(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	ctx := context.Background()

	e1 := createEntry(t, gdb, 1)
	e2 := createEntry(t, gdb, 1)

	r1, err := q.Enqueue(ctx, 1, e1.ID, TypeTranscribe)
	require.NoError(t, err)
	r2, err := q.Enqueue(ctx, 1, e2.ID, TypeTranscribe)
	require.NoError(t, err)

	first, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, r1.JobID, first.ID)
	assert.Equal(t, StatusRunning, first.Status)

	second, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, r2.JobID, second.ID)

	third, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, third)
}

func TestClaimIsExclusive(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	ctx := context.Background()
	e := createEntry(t, gdb, 1)

	_, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)

	const claimers = 8
	var won atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := q.ClaimNext(ctx, 1)
			if err == nil && job != nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, won.Load())
}

func TestClaimScopedByWorkspace(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	ctx := context.Background()
	e := createEntry(t, gdb, 1)

	_, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)

	job, err := q.ClaimNext(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRequeueOrFailRetriesThenFailsTerminally(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	s := &entry.Store{DB: gdb}
	ctx := context.Background()
	e := createEntry(t, gdb, 1)

	_, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)

	const maxAttempts = 3
	for i := 0; i < maxAttempts; i++ {
		job, err := q.ClaimNext(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d should find a claimable job", i+1)
		assert.Equal(t, i, job.Attempts)

		require.NoError(t, q.RequeueOrFail(ctx, job, "backend exploded", maxAttempts))

		got, err := s.Get(ctx, 1, e.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ErrorMsg)
		assert.Equal(t, "backend exploded", *got.ErrorMsg)

		if i < maxAttempts-1 {
			// still retryable: entry stays queued
			assert.Equal(t, entry.StatusQueued, got.AIStatus)
		} else {
			assert.Equal(t, entry.StatusError, got.AIStatus)
		}
	}

	var job AiJob
	require.NoError(t, gdb.Where("entry_id = ?", e.ID).First(&job).Error)
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, maxAttempts, job.Attempts)
	require.NotNil(t, job.LastError)
	assert.Equal(t, "backend exploded", *job.LastError)

	// terminal: nothing left to claim
	next, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestResetAbandoned(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	ctx := context.Background()
	e := createEntry(t, gdb, 1)

	_, err := q.Enqueue(ctx, 1, e.ID, TypeTranscribe)
	require.NoError(t, err)

	job, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, job)

	n, err := q.ResetAbandoned(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	reclaimed, err := q.ClaimNext(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, job.ID, reclaimed.ID)
}

func TestWorkspacesWithQueued(t *testing.T) {
	gdb := newTestDB(t)
	q := &Queue{DB: gdb}
	ctx := context.Background()

	e1 := createEntry(t, gdb, 1)
	e2 := createEntry(t, gdb, 7)

	_, err := q.Enqueue(ctx, 1, e1.ID, TypeTranscribe)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 7, e2.ID, TypeTranscribe)
	require.NoError(t, err)

	ids, err := q.WorkspacesWithQueued(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1, 7}, ids)
}
