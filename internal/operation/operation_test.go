package operation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationConfirmed(t *testing.T) {
	op := New[int]("supply", "alice")
	assert.Equal(t, Idle, op.Phase())

	release := make(chan struct{})
	require.NoError(t, op.Start(context.Background(), func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	}))
	assert.Equal(t, Pending, op.Phase())

	_, ok := op.Result()
	assert.False(t, ok)

	close(release)
	v, err := op.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, Confirmed, op.Phase())
	assert.NoError(t, op.Err())

	s := op.Snapshot()
	assert.Equal(t, "confirmed", s.Phase)
	assert.Equal(t, 42, s.Result)
	assert.NotNil(t, s.SettledAt)
}

func TestOperationFailed(t *testing.T) {
	boom := errors.New("boom")
	op := New[int]("borrow", "alice")
	require.NoError(t, op.Start(context.Background(), func(ctx context.Context) (int, error) {
		return 7, boom
	}))

	_, err := op.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Failed, op.Phase())
	assert.ErrorIs(t, op.Err(), boom)

	_, ok := op.Result()
	assert.False(t, ok)
	assert.Equal(t, "boom", op.Snapshot().Error)
}

func TestOperationStartsOnce(t *testing.T) {
	op := New[int]("repay", "alice")
	fn := func(ctx context.Context) (int, error) { return 1, nil }

	require.NoError(t, op.Start(context.Background(), fn))
	assert.ErrorIs(t, op.Start(context.Background(), fn), ErrAlreadyStarted)

	_, err := op.Wait(context.Background())
	require.NoError(t, err)

	// после Reset операция в Idle, но повторный запуск запрещен
	require.NoError(t, op.Reset())
	assert.Equal(t, Idle, op.Phase())
	assert.ErrorIs(t, op.Start(context.Background(), fn), ErrAlreadyStarted)
	assert.Equal(t, Idle, op.Phase())
}

func TestOperationResetWhilePending(t *testing.T) {
	op := New[int]("approve", "alice")
	release := make(chan struct{})
	require.NoError(t, op.Start(context.Background(), func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	}))

	assert.ErrorIs(t, op.Reset(), ErrPending)
	close(release)
	_, _ = op.Wait(context.Background())
}

func TestOperationSurvivesCallerCancel(t *testing.T) {
	op := New[string]("supply", "alice")
	ctx, cancel := context.WithCancel(context.Background())

	release := make(chan struct{})
	require.NoError(t, op.Start(ctx, func(ctx context.Context) (string, error) {
		<-release
		return "ok", ctx.Err()
	}))
	cancel()
	close(release)

	v, err := op.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestOperationOnSettle(t *testing.T) {
	op := New[int]("supply", "alice")
	var got int
	op.OnSettle(func(v int, err error) { got = v })

	require.NoError(t, op.Start(context.Background(), func(ctx context.Context) (int, error) {
		return 5, nil
	}))
	_, err := op.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got)
}

func TestOperationWaitHonoursContext(t *testing.T) {
	op := New[int]("supply", "alice")
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, op.Start(context.Background(), func(ctx context.Context) (int, error) {
		<-release
		return 0, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := op.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Minute)

	done := New[int]("supply", "alice")
	require.NoError(t, done.Start(context.Background(), func(ctx context.Context) (int, error) { return 1, nil }))
	_, _ = done.Wait(context.Background())

	release := make(chan struct{})
	defer close(release)
	pending := New[int]("borrow", "alice")
	require.NoError(t, pending.Start(context.Background(), func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	}))

	r.Add(done)
	r.Add(pending)

	got, ok := r.Get(done.ID())
	require.True(t, ok)
	assert.Equal(t, "supply", got.Snapshot().Kind)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, 0, r.Prune(time.Now()))
	assert.Equal(t, 1, r.Prune(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 1, r.Len())
}

func TestOperationWaitAfterReset(t *testing.T) {
	boom := errors.New("boom")
	failed := New[int]("borrow", "alice")
	require.NoError(t, failed.Start(context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	}))
	<-failed.Done()

	require.NoError(t, failed.Reset())
	assert.Equal(t, Idle, failed.Phase())
	assert.NoError(t, failed.Err())

	_, err := failed.Wait(context.Background())
	assert.ErrorIs(t, err, boom)

	confirmed := New[int]("supply", "alice")
	require.NoError(t, confirmed.Start(context.Background(), func(ctx context.Context) (int, error) {
		return 9, nil
	}))
	<-confirmed.Done()
	require.NoError(t, confirmed.Reset())

	v, err := confirmed.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, v)
	_, ok := confirmed.Result()
	assert.False(t, ok)
}

func TestRegistryListByOwner(t *testing.T) {
	r := NewRegistry(time.Minute)

	first := New[int]("supply", "alice")
	second := New[int]("borrow", "alice")
	second.createdAt = first.createdAt.Add(time.Second)
	other := New[int]("supply", "bob")
	r.Add(first)
	r.Add(second)
	r.Add(other)

	list := r.ListByOwner("alice")
	require.Len(t, list, 2)
	assert.Equal(t, second.ID(), list[0].ID)
	assert.Equal(t, "idle", list[0].Phase)
	assert.Equal(t, first.ID(), list[1].ID)

	assert.Empty(t, r.ListByOwner("carol"))
}
