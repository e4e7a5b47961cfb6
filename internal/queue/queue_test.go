package queue_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaudeNdayambaje/payesmart1/internal/queue"
)

func TestEnqueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")

	q, err := queue.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, q.Pending())

	require.NoError(t, q.Enqueue(queue.OpCreateSale, map[string]any{"receipt_number": "BE1"}))
	require.NoError(t, q.Enqueue(queue.OpAdjustStock, map[string]any{"product_id": "p1", "delta": -2}))

	reopened, err := queue.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Pending(), "operations must survive a process restart")
}

func TestReplayRemovesConfirmedKeepsFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	q, err := queue.Open(path)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(queue.OpCreateSale, map[string]any{"receipt_number": "BE1"}))
	require.NoError(t, q.Enqueue(queue.OpAdjustStock, map[string]any{"product_id": "p1"}))
	require.NoError(t, q.Enqueue(queue.OpAdjustStock, map[string]any{"product_id": "p2"}))

	remaining, err := q.Replay(context.Background(), func(_ context.Context, op queue.Operation) error {
		if op.Type == queue.OpAdjustStock {
			return assert.AnError
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 2, remaining)

	// The failed operations stay in order and carry their attempt count.
	reopened, err := queue.Open(path)
	require.NoError(t, err)
	var replayed []queue.Operation
	_, err = reopened.Replay(context.Background(), func(_ context.Context, op queue.Operation) error {
		replayed = append(replayed, op)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 2)
	for _, op := range replayed {
		assert.Equal(t, queue.OpAdjustStock, op.Type)
		assert.Equal(t, 1, op.Attempts)
		assert.Equal(t, assert.AnError.Error(), op.LastError)
	}
	assert.Equal(t, 0, reopened.Pending())
}

func TestReplayInOrder(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "pending.json"))
	require.NoError(t, err)
	for _, r := range []string{"BE1", "BE2", "BE3"} {
		require.NoError(t, q.Enqueue(queue.OpCreateSale, map[string]any{"receipt_number": r}))
	}

	var seen []string
	_, err = q.Replay(context.Background(), func(_ context.Context, op queue.Operation) error {
		seen = append(seen, string(op.Payload))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Contains(t, seen[0], "BE1")
	assert.Contains(t, seen[2], "BE3")
}

func TestReplayStopsOnCancelledContext(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "pending.json"))
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(queue.OpCreateSale, map[string]any{"receipt_number": "BE1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	remaining, err := q.Replay(ctx, func(context.Context, queue.Operation) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, remaining)
}
