// Package queue is the durable local write-ahead queue of remote
// operations deferred while the store is unreachable. Operations are
// replayed in order during sync; only operations confirmed persisted
// remotely leave the queue, so a partial sync leaves a residual
// pending count instead of reporting success.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// OpType names the replayable operation kinds.
type OpType string

const (
	OpCreateSale  OpType = "create_sale"
	OpAdjustStock OpType = "adjust_stock"
)

// Operation is one deferred remote write. The payload is the exact
// document/adjustment to replay, so a retry carries the same
// idempotent reference it was enqueued with.
type Operation struct {
	ID         string          `json:"id"`
	Type       OpType          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue owns the on-disk operation log.
type Queue struct {
	path string

	mu  sync.Mutex
	ops []Operation
}

// Open loads the queue file, starting empty when none exists.
func Open(path string) (*Queue, error) {
	q := &Queue{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return q, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &q.ops); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Enqueue appends an operation and persists the queue before returning.
func (q *Queue) Enqueue(opType OpType, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, Operation{
		ID:         uuid.NewString(),
		Type:       opType,
		Payload:    raw,
		EnqueuedAt: time.Now(),
	})
	return q.persistLocked()
}

// Pending returns the number of operations awaiting replay.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Replay applies every pending operation in order. Confirmed
// operations are removed; failed ones keep their place with an
// incremented attempt count. It returns the residual count.
func (q *Queue) Replay(ctx context.Context, apply func(ctx context.Context, op Operation) error) (int, error) {
	q.mu.Lock()
	snapshot := append([]Operation(nil), q.ops...)
	q.mu.Unlock()

	var firstErr error
	done := make(map[string]bool, len(snapshot))
	failed := make(map[string]string, len(snapshot))
	for _, op := range snapshot {
		if err := ctx.Err(); err != nil {
			firstErr = err
			break
		}
		if err := apply(ctx, op); err != nil {
			failed[op.ID] = err.Error()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done[op.ID] = true
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	remaining := q.ops[:0]
	for _, op := range q.ops {
		if done[op.ID] {
			continue
		}
		if msg, ok := failed[op.ID]; ok {
			op.Attempts++
			op.LastError = msg
		}
		remaining = append(remaining, op)
	}
	q.ops = remaining
	if err := q.persistLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	return len(q.ops), firstErr
}

func (q *Queue) persistLocked() error {
	raw, err := json.Marshal(q.ops)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}
