package rollback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type recorder struct {
	calls []string
}

func (r *recorder) compensators(failOn Kind) Compensators {
	fn := func(ctx context.Context, a Action) error {
		r.calls = append(r.calls, a.String())
		if a.Kind == failOn {
			return errors.New("boom")
		}
		return nil
	}
	return Compensators{
		KIND_DATABASE: fn,
		KIND_BUCKET:   fn,
		KIND_VECTOR:   fn,
	}
}

func TestExecuteRollbackReverseOrder(t *testing.T) {
	r := &recorder{}
	h := NewHandler("test.create", r.compensators(""))

	h.RecordDatabaseSuccess("content_item", "c1")
	h.RecordBucketSuccess("https://bucket/a.pdf")
	h.RecordVectorSuccess("s1", "c1", types.CONTENT_TYPE_FILE)

	res := h.ExecuteRollback(context.Background(), errors.New("vector stage failed"))

	assert.True(t, res.OK())
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, []string{
		"vector:s1:file:c1",
		"bucket:https://bucket/a.pdf",
		"db:content_item:c1",
	}, r.calls)
	assert.True(t, h.Finished())
	assert.True(t, h.RolledBack())
	assert.Equal(t, 0, h.Pending())
}

func TestExecuteRollbackIsolatesFailures(t *testing.T) {
	r := &recorder{}
	h := NewHandler("test.isolate", r.compensators(KIND_BUCKET))

	h.RecordDatabaseSuccess("content_item", "c1")
	h.RecordBucketSuccess("https://bucket/a.pdf")

	res := h.ExecuteRollback(context.Background(), nil)

	assert.Len(t, res.Failed, 1)
	assert.Equal(t, []string{"bucket:https://bucket/a.pdf", "db:content_item:c1"}, r.calls)
}

func TestExecuteRollbackRecoversPanic(t *testing.T) {
	var dbCalled bool
	h := NewHandler("test.panic", Compensators{
		KIND_DATABASE: func(ctx context.Context, a Action) error {
			dbCalled = true
			return nil
		},
		KIND_BUCKET: func(ctx context.Context, a Action) error {
			panic("bucket client is nil")
		},
	})

	h.RecordDatabaseSuccess("content_item", "c1")
	h.RecordBucketSuccess("https://bucket/a.pdf")

	assert.NotPanics(t, func() {
		res := h.ExecuteRollback(context.Background(), errors.New("x"))
		assert.Len(t, res.Failed, 1)
	})
	assert.True(t, dbCalled)
}

func TestExecuteRollbackEmptyLedger(t *testing.T) {
	h := NewHandler("test.empty", nil)

	res := h.ExecuteRollback(context.Background(), errors.New("nothing to undo"))
	assert.Equal(t, 0, res.Attempted)
	assert.True(t, res.OK())
}

func TestExecuteRollbackMissingCompensator(t *testing.T) {
	h := NewHandler("test.missing", Compensators{})
	h.RecordVectorSuccess("s1", "c1", types.CONTENT_TYPE_TEXT)

	res := h.ExecuteRollback(context.Background(), nil)
	assert.Len(t, res.Failed, 1)
}

func TestClearIsIdempotent(t *testing.T) {
	r := &recorder{}
	h := NewHandler("test.clear", r.compensators(""))
	assert.False(t, h.Finished())

	h.RecordDatabaseSuccess("content_item", "c1")
	h.Clear()
	h.Clear()

	assert.True(t, h.Finished())
	assert.False(t, h.RolledBack())
	assert.Equal(t, 0, h.Pending())

	// rollback after clear has nothing left to compensate
	res := h.ExecuteRollback(context.Background(), nil)
	assert.Equal(t, 0, res.Attempted)
	assert.Empty(t, r.calls)

	h.Clear()
	assert.True(t, h.RolledBack())
}

func TestRecordDatabaseUpdateKeepsSnapshot(t *testing.T) {
	var got Action
	h := NewHandler("test.update", Compensators{
		KIND_DATABASE: func(ctx context.Context, a Action) error {
			got = a
			return nil
		},
	})

	h.RecordDatabaseUpdate("content_item", "c1", "old payload")
	h.ExecuteRollback(context.Background(), nil)

	assert.Equal(t, "old payload", got.Snapshot)
	assert.Equal(t, "c1", got.EntityID)
}
