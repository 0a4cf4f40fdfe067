// Package rollback keeps a per-operation ledger of side effects that span the
// relational store, the blob store and the vector index, and compensates them
// when a later stage of the same operation fails.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quka-ai/knowledge-sync/pkg/safe"
	"github.com/quka-ai/knowledge-sync/pkg/types"
)

type Kind string

const (
	KIND_DATABASE Kind = "db"
	KIND_BUCKET   Kind = "bucket"
	KIND_VECTOR   Kind = "vector"
)

// Action describes one successful side effect and carries what is needed to undo it.
type Action struct {
	Kind Kind

	// db
	Entity   string
	EntityID string
	// Snapshot holds the row as it was before an update, nil for inserts.
	Snapshot any

	// bucket
	URL string

	// vector
	Key types.DedupKey
}

func (a Action) String() string {
	switch a.Kind {
	case KIND_DATABASE:
		return fmt.Sprintf("db:%s:%s", a.Entity, a.EntityID)
	case KIND_BUCKET:
		return "bucket:" + a.URL
	case KIND_VECTOR:
		return "vector:" + a.Key.String()
	}
	return string(a.Kind)
}

type Compensator func(ctx context.Context, action Action) error

// Compensators is the dispatch table from action kind to its undo function.
type Compensators map[Kind]Compensator

type state int

const (
	stateOpen state = iota
	stateRolledBack
	stateCleared
)

// Result summarises one ExecuteRollback call.
type Result struct {
	Attempted int
	Failed    []error
}

func (r Result) OK() bool {
	return len(r.Failed) == 0
}

type Handler struct {
	scope   string
	undo    Compensators
	mu      sync.Mutex
	actions []Action
	state   state
}

func NewHandler(scope string, undo Compensators) *Handler {
	return &Handler{
		scope: scope,
		undo:  undo,
	}
}

func (h *Handler) record(action Action) {
	h.mu.Lock()
	h.actions = append(h.actions, action)
	h.mu.Unlock()
}

// RecordDatabaseSuccess records an inserted row, undone by deleting it.
func (h *Handler) RecordDatabaseSuccess(entity, id string) {
	h.record(Action{Kind: KIND_DATABASE, Entity: entity, EntityID: id})
}

// RecordDatabaseUpdate records an updated row, undone by restoring snapshot.
func (h *Handler) RecordDatabaseUpdate(entity, id string, snapshot any) {
	h.record(Action{Kind: KIND_DATABASE, Entity: entity, EntityID: id, Snapshot: snapshot})
}

func (h *Handler) RecordBucketSuccess(url string) {
	h.record(Action{Kind: KIND_BUCKET, URL: url})
}

func (h *Handler) RecordVectorSuccess(sourceID, contentID string, contentType types.ContentType) {
	h.record(Action{Kind: KIND_VECTOR, Key: types.DedupKey{
		KnowledgeSourceID: sourceID,
		ContentType:       contentType,
		ContentID:         contentID,
	}})
}

// ExecuteRollback compensates the ledger in reverse order. A failing or
// panicking compensation is logged and the remaining ones still run.
// It never returns an error and is a no-op on an empty ledger.
func (h *Handler) ExecuteRollback(ctx context.Context, reason error) Result {
	h.mu.Lock()
	actions := h.actions
	h.actions = nil
	h.state = stateRolledBack
	h.mu.Unlock()

	var res Result
	if len(actions) == 0 {
		return res
	}

	logAttrs := []any{slog.String("scope", h.scope), slog.Int("actions", len(actions))}
	if reason != nil {
		logAttrs = append(logAttrs, slog.String("reason", reason.Error()))
	}
	slog.Warn("Executing rollback", logAttrs...)

	for i := len(actions) - 1; i >= 0; i-- {
		action := actions[i]
		res.Attempted++

		fn, ok := h.undo[action.Kind]
		if !ok || fn == nil {
			err := fmt.Errorf("no compensator registered for %s", action.Kind)
			res.Failed = append(res.Failed, err)
			slog.Error("Rollback action skipped", slog.String("scope", h.scope), slog.String("action", action.String()), slog.String("error", err.Error()))
			continue
		}

		if err := safe.Call("rollback."+string(action.Kind), func() error {
			return fn(ctx, action)
		}); err != nil {
			res.Failed = append(res.Failed, fmt.Errorf("%s: %w", action.String(), err))
			slog.Error("Failed to compensate action", slog.String("scope", h.scope), slog.String("action", action.String()), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Action compensated", slog.String("scope", h.scope), slog.String("action", action.String()))
	}

	return res
}

// Clear drops the ledger without compensating. Safe to call repeatedly and after ExecuteRollback.
func (h *Handler) Clear() {
	h.mu.Lock()
	h.actions = nil
	if h.state == stateOpen {
		h.state = stateCleared
	}
	h.mu.Unlock()
}

// Finished reports whether ExecuteRollback or Clear has been called.
func (h *Handler) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state != stateOpen
}

func (h *Handler) RolledBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateRolledBack
}

// Pending returns the number of recorded, not yet resolved, actions.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.actions)
}
