package runner

import (
	"context"
	"fmt"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/cas"
	"github.com/lixdb/lix/internal/contracts"
	"github.com/lixdb/lix/internal/planner"

	"go.opentelemetry.io/otel/trace"
)

// Tx is an explicit, host-visible transaction scope (spec.md §6.2
// "begin() -> Tx; Tx.execute; Tx.commit; Tx.rollback"). Every statement run
// through it shares one backend.Tx and one catalog snapshot; post-commit
// effects queued by any statement in the scope flush exactly once on Commit
// and are dropped entirely on Rollback (spec.md §4.6 "Explicit user
// transactions extend the commit boundary").
type Tx struct {
	runner        *Runner
	tx            backend.Tx
	cat           *dbCatalog
	isPostgres    bool
	commitEffects []contracts.PostprocessAction
	anyMutating   bool
	done          bool
}

// Begin opens a new explicit transaction scope against the runner's current
// catalog snapshot. Exactly one of Commit or Rollback must be called before
// the scope is discarded (spec.md §9 "Scoped acquisition").
func (r *Runner) Begin(ctx context.Context) (*Tx, error) {
	if r.plugins != nil {
		r.plugins.ResetForExecute()
	}
	cat, err := r.catalogSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := r.backend.Begin(ctx)
	if err != nil {
		return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("begin transaction: %w", err))
	}
	return &Tx{
		runner:     r,
		tx:         tx,
		cat:        cat,
		isPostgres: r.backend.Dialect() == backend.DialectServer,
	}, nil
}

// Execute plans and runs one statement inside this scope. Its post-commit
// effects (if any) are queued, not flushed, until the scope's Commit.
func (t *Tx) Execute(ctx context.Context, sql string, params []any) (_ *Result, retErr error) {
	ctx, span := runnerTracer.Start(ctx, "lix.tx_execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(spanAttrs("tx_execute", sql)...),
	)
	defer func() { endSpan(span, retErr) }()

	if t.done {
		return nil, contracts.PlannerError(contracts.KindPlannerInvariant, "tx: execute called after commit/rollback")
	}
	plan, err := planner.New(t.cat).Plan(sql, params)
	if err != nil {
		return nil, err
	}
	for _, st := range plan.Statements {
		if len(st.Mutations) > 0 || st.UntrackedWrite != nil {
			t.anyMutating = true
		}
	}
	res, effects, err := t.runner.runInTx(ctx, t.tx, plan, params, t.isPostgres, t.cat)
	if err != nil {
		return nil, err
	}
	t.commitEffects = append(t.commitEffects, effects...)
	return res, nil
}

// StoreBlob persists a binary CAS manifest and its chunks inside this
// transaction scope (spec.md §4.11 binary fallback), for a host's WriteFile
// to call alongside its lix_state metadata-change write so both commit
// atomically.
func (t *Tx) StoreBlob(ctx context.Context, manifest cas.BlobManifest, chunks []cas.StoredChunk) error {
	if t.done {
		return contracts.PlannerError(contracts.KindPlannerInvariant, "tx: store_blob called after commit/rollback")
	}
	return cas.Store(ctx, t.tx, t.isPostgres, manifest, chunks)
}

// ReassembleBlob reads a blob's chunks back in original order and
// concatenates them, for a host's ReadFile binary fallback.
func (t *Tx) ReassembleBlob(ctx context.Context, blobHash string) ([]byte, error) {
	if t.done {
		return nil, contracts.PlannerError(contracts.KindPlannerInvariant, "tx: reassemble_blob called after commit/rollback")
	}
	return cas.Reassemble(ctx, t.tx, t.isPostgres, blobHash)
}

// Commit commits the underlying backend transaction, then flushes every
// queued post-commit effect exactly once. Per spec.md §4.6, an effect
// failure does not retroactively undo the already-committed transaction —
// it is surfaced to the caller as an error after the commit has taken
// effect, not wrapped into a rollback.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return contracts.PlannerError(contracts.KindPlannerInvariant, "tx: commit called twice")
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return contracts.ExecutorError(contracts.KindIO, fmt.Errorf("commit: %w", err))
	}
	if t.anyMutating {
		t.runner.cache.invalidate()
	}
	for _, action := range t.commitEffects {
		if err := action.Effect(); err != nil {
			return contracts.ExecutorError(contracts.KindIO, fmt.Errorf("post-commit effect %s: %w", action.Label, err))
		}
	}
	return nil
}

// Rollback discards the underlying backend transaction and drops every
// queued post-commit effect without running them.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return contracts.PlannerError(contracts.KindPlannerInvariant, "tx: rollback called after commit/rollback")
	}
	t.done = true
	t.commitEffects = nil
	if err := t.tx.Rollback(ctx); err != nil {
		return contracts.ExecutorError(contracts.KindIO, fmt.Errorf("rollback: %w", err))
	}
	return nil
}
