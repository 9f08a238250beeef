package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/binder"
	"github.com/lixdb/lix/internal/commit"
	"github.com/lixdb/lix/internal/contracts"
	"github.com/lixdb/lix/internal/history"
	"github.com/lixdb/lix/internal/plugin"
	"github.com/lixdb/lix/internal/planner"
	"github.com/lixdb/lix/internal/schema"

	"go.opentelemetry.io/otel/trace"
)

// Result is the shape one execute() call returns to a host (spec.md §6.2
// "execute(sql, params) -> {rows, columns, affected}").
type Result struct {
	Columns  []string
	Rows     [][]any
	Affected int64
}

// Runner drives one parsed statement through the full pipeline: plan,
// satisfy history requirements, bind, execute, postprocess, commit — the
// single-statement path from spec.md §4.6. A Runner is bound to one engine
// handle's backend, schema registry, and plugin runtime; the root lix
// package's Handle holds exactly one Runner per open handle.
type Runner struct {
	backend    backend.Backend
	registry   *schema.Registry
	generator  *commit.Generator
	maintainer *history.Maintainer
	plugins    *plugin.Runtime
	cache      catalogCache
	log        *slog.Logger
}

// New builds a Runner over an already-open backend, with now overridable for
// deterministic-mode tests (spec.md §6.4); a nil now defaults to time.Now. A
// nil log falls back to slog.Default().
func New(b backend.Backend, registry *schema.Registry, plugins *plugin.Runtime, now func() time.Time, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		backend:    b,
		registry:   registry,
		generator:  commit.NewGenerator(registry, nil, now),
		maintainer: history.NewMaintainer(),
		plugins:    plugins,
		log:        log,
	}
}

// InvalidateCatalog drops the cached version/schema snapshot, forcing the
// next Execute to reload it. Called by the host API after any out-of-band
// write to lix_stored_schema, lix_version_descriptor, or the active-version
// kv row that didn't go through Execute itself (e.g. bootstrap).
func (r *Runner) InvalidateCatalog() { r.cache.invalidate() }

func (r *Runner) catalogSnapshot(ctx context.Context) (*dbCatalog, error) {
	r.cache.mu.Lock()
	cur := r.cache.cur
	r.cache.mu.Unlock()
	if cur != nil {
		return cur, nil
	}
	fresh, err := loadCatalog(ctx, r.backend, r.registry)
	if err != nil {
		return nil, err
	}
	r.cache.mu.Lock()
	r.cache.cur = fresh
	r.cache.mu.Unlock()
	return fresh, nil
}

// Execute runs sql (one statement) against params and returns its result.
// It implements spec.md §4.6's ordering guarantee: maintenance and
// postprocess_sql/apply_effects_tx run inside the same transaction as the
// statement; apply_effects_post_commit runs exactly once, only after a
// successful commit.
func (r *Runner) Execute(ctx context.Context, sql string, params []any) (_ *Result, retErr error) {
	ctx, span := runnerTracer.Start(ctx, "lix.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(spanAttrs("execute", sql)...),
	)
	defer func() { endSpan(span, retErr) }()

	if r.plugins != nil {
		r.plugins.ResetForExecute()
	}

	cat, err := r.catalogSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := planner.New(cat).Plan(sql, params)
	if err != nil {
		return nil, err
	}

	isPostgres := r.backend.Dialect() == backend.DialectServer
	isMutating := false
	for _, st := range plan.Statements {
		if len(st.Mutations) > 0 || st.UntrackedWrite != nil {
			isMutating = true
		}
	}
	needsTx := isMutating || !plan.Requirements.IsZero() || len(plan.Postprocess) > 0

	if !needsTx {
		// A pure read with nothing to materialize first: no transaction
		// required (spec.md §4.1 "Execute runs a single statement outside of
		// any transaction").
		return r.executeReadOnly(ctx, plan, params, isPostgres)
	}

	tx, err := r.backend.Begin(ctx)
	if err != nil {
		return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("begin transaction: %w", err))
	}
	res, commitEffects, err := r.runInTx(ctx, tx, plan, params, isPostgres, cat)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("commit: %w", err))
	}
	if isMutating {
		r.cache.invalidate()
	}

	// apply_effects_post_commit: runs exactly once, only now that the
	// transaction has actually committed (spec.md §4.6).
	for _, action := range commitEffects {
		if err := action.Effect(); err != nil {
			return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("post-commit effect %s: %w", action.Label, err))
		}
	}
	return res, nil
}

func (r *Runner) executeReadOnly(ctx context.Context, plan *contracts.ExecutionPlan, params []any, isPostgres bool) (*Result, error) {
	b := binder.New(params)
	prepared, err := b.BindAll(plan, r.backend.Dialect())
	if err != nil {
		return nil, err
	}
	var last *backend.Result
	for _, ps := range prepared {
		if ps.SQL == "" {
			continue
		}
		res, err := r.backend.Execute(ctx, ps.SQL, ps.Args)
		if err != nil {
			r.log.Debug("backend statement failed", "sql", ps.SQL, "error", err)
			return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("execute: %w", err))
		}
		last = res
	}
	return toResult(last), nil
}

// runInTx executes plan's statements, maintenance, mutations, and in-tx
// postprocess actions inside tx, returning the read result (if any) and the
// post-commit effect callbacks the caller must run after tx.Commit succeeds.
func (r *Runner) runInTx(ctx context.Context, tx backend.Tx, plan *contracts.ExecutionPlan, params []any, isPostgres bool, cat *dbCatalog) (*Result, []contracts.PostprocessAction, error) {
	if !plan.Requirements.IsZero() {
		r.log.Info("running history maintenance", "root_commit_id", plan.Requirements.RootCommitID, "max_depth", plan.Requirements.MaxDepth)
		if err := r.maintainer.Satisfy(ctx, tx, isPostgres, plan.Requirements); err != nil {
			return nil, nil, contracts.ExecutorError(contracts.KindMaintenance, fmt.Errorf("satisfy history requirements: %w", err))
		}
	}

	b := binder.New(params)
	now := r.generator.Now().Format(time.RFC3339Nano)

	var result *Result
	for i := range plan.Statements {
		st := &plan.Statements[i]

		if len(st.Mutations) > 0 {
			resolved, err := resolveMutations(ctx, tx, isPostgres, cat, st.Mutations)
			if err != nil {
				return nil, nil, err
			}
			if _, err := r.generator.Apply(ctx, tx, isPostgres, resolved); err != nil {
				return nil, nil, err
			}
		}
		if st.UntrackedWrite != nil {
			if err := resolveUntracked(ctx, tx, isPostgres, now, st.UntrackedWrite); err != nil {
				return nil, nil, err
			}
		}

		if st.SQL != "" {
			ps, err := b.Bind(st, r.backend.Dialect())
			if err != nil {
				return nil, nil, err
			}
			res, err := tx.Execute(ctx, ps.SQL, ps.Args)
			if err != nil {
				r.log.Debug("backend statement failed", "sql", ps.SQL, "error", err)
				return nil, nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("execute: %w", err))
			}
			result = toResult(res)
		}
	}

	var commitEffects []contracts.PostprocessAction
	for _, action := range plan.Postprocess {
		switch action.Kind {
		case contracts.PostprocessSQL:
			if _, err := tx.Execute(ctx, action.SQL, action.Args); err != nil {
				return nil, nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("postprocess %s: %w", action.Label, err))
			}
		case contracts.PostprocessTxEffect:
			if action.Effect != nil {
				if err := action.Effect(); err != nil {
					return nil, nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("tx effect %s: %w", action.Label, err))
				}
			}
		case contracts.PostprocessCommitEffect:
			if action.Effect != nil {
				commitEffects = append(commitEffects, action)
			}
		}
	}

	if result == nil {
		result = &Result{}
	}
	return result, commitEffects, nil
}

func toResult(res *backend.Result) *Result {
	if res == nil {
		return &Result{}
	}
	rows := make([][]any, len(res.Rows))
	for i, row := range res.Rows {
		r := make([]any, len(row))
		copy(r, row)
		rows[i] = r
	}
	return &Result{Columns: res.Columns, Rows: rows, Affected: res.Affected}
}
