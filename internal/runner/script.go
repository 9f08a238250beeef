package runner

import (
	"context"
	"fmt"

	"github.com/lixdb/lix/internal/ast"
	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/contracts"
	"github.com/lixdb/lix/internal/planner"

	"go.opentelemetry.io/otel/trace"
)

// splitScript parses script into its constituent statements and renders each
// back to canonical SQL text, so Planner.Plan (which always parses from
// scratch) sees exactly one statement per call, the same contract it has for
// the single-statement path.
func splitScript(script string) ([]string, error) {
	stmts, err := ast.ParseScript(script)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.String()
	}
	return out, nil
}

// ExecuteScript runs every statement in script against the same params slice
// inside one transaction (spec.md §4.6 "Script path" — scripts share a
// single parameter list and a single commit boundary). Maintenance and
// in-tx postprocess run per-statement as each is reached, but commit-effect
// flushing is deferred to the very end, after the one shared commit
// succeeds, exactly like the single-statement path.
func (r *Runner) ExecuteScript(ctx context.Context, script string, params []any) (_ []*Result, retErr error) {
	ctx, span := runnerTracer.Start(ctx, "lix.execute_script",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(spanAttrs("execute_script", script)...),
	)
	defer func() { endSpan(span, retErr) }()

	if r.plugins != nil {
		r.plugins.ResetForExecute()
	}

	cat, err := r.catalogSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	stmts, err := splitScript(script)
	if err != nil {
		return nil, contracts.PlannerError(contracts.KindParse, "script: "+err.Error())
	}
	if len(stmts) == 0 {
		return nil, nil
	}

	isPostgres := r.backend.Dialect() == backend.DialectServer
	plans := make([]*contracts.ExecutionPlan, len(stmts))
	anyMutating := false
	for i, s := range stmts {
		plan, err := planner.New(cat).Plan(s, params)
		if err != nil {
			return nil, err
		}
		plans[i] = plan
		for _, st := range plan.Statements {
			if len(st.Mutations) > 0 || st.UntrackedWrite != nil {
				anyMutating = true
			}
		}
	}

	tx, err := r.backend.Begin(ctx)
	if err != nil {
		return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("begin transaction: %w", err))
	}

	var results []*Result
	var allCommitEffects []contracts.PostprocessAction
	for _, plan := range plans {
		res, effects, err := r.runInTx(ctx, tx, plan, params, isPostgres, cat)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
		results = append(results, res)
		allCommitEffects = append(allCommitEffects, effects...)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("commit: %w", err))
	}
	if anyMutating {
		r.cache.invalidate()
	}

	for _, action := range allCommitEffects {
		if err := action.Effect(); err != nil {
			return nil, contracts.ExecutorError(contracts.KindIO, fmt.Errorf("post-commit effect %s: %w", action.Label, err))
		}
	}
	return results, nil
}
