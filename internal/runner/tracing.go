package runner

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runnerTracer is the OTel tracer for statement-level spans, grounded on the
// teacher's storage/dolt/store.go doltTracer: one package-scoped tracer using
// the global provider, a no-op until the host wires a real one.
var runnerTracer = otel.Tracer("github.com/lixdb/lix/internal/runner")

// spanSQL truncates a SQL string to keep spans readable.
func spanSQL(q string) string {
	if len(q) > 300 {
		return q[:300] + "…"
	}
	return q
}

// endSpan records an error (if any) and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func spanAttrs(op, sql string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("db.system", "lix"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", spanSQL(sql)),
	}
}
