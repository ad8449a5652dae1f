package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrorType names err for metrics: the first error in its chain that
// also prints as a plain name (such as a ledger error kind), otherwise
// the Go type of err.
func ErrorType(err error) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if s, ok := e.(fmt.Stringer); ok {
			return s.String()
		}
	}
	return fmt.Sprintf("%T", err)
}

// RelayOperation builds attributes for a verifier webhook call.
func RelayOperation(action string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("pakt.relay.action", action)}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPMiddleware records a span and RED metrics per request, labelled by
// method and status class.
func (p *Provider) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := p.StartSpan(r.Context(), "http "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.request.method", r.Method)),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", r.Method),
			attribute.Int("http.response.status_class", rec.status/100),
		}
		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		p.RecordRequest(ctx, attrs...)
		p.RecordDuration(ctx, time.Since(start), attrs...)
		if rec.status >= http.StatusInternalServerError {
			p.RecordError(ctx, fmt.Errorf("http status %d", rec.status), attrs...)
		}
	})
}
