package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type testKind string

func (k testKind) Error() string  { return string(k) }
func (k testKind) String() string { return string(k) }

type testError struct{ kind testKind }

func (e *testError) Error() string { return "ledger: " + string(e.kind) }
func (e *testError) Unwrap() error { return e.kind }

func newRecordingProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	p := &Provider{config: DefaultConfig()}
	require.NoError(t, p.attach(
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	))
	return p, reader, spans
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "pakt", config.ServiceName)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
	require.True(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	// Recording on a disabled provider is a no-op.
	ctx, done := p.TrackOperation(context.Background(), "CreatePakt", attribute.String("pakt.wallet", "0x1"))
	require.NotNil(t, ctx)
	done(errors.New("boom"))
	p.RecordRequest(ctx)
	p.RecordError(ctx, errors.New("x"))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderNilConfig(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "pakt", p.config.ServiceName)
}

func TestTrackOperationRecordsMetricsAndSpans(t *testing.T) {
	p, reader, spans := newRecordingProvider(t)
	ctx := context.Background()

	_, done := p.TrackOperation(ctx, "LinkWallet")
	done(nil)
	_, done = p.TrackOperation(ctx, "CreatePakt")
	done(&testError{kind: "IncorrectAmount"})

	assert.Equal(t, int64(2), sumOf(t, reader, "pakt.operations.total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "pakt.errors.total"))
	assert.Equal(t, int64(0), sumOf(t, reader, "pakt.operations.active"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "LinkWallet", ended[0].Name())
	assert.Equal(t, "CreatePakt", ended[1].Name())
	assert.Len(t, ended[1].Events(), 1)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "IncorrectAmount", ErrorType(&testError{kind: "IncorrectAmount"}))
	assert.Equal(t, "*errors.errorString", ErrorType(errors.New("plain")))
}

func TestHTTPMiddleware(t *testing.T) {
	p, reader, spans := newRecordingProvider(t)
	h := p.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/ok", "/fail"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, int64(2), sumOf(t, reader, "pakt.operations.total"))
	assert.Equal(t, int64(1), sumOf(t, reader, "pakt.errors.total"))
	assert.Len(t, spans.Ended(), 2)
}
