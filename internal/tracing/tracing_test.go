package tracing

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpansReachExporter(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := InitWithExporter("rvoskit", "test", "session-1", exp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	ctx, boot := StartSpan(context.Background(), "boot")
	boot.SetInt("heap.size", 65536).SetString("heap.mode", "raw")
	_, child := StartSpan(ctx, "malloc-test")
	child.Event("alloc", "size", "1024")
	End(child, errors.New("boom"))
	End(boot, nil)

	spans := exp.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "malloc-test", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	require.Len(t, spans[0].Events, 2, "the alloc event and the recorded error")

	assert.Equal(t, "boot", spans[1].Name)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)
	assert.Len(t, spans[1].Attributes, 2)

	var session string
	for _, kv := range spans[1].Resource.Attributes() {
		if kv.Key == "session.id" {
			session = kv.Value.AsString()
		}
	}
	assert.Equal(t, "session-1", session)
}

func TestInitToFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "trace.json")
	shutdown, err := Init("rvoskit", "test", "s", fname)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "run")
	End(span, nil)
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name": "run"`)
}

func TestInitWithoutFileUsesDefaultOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := defaultOutput
	defaultOutput = &buf
	t.Cleanup(func() { defaultOutput = prev })

	shutdown, err := Init("rvoskit", "test", "s", "")
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "boot")
	End(span, nil)
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name": "boot"`)
	assert.Equal(t, os.Stderr, prev, "spans default to stderr, never stdout")
}

func TestNilSpanIsSafe(t *testing.T) {
	var s *Span
	s.SetInt("k", 1).SetString("k", "v")
	s.Event("e")
	End(s, nil)
}

func TestNilExporter(t *testing.T) {
	shutdown, err := InitWithExporter("rvoskit", "test", "s", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
