package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("conceptgraph")
	b := NewCollector("conceptgraph")

	a.EdgesDeactivated.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.EdgesDeactivated))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EdgesDeactivated))
}

func TestCollector_RecordDBOperation(t *testing.T) {
	c := NewCollector("test")
	c.RecordDBOperation("query", "concepts", time.Now(), nil)
	c.RecordDBOperation("query", "concepts", time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.DBOperations.WithLabelValues("query", "concepts", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DBOperations.WithLabelValues("query", "concepts", "error")))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestTracer_RunsWithoutSegment(t *testing.T) {
	tracer := NewTracer("conceptgraph")
	called := false
	err := tracer.TraceFunction(context.Background(), "op", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestTracer_AnnotatesSubsegment(t *testing.T) {
	tracer := NewTracer("conceptgraph")
	ctx, root := xray.BeginSegment(context.Background(), "test")
	defer root.Close(nil)

	rejected := errors.New("would create a cycle")
	var sub *xray.Segment
	err := tracer.TraceFunction(ctx, "ProposeRelationship", func(ctx context.Context) error {
		sub = xray.GetSegment(ctx)
		tracer.AddAnnotation(ctx, "scope", "calc")
		tracer.RecordError(ctx, rejected)
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.NotSame(t, root, sub)
	assert.Equal(t, "calc", sub.Annotations["scope"])
	assert.True(t, sub.Fault)
}

func TestTracer_NoSegmentIsNoop(t *testing.T) {
	tracer := NewTracer("conceptgraph")
	assert.NotPanics(t, func() {
		tracer.AddAnnotation(context.Background(), "scope", "calc")
		tracer.AddMetadata(context.Background(), "concepts", 3)
		tracer.RecordError(context.Background(), errors.New("boom"))
	})
}
