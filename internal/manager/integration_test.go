package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tracecap/internal/pipeline"
	"tracecap/pkg/typereg"
)

// TestCollectCommitsThroughRealPipelineAndFacade wires a Manager to a
// real Pipeline backed by a real sqlite Facade — the end-to-end path
// spec.md's testable properties 4 and 6 describe — and asserts a
// CollectionData row actually lands after Collect + teardown.
func TestCollectCommitsThroughRealPipelineAndFacade(t *testing.T) {
	facade := openManagerFacade(t)
	var tick uint64
	clock := NewUint64Clock(func() uint64 { tick++; return tick })
	m := New(facade, clock, 5, testManagerLogger())

	read := func() typereg.Value { return typereg.Value{Uint: 42} }
	require.NoError(t, m.AddScalar("stats.count", "root.stats.count", typereg.PrimitiveUint32, read))

	pipe := pipeline.New(pipeline.Config{
		StageAQueueSize:   16,
		StageBQueueSize:   16,
		CommitInterval:    10 * time.Millisecond,
		TaskQueueInterval: 10 * time.Millisecond,
	}, m, m.Interner(), testManagerLogger())
	m.AttachPipeline(pipe)
	pipe.Start()

	ctx := context.Background()
	require.NoError(t, m.Finalize(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Collect(ctx))
	}

	pipe.Teardown()
	require.NoError(t, m.Close(ctx))

	rows, err := facade.NewQuery("CollectionData", []string{"id", "timestamp", "is_compressed"}).
		OrderBy("timestamp ASC").
		Run(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3, "expected one CollectionData row per committed tick")
}
