package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/goleak"

	"tracecap/pkg/interning"
)

type fakeCommitter struct {
	mu         sync.Mutex
	timestamps []int64
	drainCalls int
}

func (f *fakeCommitter) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeCommitter) CommitFrame(ctx context.Context, timestamp int64, blob []byte, compressed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timestamps = append(f.timestamps, timestamp)
	return nil
}

func (f *fakeCommitter) DrainInternedStrings(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drainCalls++
	return nil
}

func testPipelineLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return logrus.NewEntry(l)
}

func TestPipelineCommitsFramesInSeqOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	committer := &fakeCommitter{}
	p := New(Config{
		StageAQueueSize:   16,
		StageBQueueSize:   16,
		CommitInterval:    20 * time.Millisecond,
		BackpressureStreak: 3,
	}, committer, interning.New(), testPipelineLogger())
	p.Start()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if err := p.Push(ctx, []byte{byte(i)}, int64(i)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}

	p.Teardown()

	committer.mu.Lock()
	defer committer.mu.Unlock()
	if len(committer.timestamps) != 20 {
		t.Fatalf("expected 20 committed frames, got %d: %v", len(committer.timestamps), committer.timestamps)
	}
	for i, ts := range committer.timestamps {
		if ts != int64(i) {
			t.Fatalf("expected commits in ascending seq/timestamp order, got %v", committer.timestamps)
		}
	}
}

func TestPipelineTeardownIsIdempotent(t *testing.T) {
	committer := &fakeCommitter{}
	p := New(Config{CommitInterval: 10 * time.Millisecond}, committer, interning.New(), testPipelineLogger())
	p.Start()
	p.Push(context.Background(), []byte{1}, 1)
	p.Teardown()
	p.Teardown() // must not panic or double-close p.stop
}
