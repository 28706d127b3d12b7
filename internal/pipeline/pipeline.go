// Package pipeline implements the two-stage async compression+write
// pipeline: Stage-A (compress-only) and Stage-B (compress-if-needed
// plus transactional commit), a load-balanced entry-stage decision, a
// seq_id reorder buffer guaranteeing in-order commits, and a manager-
// side adaptive back-pressure policy independent of the per-stage
// balancer.
package pipeline

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zlib"
	"github.com/sirupsen/logrus"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/interning"
)

// Committer persists committed frames; it is the pipeline's only
// dependency on the store façade, kept narrow so pipeline never
// imports internal/store directly.
type Committer interface {
	// WithTransaction runs fn inside a single safe_transaction scope,
	// per spec's "moves all ready items into a single safe_transaction".
	// CommitFrame/DrainInternedStrings must only be called from within fn.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	CommitFrame(ctx context.Context, timestamp int64, blob []byte, compressed bool) error
	DrainInternedStrings(ctx context.Context) error
}

// Config tunes queue depths, timer cadences, and the back-pressure
// streak/high-water-mark thresholds.
type Config struct {
	StageAQueueSize    int
	StageBQueueSize    int
	CommitInterval     time.Duration
	TaskQueueInterval  time.Duration
	BackpressureStreak int
	QueueHighWaterMark int
}

// Pipeline owns both stage goroutines, the load balancer, the reorder
// buffer, and the manager-side back-pressure tracker.
type Pipeline struct {
	cfg       Config
	committer Committer
	interner  *interning.Interner
	log       *logrus.Entry

	lb *LoadBalancer

	stageA chan Payload
	stageB chan Payload

	reorder   *ReorderBuffer
	reorderMu sync.Mutex
	flushReady []Payload

	seqCounter uint64

	backpressure backpressureTracker

	running int32
	wg      sync.WaitGroup
	stop    chan struct{}
}

// New constructs a Pipeline bound to committer for commits and
// interner for StringMap drains. Start must be called before Push.
func New(cfg Config, committer Committer, interner *interning.Interner, log *logrus.Entry) *Pipeline {
	if cfg.StageAQueueSize <= 0 {
		cfg.StageAQueueSize = 256
	}
	if cfg.StageBQueueSize <= 0 {
		cfg.StageBQueueSize = 256
	}
	if cfg.CommitInterval <= 0 {
		cfg.CommitInterval = time.Second
	}
	if cfg.BackpressureStreak <= 0 {
		cfg.BackpressureStreak = 3
	}
	if cfg.TaskQueueInterval <= 0 {
		cfg.TaskQueueInterval = 100 * time.Millisecond
	}
	return &Pipeline{
		cfg:       cfg,
		committer: committer,
		interner:  interner,
		log:       log,
		lb:        &LoadBalancer{},
		stageA:    make(chan Payload, cfg.StageAQueueSize),
		stageB:    make(chan Payload, cfg.StageBQueueSize),
		reorder:   NewReorderBuffer(),
		stop:      make(chan struct{}),
		backpressure: backpressureTracker{
			highWaterMark: cfg.QueueHighWaterMark,
			streakLimit:   cfg.BackpressureStreak,
		},
	}
}

// TaskQueueInterval returns the configured cadence for an
// AsyncTaskQueue fed by out-of-band writers attached to this pipeline's
// committer, per spec §4.4's ≈0.1s consumer cadence.
func (p *Pipeline) TaskQueueInterval() time.Duration {
	return p.cfg.TaskQueueInterval
}

// Start launches Stage-A, Stage-B, and the ≈1Hz commit timer.
func (p *Pipeline) Start() {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return
	}
	p.wg.Add(3)
	go p.runStageA()
	go p.runStageB()
	go p.runCommitTimer()
}

// Push assigns a monotonic seq_id to the frame and routes it to
// Stage-A or Stage-B per the load balancer's decision.
func (p *Pipeline) Push(ctx context.Context, frameBytes []byte, timestamp int64) error {
	seq := atomic.AddUint64(&p.seqCounter, 1) - 1
	decision := p.lb.Decide(len(p.stageA), len(p.stageB))

	payload := Payload{Bytes: frameBytes, Timestamp: timestamp, SeqID: seq}

	p.backpressure.observe(len(p.stageA) + len(p.stageB))
	level := p.backpressure.adjust(decision.StageALevel)

	if decision.EnterStageB {
		payload.compressLevel = p.backpressure.adjust(decision.StageBLevel)
		select {
		case p.stageB <- payload:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	payload.compressLevel = level
	select {
	case p.stageA <- payload:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *Pipeline) runStageA() {
	defer p.wg.Done()
	for {
		select {
		case payload, ok := <-p.stageA:
			if !ok {
				return
			}
			start := time.Now()
			if payload.compressLevel != 0 {
				compressed, err := compress(payload.Bytes, payload.compressLevel)
				if err == nil {
					payload.Bytes = compressed
					payload.IsCompressed = true
				} else {
					p.log.WithError(err).Error("stage-a compression failed")
				}
			}
			p.lb.ObserveStageA(time.Since(start).Seconds())
			select {
			case p.stageB <- payload:
			case <-p.stop:
				return
			}
		case <-p.stop:
			// Drain remaining queue before exiting (explicit drain path
			// per spec §5: stages stop accepting new work at Push, but
			// anything already queued still gets processed).
			for {
				select {
				case payload := <-p.stageA:
					p.stageB <- payload
				default:
					return
				}
			}
		}
	}
}

func (p *Pipeline) runStageB() {
	defer p.wg.Done()
	for {
		select {
		case payload, ok := <-p.stageB:
			if !ok {
				return
			}
			start := time.Now()
			if payload.compressLevel != 0 && !payload.IsCompressed {
				compressed, err := compress(payload.Bytes, payload.compressLevel)
				if err == nil {
					payload.Bytes = compressed
					payload.IsCompressed = true
				} else {
					p.log.WithError(err).Error("stage-b compression failed")
				}
			}
			p.lb.ObserveStageB(time.Since(start).Seconds())
			p.reorderMu.Lock()
			p.reorder.Push(payload)
			ready := p.reorder.Drain()
			p.flushReady = append(p.flushReady, ready...)
			p.reorderMu.Unlock()
		case <-p.stop:
			for {
				select {
				case payload := <-p.stageB:
					p.reorderMu.Lock()
					p.reorder.Push(payload)
					p.flushReady = append(p.flushReady, p.reorder.Drain()...)
					p.reorderMu.Unlock()
				default:
					p.commitReady(context.Background())
					return
				}
			}
		}
	}
}

func (p *Pipeline) runCommitTimer() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.CommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.commitReady(context.Background())
		case <-p.stop:
			return
		}
	}
}

// commitReady moves every ready item into a single transaction: all
// CollectionData inserts plus the StringMap drain commit or roll back
// together, per spec §4.8.
func (p *Pipeline) commitReady(ctx context.Context) {
	p.reorderMu.Lock()
	ready := p.flushReady
	p.flushReady = nil
	p.reorderMu.Unlock()

	if len(ready) == 0 {
		return
	}
	err := p.committer.WithTransaction(ctx, func(ctx context.Context) error {
		for _, payload := range ready {
			if err := p.committer.CommitFrame(ctx, payload.Timestamp, payload.Bytes, payload.IsCompressed); err != nil {
				return err
			}
		}
		return p.committer.DrainInternedStrings(ctx)
	})
	if err != nil {
		p.log.WithError(err).Error("commit failed")
	}
}

// Teardown flips running off, joins both stage goroutines after they
// drain their queues, and stops the commit timer.
func (p *Pipeline) Teardown() {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return
	}
	close(p.stop)
	p.wg.Wait()
	p.commitReady(context.Background())
}

func compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, tcerrors.NewEngineError("zlib.NewWriterLevel", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, tcerrors.NewEngineError("zlib.Write", err)
	}
	if err := w.Close(); err != nil {
		return nil, tcerrors.NewEngineError("zlib.Close", err)
	}
	return buf.Bytes(), nil
}
