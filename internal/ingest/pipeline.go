package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"rayview/internal/core/model"
	"rayview/internal/core/store"
	"rayview/internal/hub"
	"rayview/internal/protocol"
	"rayview/internal/util"
)

// DefaultQueueDepth bounds the ordered ingestion queue.
const DefaultQueueDepth = 256

// DefaultSubmitWait bounds how long a submission may block on a full
// queue before it is surfaced to the sender as retryable.
const DefaultSubmitWait = 2 * time.Second

var (
	// ErrQueueFull means the bounded wait on a full queue elapsed; the
	// sender may retry.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrShuttingDown means the pipeline no longer accepts submissions.
	ErrShuttingDown = errors.New("ingestion pipeline shutting down")
)

type item struct {
	req *protocol.Request
	src Source
	cmd *model.Command
}

// Pipeline is the ordered path from decoded request to committed
// entry. A single consumer goroutine normalizes, commits and
// publishes, so commit order matches queue order; submissions apply
// backpressure through the bounded queue.
type Pipeline struct {
	store *store.Store
	hub   *hub.Hub

	queue      chan item
	closing    chan struct{}
	done       chan struct{}
	submitWait time.Duration

	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithSubmitWait overrides the bounded backpressure wait.
func WithSubmitWait(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.submitWait = d
		}
	}
}

// NewPipeline creates the pipeline and starts its consumer.
func NewPipeline(st *store.Store, hb *hub.Hub, queueDepth int, opts ...PipelineOption) *Pipeline {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	p := &Pipeline{
		store:      st,
		hub:        hb,
		queue:      make(chan item, queueDepth),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		submitWait: DefaultSubmitWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Submit enqueues a decoded request. It blocks while the queue is full,
// up to the bounded wait, and fails with ErrQueueFull after it;
// accepted requests are never dropped.
func (p *Pipeline) Submit(ctx context.Context, req *protocol.Request, src Source) error {
	return p.enqueue(ctx, item{req: req, src: src})
}

// SubmitCommand routes a synthetic command through the same ordered
// path as externally sourced events.
func (p *Pipeline) SubmitCommand(ctx context.Context, cmd model.Command) error {
	return p.enqueue(ctx, item{cmd: &cmd})
}

func (p *Pipeline) enqueue(ctx context.Context, it item) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrShuttingDown
	}
	p.submitters.Add(1)
	p.mu.Unlock()
	defer p.submitters.Done()

	timer := time.NewTimer(p.submitWait)
	defer timer.Stop()

	select {
	case p.queue <- it:
		return nil
	case <-p.closing:
		return ErrShuttingDown
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting submissions, drains everything already queued,
// and waits for the consumer to finish.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	close(p.closing)
	p.mu.Unlock()

	p.submitters.Wait()
	close(p.queue)
	<-p.done
}

func (p *Pipeline) run() {
	defer close(p.done)
	for it := range p.queue {
		if it.cmd != nil {
			p.store.Apply(*it.cmd)
			continue
		}
		p.process(it.req, it.src)
	}
}

// process expands one request into operations and executes them in
// order against the store.
func (p *Pipeline) process(req *protocol.Request, src Source) {
	norm := Normalize(req, src)

	screenID := ""
	if norm.ScreenHint != "" {
		screenID = p.store.Registry().Resolve(norm.ScreenHint)
	}

	for _, op := range norm.Ops {
		switch op.Kind {
		case OpSwitchScreen:
			screenID = p.store.Registry().SwitchTo(op.ScreenName)

		case OpCommit:
			draft := op.Draft
			if draft.ScreenID == "" {
				draft.ScreenID = screenID
			}
			res := p.store.Commit(draft)
			if entry, ok := p.store.Entry(res.MergedWith); ok {
				p.hub.Publish(entry)
			}

		case OpTagPrevious:
			screen := screenID
			if screen == "" {
				screen = p.store.Registry().Current()
			}
			if id, ok := p.store.TagLast(norm.Origin, screen, op.Color, op.Label); ok {
				if entry, found := p.store.Entry(id); found {
					p.hub.Publish(entry)
				}
			}

		case OpAcquireLock:
			if !p.store.Registry().Acquire(op.LockName, norm.Origin) {
				util.LogDebugf("pipeline: lock %s already held", op.LockName)
			}

		case OpReleaseLock:
			p.store.Registry().Release(op.LockName)

		case OpClearAll:
			p.store.Apply(model.Command{Op: model.OpClearAll})
			screenID = ""

		case OpRemoveLast:
			p.store.Apply(model.Command{Op: model.OpRemove})

		case OpHideLast:
			p.store.Apply(model.Command{Op: model.OpHide})
		}
	}
}
