package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/utils"
)

type job struct {
	ctx  context.Context
	run  func(ctx context.Context, tr Transport)
	fail func(err error)
}

// Dispatcher owns the Transport. Jobs run one at a time in submission order
// on a single goroutine, so no two network operations ever interleave.
type Dispatcher struct {
	transport Transport
	jobs      chan job

	base   context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewDispatcher(transport Transport, depth int) *Dispatcher {
	if depth <= 0 {
		depth = 1
	}
	base, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		transport: transport,
		jobs:      make(chan job, depth),
		base:      base,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.base.Done():
			return
		case j := <-d.jobs:
			d.runJob(j)
		}
	}
}

func (d *Dispatcher) runJob(j job) {
	if err := j.ctx.Err(); err != nil {
		j.fail(err)
		return
	}

	ctx, cancel := context.WithCancel(j.ctx)
	stop := context.AfterFunc(d.base, cancel)
	defer func() {
		stop()
		cancel()
	}()

	j.run(ctx, d.transport)
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return domain.ErrDispatcherClosed
	}

	select {
	case d.jobs <- j:
		return nil
	case <-j.ctx.Done():
		return j.ctx.Err()
	case <-d.base.Done():
		return domain.ErrDispatcherClosed
	}
}

// Close stops the loop, cancels the running job and fails queued ones.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.cancel()

		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		<-d.done
		for {
			select {
			case j := <-d.jobs:
				j.fail(domain.ErrDispatcherClosed)
			default:
				slog.Debug("dispatcher closed", slog.String("module", "dispatcher"))
				return
			}
		}
	})
}

// Dispatch queues fn and returns its eventual result. fn is given exclusive
// use of the transport for its duration.
func Dispatch[T any](ctx context.Context, d *Dispatcher, fn func(ctx context.Context, tr Transport) (T, error)) *utils.Pending[T] {
	p := utils.NewPending[T]()
	j := job{
		ctx: ctx,
		run: func(ctx context.Context, tr Transport) {
			p.Resolve(fn(ctx, tr))
		},
		fail: func(err error) {
			var zero T
			p.Resolve(zero, err)
		},
	}
	if err := d.enqueue(j); err != nil {
		j.fail(err)
	}
	return p
}
