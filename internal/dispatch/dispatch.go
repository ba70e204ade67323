// Package dispatch provides group-keyed serialized work dispatch.
//
// Every unit of work carries a group key (a conversation identifier). Work
// for the same key runs strictly in submission order, one item at a time,
// while a process-wide admission limiter bounds how many items run
// concurrently across all keys. Each key lazily gets its own lane with a
// dedicated consumer goroutine; an idle lane costs nothing beyond that
// parked goroutine.
package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrStopped is returned by Submit after the dispatcher has been stopped.
var ErrStopped = errors.New("dispatch: dispatcher stopped")

// Work is a unit of asynchronous work. The context it receives is cancelled
// when the dispatcher shuts down; work is expected to observe it, not
// guaranteed to stop instantly.
type Work func(ctx context.Context)

// lane is a single group's unbounded FIFO queue.
type lane struct {
	key   string
	mu    sync.Mutex
	queue []Work
	wake  chan struct{}
}

func (l *lane) push(w Work) {
	l.mu.Lock()
	l.queue = append(l.queue, w)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *lane) pop() (Work, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	w := l.queue[0]
	l.queue = l.queue[1:]
	return w, true
}

// Dispatcher runs submitted work serialized per group key.
type Dispatcher struct {
	mu    sync.Mutex
	lanes map[string]*lane

	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Dispatcher with the given total concurrency ceiling.
func New(maxConcurrent int) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		lanes:  make(map[string]*lane),
		slots:  make(chan struct{}, maxConcurrent),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit enqueues work for the given group key. It returns once the work is
// accepted, not once it has executed. Work for one key executes in
// submission order, never overlapping.
func (d *Dispatcher) Submit(ctx context.Context, groupKey string, work Work) error {
	if work == nil {
		return errors.New("dispatch: nil work")
	}
	select {
	case <-d.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	d.getOrCreateLane(groupKey).push(work)
	return nil
}

// getOrCreateLane creates the lane for a key exactly once, even under
// concurrent first submissions.
func (d *Dispatcher) getOrCreateLane(key string) *lane {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.lanes[key]; ok {
		return l
	}
	l := &lane{key: key, wake: make(chan struct{}, 1)}
	d.lanes[key] = l
	d.wg.Add(1)
	go d.runLane(l)
	return l
}

// runLane is the per-key consumer loop. It acquires an admission slot before
// each item and releases it before pulling the next, and it survives
// whatever a work item does: a panicking item is logged and swallowed so the
// lane keeps serving future submissions for its key.
func (d *Dispatcher) runLane(l *lane) {
	defer d.wg.Done()
	for {
		w, ok := l.pop()
		if !ok {
			select {
			case <-l.wake:
				continue
			case <-d.ctx.Done():
				return
			}
		}

		select {
		case d.slots <- struct{}{}:
		case <-d.ctx.Done():
			return
		}
		d.runOne(l.key, w)
		<-d.slots
	}
}

func (d *Dispatcher) runOne(key string, w Work) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Dispatch] work item for group %q panicked: %v", key, r)
		}
	}()
	w(d.ctx)
}

// Stop cancels the dispatcher. No new admission slots are granted; in-flight
// work observes the cancelled context; lane loops exit once idle.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// LaneCount returns the number of lanes created so far.
func (d *Dispatcher) LaneCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}
