package daoware

import "sync"

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Executor runs async operations on a pool of background workers and hands
// every result to a single delivery goroutine, so completion callbacks
// execute one at a time, in completion order (not submission order).
//
// One Executor can be shared by many DAOs via Options.Executor.
type Executor struct {
	tasks    chan execTask
	delivery chan execDone
	workers  sync.WaitGroup
	sink     sync.WaitGroup
	once     sync.Once
	log      Logger

	mu     sync.RWMutex
	closed bool
}

type execTask struct {
	sub *Subscription
	// work runs on a worker goroutine and returns the delivery closure
	// carrying the already-computed result.
	work func() func()
}

type execDone struct {
	sub     *Subscription
	deliver func()
}

func NewExecutor(workers, queue int, log Logger) *Executor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queue <= 0 {
		queue = defaultQueueSize
	}

	e := &Executor{
		tasks:    make(chan execTask, queue),
		delivery: make(chan execDone, queue),
		log:      coalesce[Logger](log, NopLogger{}),
	}

	e.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer e.workers.Done()
			for t := range e.tasks {
				if t.sub != nil && t.sub.Canceled() {
					// cancelled before it started; skip the work entirely
					t.sub.settle()
					continue
				}
				e.delivery <- execDone{sub: t.sub, deliver: t.work()}
			}
		}()
	}

	e.sink.Add(1)
	go func() {
		defer e.sink.Done()
		for d := range e.delivery {
			if d.sub != nil && d.sub.Canceled() {
				d.sub.settle()
				continue
			}
			e.deliverSafe(d.deliver)
			if d.sub != nil {
				d.sub.settle()
			}
		}
	}()

	return e
}

// submit queues work without ever blocking the caller. It reports false
// when the executor is closed or the queue is saturated.
func (e *Executor) submit(sub *Subscription, work func() func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.tasks <- execTask{sub: sub, work: work}:
		return true
	default:
		return false
	}
}

// Close stops accepting work, drains everything already queued and blocks
// until the last pending callback has been delivered. Safe to call more
// than once.
func (e *Executor) Close() {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		close(e.tasks)
		e.workers.Wait()
		close(e.delivery)
		e.sink.Wait()
	})
}

// deliverSafe isolates callback panics so one misbehaving caller cannot
// terminate the delivery goroutine.
func (e *Executor) deliverSafe(f func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in completion callback", Fields{"panic": r})
		}
	}()
	f()
}
