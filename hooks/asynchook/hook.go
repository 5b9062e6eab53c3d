// Package asynchook offloads Hooks callbacks to a bounded worker queue so
// slow observers (log shippers, metric pushes) never stall cache or DAO hot
// paths. Events are dropped when the queue is full.
package asynchook

import (
	"sync"

	"github.com/elvench/daoware"
)

type Hooks struct {
	inner daoware.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ daoware.Hooks = (*Hooks)(nil)

func New(inner daoware.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string)          { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) CacheRejected(table, o string) { h.try(func() { h.inner.CacheRejected(table, o) }) }
func (h *Hooks) AsyncFault(table, o string, err error) {
	h.try(func() { h.inner.AsyncFault(table, o, err) })
}
func (h *Hooks) AsyncDropped(table, o string) { h.try(func() { h.inner.AsyncDropped(table, o) }) }
func (h *Hooks) InvalidateOutage(table string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(table, be, de) })
}
