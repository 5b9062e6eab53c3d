package daoware

import (
	"context"
	"fmt"
)

// Subscribe creates a fresh subscription group if none is active. Must be
// called before the first async operation, and again after Unsubscribe.
func (d *dao[T, ID]) Subscribe() {
	d.subMu.Lock()
	if d.subs == nil {
		d.subs = newSubscriptionGroup()
	}
	d.subMu.Unlock()
}

// Unsubscribe cancels every in-flight async operation and discards the
// group. In-flight background work may still run to completion, but no
// callback registered before this call will fire.
func (d *dao[T, ID]) Unsubscribe() {
	d.subMu.Lock()
	if d.subs != nil {
		d.subs.cancelAll()
		d.subs = nil
	}
	d.subMu.Unlock()
}

func (d *dao[T, ID]) InsertAsync(ctx context.Context, record T, done func(error)) *Subscription {
	return d.asyncExec(ctx, "insert", func(ctx context.Context) error {
		return d.Insert(ctx, record)
	}, done)
}

func (d *dao[T, ID]) InsertBatchAsync(ctx context.Context, records []T, done func(error)) *Subscription {
	return d.asyncExec(ctx, "insertBatch", func(ctx context.Context) error {
		return d.InsertBatch(ctx, records)
	}, done)
}

func (d *dao[T, ID]) ClearTableAsync(ctx context.Context, done func(error)) *Subscription {
	return d.asyncExec(ctx, "clearTable", d.ClearTable, done)
}

func (d *dao[T, ID]) DeleteByIDAsync(ctx context.Context, id ID, done func(error)) *Subscription {
	return d.asyncExec(ctx, "deleteByID", func(ctx context.Context) error {
		return d.DeleteByID(ctx, id)
	}, done)
}

func (d *dao[T, ID]) QueryAllAsync(ctx context.Context, done func([]T, error)) *Subscription {
	return d.asyncQuery(ctx, opQueryAll, d.QueryAll, done)
}

// register adds a handle to the active group. Calling async operations
// without one is a programming error, not a runtime condition: it panics
// before any work is scheduled.
func (d *dao[T, ID]) register() *Subscription {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if d.subs == nil {
		panic("daoware: Subscribe must be called before async operations")
	}
	s := &Subscription{group: d.subs}
	d.subs.add(s)
	return s
}

func (d *dao[T, ID]) asyncExec(ctx context.Context, op string, f func(context.Context) error, done func(error)) *Subscription {
	if done == nil {
		done = func(error) {}
	}
	sub := d.register()
	ok := d.exec.submit(sub, func() func() {
		err := d.guard(op, func() error { return f(ctx) })
		return func() { done(err) }
	})
	if !ok {
		d.drop(sub, op)
	}
	return sub
}

func (d *dao[T, ID]) asyncQuery(ctx context.Context, op string, f func(context.Context) ([]T, error), done func([]T, error)) *Subscription {
	if done == nil {
		done = func([]T, error) {}
	}
	sub := d.register()
	ok := d.exec.submit(sub, func() func() {
		var recs []T
		err := d.guard(op, func() error {
			var ferr error
			recs, ferr = f(ctx)
			return ferr
		})
		return func() { done(recs, err) }
	})
	if !ok {
		d.drop(sub, op)
	}
	return sub
}

// guard isolates faults at the task boundary so one failing operation
// cannot terminate a worker. Errors and recovered panics are logged,
// reported to hooks, and returned for delivery to the callback.
func (d *dao[T, ID]) guard(op string, f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("daoware: async %s panicked: %v", op, r)
		}
		if err != nil {
			d.hooks.AsyncFault(d.table, op, err)
			d.log.Error("async operation failed", Fields{"table": d.table, "op": op, "err": err})
		}
	}()
	return f()
}

// drop handles a submit that the executor refused (closed or saturated).
// The callback will never fire; the handle reads as cancelled.
func (d *dao[T, ID]) drop(sub *Subscription, op string) {
	sub.Cancel()
	sub.settle()
	d.hooks.AsyncDropped(d.table, op)
	d.log.Error("async operation dropped", Fields{"table": d.table, "op": op})
}
