/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"sync"
)

// Worker performs long-running work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// WorkerUnit presents Worker as Unit. Stop cancels the worker's context.
type WorkerUnit struct {
	worker    Worker
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
}

// NewWorkerUnit creates a new WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{worker: worker, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Start runs the worker and blocks until it returns.
func (u *WorkerUnit) Start(fatalErr chan<- error) {
	u.startOnce.Do(func() {
		defer close(u.done)
		if err := u.worker.Run(u.ctx); err != nil && u.ctx.Err() == nil {
			fatalErr <- err
		}
	})
}

// Stop cancels the worker. Graceful stop waits for the worker to return if it has been started.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if !gracefully {
		return nil
	}
	started := true
	u.startOnce.Do(func() {
		started = false
		close(u.done)
	})
	if started {
		<-u.done
	}
	return nil
}
