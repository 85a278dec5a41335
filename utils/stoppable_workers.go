// Package utils contains helpers shared by the agimus services.
package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers is a group of goroutines sharing a context that is canceled by Stop.
type StoppableWorkers struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewStoppableWorkers runs funcs in separate goroutines, with a context derived from parent.
func NewStoppableWorkers(parent context.Context, funcs ...func(context.Context)) *StoppableWorkers {
	ctx, cancel := context.WithCancel(parent)
	sw := &StoppableWorkers{ctx: ctx, cancel: cancel}
	sw.Add(funcs...)
	return sw
}

// Add starts one goroutine per function. It returns false, starting nothing, once the workers are
// stopped.
func (sw *StoppableWorkers) Add(funcs ...func(context.Context)) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.ctx.Err() != nil {
		return false
	}
	sw.workers.Add(len(funcs))
	for _, f := range funcs {
		goutils.PanicCapturingGo(func() {
			defer sw.workers.Done()
			f(sw.ctx)
		})
	}
	return true
}

// Wait blocks until every running worker returns.
func (sw *StoppableWorkers) Wait() {
	sw.workers.Wait()
}

// Stop cancels the context of the workers and waits for them to return.
func (sw *StoppableWorkers) Stop() {
	sw.mu.Lock()
	sw.cancel()
	sw.mu.Unlock()
	sw.workers.Wait()
}

// Context returns the context the workers are given.
func (sw *StoppableWorkers) Context() context.Context {
	return sw.ctx
}
