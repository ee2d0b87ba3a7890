// Package metrics carries the driver's optional Observer hooks: atomic
// counters behind a pluggable Observer interface, reporting driver
// submission/completion/cancel/queue-depth events.
package metrics

import "sync/atomic"

// Observer receives driver lifecycle events. Every PollDriver carries one,
// defaulting to a no-op implementation.
type Observer interface {
	// ObserveSubmit is called once per operation pushed onto a driver.
	ObserveSubmit()
	// ObserveComplete is called once per completed Entry a driver's Poll
	// collects, success reporting whether it completed without error.
	ObserveComplete(success bool)
	// ObserveCancel is called once per Cancel call.
	ObserveCancel()
	// ObserveQueueDepth is called after every Push with the current count
	// of in-flight (pushed but not yet popped) operations.
	ObserveQueueDepth(depth uint32)
}

type noopObserver struct{}

func (noopObserver) ObserveSubmit()            {}
func (noopObserver) ObserveComplete(bool)      {}
func (noopObserver) ObserveCancel()            {}
func (noopObserver) ObserveQueueDepth(uint32)  {}

// NoOp returns the shared no-op Observer.
func NoOp() Observer { return noopObserver{} }

// Counters is a concrete Observer that accumulates atomic counts.
type Counters struct {
	Submitted    atomic.Uint64
	Completed    atomic.Uint64
	Failed       atomic.Uint64
	Cancelled    atomic.Uint64
	MaxQueueDepth atomic.Uint32
}

// NewCounters creates a zeroed Counters.
func NewCounters() *Counters { return &Counters{} }

func (c *Counters) ObserveSubmit() { c.Submitted.Add(1) }

func (c *Counters) ObserveComplete(success bool) {
	c.Completed.Add(1)
	if !success {
		c.Failed.Add(1)
	}
}

func (c *Counters) ObserveCancel() { c.Cancelled.Add(1) }

func (c *Counters) ObserveQueueDepth(depth uint32) {
	for {
		cur := c.MaxQueueDepth.Load()
		if depth <= cur {
			return
		}
		if c.MaxQueueDepth.CompareAndSwap(cur, depth) {
			return
		}
	}
}

var _ Observer = (*Counters)(nil)
var _ Observer = noopObserver{}
