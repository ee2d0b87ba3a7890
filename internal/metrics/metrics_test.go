package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	c := NewCounters()

	c.ObserveSubmit()
	c.ObserveSubmit()
	c.ObserveComplete(true)
	c.ObserveComplete(false)
	c.ObserveCancel()
	c.ObserveQueueDepth(3)
	c.ObserveQueueDepth(1)
	c.ObserveQueueDepth(7)

	require.Equal(t, uint64(2), c.Submitted.Load())
	require.Equal(t, uint64(2), c.Completed.Load())
	require.Equal(t, uint64(1), c.Failed.Load())
	require.Equal(t, uint64(1), c.Cancelled.Load())
	require.Equal(t, uint32(7), c.MaxQueueDepth.Load())
}

func TestNoOpObserverIsInert(t *testing.T) {
	o := NoOp()
	require.NotPanics(t, func() {
		o.ObserveSubmit()
		o.ObserveComplete(false)
		o.ObserveCancel()
		o.ObserveQueueDepth(99)
	})
}
