package driver_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/internal/testkit"
	"github.com/ehrlich-b/compio-go/rawop"
)

type echoOp struct {
	tag int
}

func newFakeDriver(resolve testkit.Resolver) (*driver.PollDriver, *testkit.FakeBackend) {
	backend := testkit.NewFakeBackend(resolve)
	return driver.New(backend), backend
}

func TestPushPollPopRoundTrip(t *testing.T) {
	d, _ := newFakeDriver(func(pinned *rawop.Pin) (int, error) {
		op := pinned.Any().(*echoOp)
		return op.tag, nil
	})

	id := driver.Push(d, &echoOp{tag: 42})

	var batch []driver.Entry
	require.NoError(t, d.Poll(nil, &batch))
	require.Len(t, batch, 1)
	require.Equal(t, id, batch[0].UserData)
	require.Equal(t, 42, batch[0].Result)

	var recovered *echoOp
	d.Pop(batch, func(e driver.Entry, reason driver.CancelReason, raw *rawop.RawOp) {
		recovered = rawop.Into[*echoOp](raw)
		require.Equal(t, driver.CancelReasonNone, reason)
	})
	require.Equal(t, 42, recovered.tag)
}

func TestCancelReportsRequestedReason(t *testing.T) {
	d, _ := newFakeDriver(nil)

	id := driver.Push(d, &echoOp{tag: 1})
	d.Cancel(id)

	var batch []driver.Entry
	require.NoError(t, d.Poll(nil, &batch))
	require.Len(t, batch, 1)
	require.Error(t, batch[0].Err)

	var reason driver.CancelReason
	d.Pop(batch, func(e driver.Entry, r driver.CancelReason, raw *rawop.RawOp) {
		reason = r
	})
	require.Equal(t, driver.CancelReasonRequested, reason)
}

func TestRegistryIDsAreReusedAfterPop(t *testing.T) {
	d, _ := newFakeDriver(nil)

	first := driver.Push(d, &echoOp{tag: 1})
	var batch []driver.Entry
	require.NoError(t, d.Poll(nil, &batch))
	d.Pop(batch, func(driver.Entry, driver.CancelReason, *rawop.RawOp) {})

	second := driver.Push(d, &echoOp{tag: 2})
	require.Equal(t, first, second)
}

func TestPopUnknownIDPanics(t *testing.T) {
	d, _ := newFakeDriver(nil)
	require.Panics(t, func() {
		d.Pop([]driver.Entry{{UserData: 999}}, func(driver.Entry, driver.CancelReason, *rawop.RawOp) {})
	})
}

func TestAttachDelegatesToBackend(t *testing.T) {
	d, backend := newFakeDriver(nil)
	require.NoError(t, d.Attach(7))
	require.True(t, backend.Attached(7))
}

func TestCloseDelegatesToBackend(t *testing.T) {
	d, backend := newFakeDriver(nil)
	require.NoError(t, d.Close())
	require.True(t, backend.Closed())
}

func TestPollWithTimeoutReturnsCompletedEntry(t *testing.T) {
	d, _ := newFakeDriver(nil)
	driver.Push(d, &echoOp{tag: 1})

	timeout := 10 * time.Millisecond
	var batch []driver.Entry
	require.NoError(t, d.Poll(&timeout, &batch))
	require.Len(t, batch, 1)
}
