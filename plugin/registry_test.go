package plugin_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/revenue/bill"
	"github.com/xraph/revenue/plugin"
)

type billWatcher struct {
	name    string
	created atomic.Int32
	locked  atomic.Int32
	fail    bool
	delay   time.Duration
}

func (w *billWatcher) Name() string { return w.name }

func (w *billWatcher) OnBillCreated(context.Context, *bill.Bill) error {
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	w.created.Add(1)
	if w.fail {
		return errors.New("downstream unavailable")
	}
	return nil
}

func (w *billWatcher) OnBillLocked(context.Context, *bill.Bill) error {
	w.locked.Add(1)
	return nil
}

type nameOnly struct{}

func (nameOnly) Name() string { return "name-only" }

func TestRegisterDiscoversHooks(t *testing.T) {
	r := plugin.NewRegistry()
	w := &billWatcher{name: "watcher"}
	require.NoError(t, r.Register(w))
	require.NoError(t, r.Register(nameOnly{}))

	assert.Equal(t, 2, r.Count())
	assert.Same(t, w, r.Get("watcher"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)

	err := r.Register(&billWatcher{name: "watcher"})
	assert.Error(t, err)
	assert.Equal(t, 2, r.Count())

	ctx := context.Background()
	b := bill.NewMaster("pat-1", "enc-1", "inr", "MBL-1", "test", time.Now())
	r.EmitBillCreated(ctx, b)
	r.EmitBillLocked(ctx, b)
	r.EmitPaymentRecorded(ctx, b, bill.Payment{})

	assert.Equal(t, int32(1), w.created.Load())
	assert.Equal(t, int32(1), w.locked.Load())
}

func TestFailingHookDoesNotStopOthers(t *testing.T) {
	r := plugin.NewRegistry()
	bad := &billWatcher{name: "bad", fail: true}
	good := &billWatcher{name: "good"}
	require.NoError(t, r.Register(bad))
	require.NoError(t, r.Register(good))

	r.EmitBillCreated(context.Background(), &bill.Bill{})
	assert.Equal(t, int32(1), bad.created.Load())
	assert.Equal(t, int32(1), good.created.Load())
}

func TestSlowHookTimesOut(t *testing.T) {
	r := plugin.NewRegistry().WithTimeout(10 * time.Millisecond)
	slow := &billWatcher{name: "slow", delay: 200 * time.Millisecond}
	require.NoError(t, r.Register(slow))

	began := time.Now()
	r.EmitBillCreated(context.Background(), &bill.Bill{})
	assert.Less(t, time.Since(began), 150*time.Millisecond)
}
