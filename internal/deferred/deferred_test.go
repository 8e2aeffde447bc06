package deferred

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFleet struct {
	mu      sync.Mutex
	actions []struct {
		customerID uint32
		deactivate bool
	}
}

func (f *fakeFleet) Activate(_ context.Context, customerID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, struct {
		customerID uint32
		deactivate bool
	}{customerID, false})
	return nil
}

func (f *fakeFleet) Deactivate(_ context.Context, customerID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, struct {
		customerID uint32
		deactivate bool
	}{customerID, true})
	return nil
}

func (f *fakeFleet) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

func TestScheduleFiresAfterDebounce(t *testing.T) {
	fleet := &fakeFleet{}
	s := New(30*time.Millisecond, fleet, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(1, false)

	require.Eventually(t, func() bool { return fleet.count() == 1 }, time.Second, 5*time.Millisecond)

	fleet.mu.Lock()
	assert.Equal(t, uint32(1), fleet.actions[0].customerID)
	assert.False(t, fleet.actions[0].deactivate)
	fleet.mu.Unlock()
}

func TestScheduleReplacesPendingRequest(t *testing.T) {
	fleet := &fakeFleet{}
	s := New(40*time.Millisecond, fleet, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(7, false)
	s.Enqueue(7, true)

	require.Eventually(t, func() bool { return fleet.count() == 1 }, time.Second, 5*time.Millisecond)

	fleet.mu.Lock()
	assert.True(t, fleet.actions[0].deactivate)
	fleet.mu.Unlock()
}

func TestScheduleBatchesMultipleCustomers(t *testing.T) {
	fleet := &fakeFleet{}
	s := New(20*time.Millisecond, fleet, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Enqueue(1, false)
	s.Enqueue(2, true)

	require.Eventually(t, func() bool { return fleet.count() == 2 }, time.Second, 5*time.Millisecond)
}
