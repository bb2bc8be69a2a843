package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafe/pkg/cart"
	"cafe/pkg/catalog"
	"cafe/pkg/failure"
	"cafe/pkg/orders"
	"cafe/pkg/state"
)

type fakeRemote struct {
	mu    sync.Mutex
	keys  []string
	reqs  []Request
	err   error
	gate  chan struct{}
	calls int
	// hang blocks every call until its context is done.
	hang bool
}

func (f *fakeRemote) CreateOrder(ctx context.Context, key string, req Request) (orders.Order, error) {
	f.mu.Lock()
	f.calls++
	f.keys = append(f.keys, key)
	f.reqs = append(f.reqs, req)
	gate, err, hang := f.gate, f.err, f.hang
	n := f.calls
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return orders.Order{}, failure.Transport(ctx.Err())
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return orders.Order{}, err
	}
	return orders.Order{ID: "ord-1", OrderNumber: orders.Number("10" + string(rune('0'+n))), Status: orders.StatusPending}, nil
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func filledCart(t *testing.T) cart.State {
	t.Helper()
	var c cart.State
	require.NoError(t, c.Add(catalog.Product{ID: "A", Name: "Latte", Price: decimal.NewFromInt(50)}, 2))
	require.NoError(t, c.Add(catalog.Product{ID: "B", Name: "Bun", Price: decimal.NewFromInt(30)}, 1))
	return c
}

var customer = CustomerInfo{ClientName: " Ann ", Phone: "555-0101"}

func TestEmptyCartRejectedWithoutRemoteCall(t *testing.T) {
	remote := &fakeRemote{}
	flow := NewFlow(remote)
	defer flow.Shutdown()
	ctx := context.Background()

	_, err := flow.Submit(ctx, cart.State{}, customer)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, remote.callCount())

	st, err := flow.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseFailed, st.Phase)
	assert.Equal(t, "empty cart", st.Error)
}

func TestMissingCustomerInfo(t *testing.T) {
	remote := &fakeRemote{}
	flow := NewFlow(remote)
	defer flow.Shutdown()

	for _, info := range []CustomerInfo{{ClientName: "  ", Phone: "555"}, {ClientName: "Ann", Phone: ""}} {
		_, err := flow.Submit(context.Background(), filledCart(t), info)
		assert.ErrorIs(t, err, ErrMissingCustomerInfo)
		assert.True(t, failure.IsValidation(err))
	}
	assert.Zero(t, remote.callCount())
}

func TestEmptyCartCheckedBeforeCustomerInfo(t *testing.T) {
	flow := NewFlow(&fakeRemote{})
	defer flow.Shutdown()
	_, err := flow.Submit(context.Background(), cart.State{}, CustomerInfo{})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestSubmitSuccessRunsHook(t *testing.T) {
	remote := &fakeRemote{}
	var hooked []Confirmation
	flow := NewFlow(remote, WithSubmittedHook(func(ctx context.Context, c Confirmation) error {
		hooked = append(hooked, c)
		return nil
	}))
	defer flow.Shutdown()
	ctx := context.Background()

	conf, err := flow.Submit(ctx, filledCart(t), customer)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", conf.OrderID)
	assert.Equal(t, []Confirmation{conf}, hooked)

	require.Len(t, remote.reqs, 1)
	req := remote.reqs[0]
	assert.Equal(t, "Ann", req.ClientName)
	assert.Len(t, req.Items, 2)
	assert.True(t, req.TotalPrice.Equal(decimal.NewFromInt(130)))

	st, err := flow.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseSucceeded, st.Phase)
	require.NotNil(t, st.Confirmation)
	assert.Equal(t, conf, *st.Confirmation)
}

func TestEachAttemptGetsFreshKey(t *testing.T) {
	remote := &fakeRemote{err: failure.Transport(errors.New("reset"))}
	flow := NewFlow(remote)
	defer flow.Shutdown()
	ctx := context.Background()

	_, err := flow.Submit(ctx, filledCart(t), customer)
	require.Error(t, err)
	_, err = flow.Submit(ctx, filledCart(t), customer)
	require.Error(t, err)

	require.Len(t, remote.keys, 2)
	assert.NotEmpty(t, remote.keys[0])
	assert.NotEqual(t, remote.keys[0], remote.keys[1])
}

func TestFailureKeepsCartAndReportsReason(t *testing.T) {
	remote := &fakeRemote{err: failure.Rejection(422, "Phone number is invalid")}
	hookCalled := false
	flow := NewFlow(remote, WithSubmittedHook(func(context.Context, Confirmation) error {
		hookCalled = true
		return nil
	}))
	defer flow.Shutdown()
	ctx := context.Background()

	c := filledCart(t)
	_, err := flow.Submit(ctx, c, customer)
	require.Error(t, err)
	assert.False(t, hookCalled)
	assert.Len(t, c.Items, 2)

	st, err := flow.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseFailed, st.Phase)
	assert.Equal(t, "Phone number is invalid", st.Error)

	remote.err = failure.Transport(errors.New("refused"))
	_, err = flow.Submit(ctx, c, customer)
	require.Error(t, err)
	st, err = flow.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Failed to create order", st.Error)

	require.NoError(t, flow.ClearError(ctx))
	st, err = flow.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.PhaseIdle, st.Phase)
	assert.Empty(t, st.Error)
}

func TestSecondSubmissionRejectedWhileInFlight(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{})}
	flow := NewFlow(remote)
	defer flow.Shutdown()
	ctx := context.Background()

	c := filledCart(t)
	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(ctx, c, customer)
		done <- err
	}()
	require.Eventually(t, func() bool { return remote.callCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err := flow.Submit(ctx, filledCart(t), customer)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)

	st, err := flow.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.PhasePending, st.Phase)

	close(remote.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, remote.callCount())
}

func TestResetForgetsConfirmation(t *testing.T) {
	flow := NewFlow(&fakeRemote{})
	defer flow.Shutdown()
	ctx := context.Background()

	_, err := flow.Submit(ctx, filledCart(t), customer)
	require.NoError(t, err)
	require.NoError(t, flow.Reset(ctx))

	st, err := flow.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Phase: state.PhaseIdle}, st)
}

func TestHookSkippedAfterShutdown(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{})}
	hookCalled := false
	flow := NewFlow(remote, WithSubmittedHook(func(context.Context, Confirmation) error {
		hookCalled = true
		return nil
	}))

	c := filledCart(t)
	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), c, customer)
		done <- err
	}()
	require.Eventually(t, func() bool { return remote.callCount() == 1 }, time.Second, 5*time.Millisecond)

	flow.Shutdown()
	close(remote.gate)
	assert.ErrorIs(t, <-done, state.ErrClosed)
	assert.False(t, hookCalled)
}

func TestKeyFuncOption(t *testing.T) {
	remote := &fakeRemote{}
	flow := NewFlow(remote, WithKeyFunc(func() string { return "fixed" }))
	defer flow.Shutdown()

	_, err := flow.Submit(context.Background(), filledCart(t), customer)
	require.NoError(t, err)
	assert.Equal(t, []string{"fixed"}, remote.keys)
}

func TestCancelledSubmissionDoesNotBlockRetry(t *testing.T) {
	remote := &fakeRemote{hang: true}
	flow := NewFlow(remote)
	defer flow.Shutdown()

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := flow.Submit(ctx, filledCart(t), customer)
			done <- err
		}()
		require.Eventually(t, func() bool { return remote.callCount() == i+1 }, time.Second, 5*time.Millisecond)
		cancel()

		err := <-done
		assert.True(t, failure.IsTransport(err))
		assert.NotErrorIs(t, err, ErrSubmissionInFlight)

		st, err := flow.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, state.PhaseFailed, st.Phase)
		assert.NotEmpty(t, st.Error)
	}

	remote.mu.Lock()
	remote.hang = false
	remote.mu.Unlock()
	conf, err := flow.Submit(context.Background(), filledCart(t), customer)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", conf.OrderID)
	assert.Equal(t, 4, remote.callCount())
}

func TestConfirmedOrderRecordedAfterCallerGaveUp(t *testing.T) {
	remote := &fakeRemote{gate: make(chan struct{})}
	hooked := make(chan Confirmation, 1)
	flow := NewFlow(remote, WithSubmittedHook(func(ctx context.Context, c Confirmation) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		hooked <- c
		return nil
	}))
	defer flow.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(ctx, filledCart(t), customer)
		done <- err
	}()
	require.Eventually(t, func() bool { return remote.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(remote.gate)
	require.NoError(t, <-done)

	select {
	case c := <-hooked:
		assert.Equal(t, "ord-1", c.OrderID)
	case <-time.After(time.Second):
		t.Fatal("submitted hook did not run")
	}

	st, err := flow.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.PhaseSucceeded, st.Phase)
	require.NotNil(t, st.Confirmation)
	assert.Equal(t, "ord-1", st.Confirmation.OrderID)
}
