package authcore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/kesslerlabs/go-authcore"
)

func TestSessionStoreStartsUnknown(t *testing.T) {
	store := authcore.NewSessionStore()

	state := store.Current()
	assert.Equal(t, authcore.SessionUnknown, state.Status)
	assert.False(t, state.Resolved())
	assert.False(t, state.IsAuthenticated())
	assert.Nil(t, state.Identity)
}

func TestSessionStoreProviderNotificationIsTheOnlyWriter(t *testing.T) {
	store := authcore.NewSessionStore()
	identity := newUserIdentity("user-1")

	store.OnProviderStateChange(identity)

	state := store.Current()
	require.True(t, state.IsAuthenticated())
	assert.Equal(t, identity, state.Identity)

	store.OnProviderStateChange(nil)

	state = store.Current()
	assert.Equal(t, authcore.SessionUnauthenticated, state.Status)
	assert.Nil(t, state.Identity)
	assert.True(t, state.Resolved())
}

func TestSessionStoreSubscribeReplaysLatestState(t *testing.T) {
	store := authcore.NewSessionStore()
	store.OnProviderStateChange(newUserIdentity("user-1"))

	var got []authcore.SessionState
	unsubscribe := store.Subscribe(func(state authcore.SessionState) {
		got = append(got, state)
	})
	defer unsubscribe()

	require.Len(t, got, 1, "subscription must replay the latest state immediately")
	assert.True(t, got[0].IsAuthenticated())
}

func TestSessionStoreLateSubscriberGetsOnlyFinalState(t *testing.T) {
	store := authcore.NewSessionStore()
	store.OnProviderStateChange(newUserIdentity("a"))
	store.OnProviderStateChange(nil)
	final := newUserIdentity("b")
	store.OnProviderStateChange(final)

	var got []authcore.SessionState
	unsubscribe := store.Subscribe(func(state authcore.SessionState) {
		got = append(got, state)
	})
	defer unsubscribe()

	require.Len(t, got, 1, "late subscriber must see exactly one replay")
	assert.Equal(t, authcore.SessionAuthenticated, got[0].Status)
	assert.Equal(t, final, got[0].Identity)
}

func TestSessionStoreSubscribeDuringTransitionsNeverGoesBackwards(t *testing.T) {
	store := authcore.NewSessionStore()

	const transitions = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < transitions; i++ {
			store.OnProviderStateChange(newUserIdentity(seqID(i)))
		}
	}()

	var mu sync.Mutex
	sequences := make([][]int, 0, 16)
	for i := 0; i < 16; i++ {
		idx := len(sequences)
		sequences = append(sequences, nil)
		unsubscribe := store.Subscribe(func(state authcore.SessionState) {
			seq := -1
			if state.Identity != nil {
				seq = seqOf(state.Identity.ID)
			}
			mu.Lock()
			sequences[idx] = append(sequences[idx], seq)
			mu.Unlock()
		})
		defer unsubscribe()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, seen := range sequences {
		require.NotEmpty(t, seen)
		for i := 1; i < len(seen); i++ {
			require.GreaterOrEqual(t, seen[i], seen[i-1],
				"observer received an older state after a newer one: %v", seen)
		}
	}
}

func seqID(i int) string {
	return fmt.Sprintf("user-%06d", i)
}

func seqOf(id string) int {
	var n int
	fmt.Sscanf(id, "user-%06d", &n)
	return n
}

func TestSessionStoreSubscriberSeesEveryTransitionInOrder(t *testing.T) {
	store := authcore.NewSessionStore()

	var mu sync.Mutex
	var statuses []authcore.SessionStatus
	unsubscribe := store.Subscribe(func(state authcore.SessionState) {
		mu.Lock()
		statuses = append(statuses, state.Status)
		mu.Unlock()
	})
	defer unsubscribe()

	store.OnProviderStateChange(newUserIdentity("a"))
	store.OnProviderStateChange(nil)
	store.OnProviderStateChange(newUserIdentity("b"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []authcore.SessionStatus{
		authcore.SessionUnknown,
		authcore.SessionAuthenticated,
		authcore.SessionUnauthenticated,
		authcore.SessionAuthenticated,
	}, statuses)
}

func TestSessionStoreUnsubscribeStopsDelivery(t *testing.T) {
	store := authcore.NewSessionStore()

	calls := 0
	unsubscribe := store.Subscribe(func(authcore.SessionState) {
		calls++
	})
	require.Equal(t, 1, calls)

	unsubscribe()
	unsubscribe() // safe to call twice

	store.OnProviderStateChange(newUserIdentity("a"))
	assert.Equal(t, 1, calls)
}

func TestSessionStoreWaitResolved(t *testing.T) {
	store := authcore.NewSessionStore()

	done := make(chan authcore.SessionState, 1)
	go func() {
		state, err := store.WaitResolved(context.Background())
		if err == nil {
			done <- state
		}
	}()

	// Give the waiter a chance to block before the first notification.
	time.Sleep(10 * time.Millisecond)
	store.OnProviderStateChange(nil)

	select {
	case state := <-done:
		assert.Equal(t, authcore.SessionUnauthenticated, state.Status)
	case <-time.After(time.Second):
		t.Fatal("WaitResolved did not return after the first notification")
	}
}

func TestSessionStoreWaitResolvedHonorsContext(t *testing.T) {
	store := authcore.NewSessionStore()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	state, err := store.WaitResolved(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, state.Resolved())
}

func TestSessionStoreWaitResolvedReturnsImmediatelyWhenResolved(t *testing.T) {
	store := authcore.NewSessionStore()
	store.OnProviderStateChange(newUserIdentity("a"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	state, err := store.WaitResolved(ctx)
	require.NoError(t, err)
	assert.True(t, state.IsAuthenticated())
}

func TestSessionStoreBindWiresProviderNotifications(t *testing.T) {
	provider := new(MockIdentityProvider)
	store := authcore.NewSessionStore()

	unsubscribe := store.Bind(provider)
	defer unsubscribe()

	provider.EmitState(newUserIdentity("user-1"))
	assert.True(t, store.Current().IsAuthenticated())

	provider.EmitState(nil)
	assert.Equal(t, authcore.SessionUnauthenticated, store.Current().Status)
}
