package authcore

import (
	"context"
	"sort"
	"sync"
)

// SessionStatus discriminates the tagged SessionState value.
type SessionStatus string

const (
	// SessionUnknown is the initial state before the first provider
	// notification has arrived.
	SessionUnknown SessionStatus = "unknown"
	// SessionUnauthenticated means no identity is signed in.
	SessionUnauthenticated SessionStatus = "unauthenticated"
	// SessionAuthenticated means Identity is the signed-in identity.
	SessionAuthenticated SessionStatus = "authenticated"
)

// SessionState is the process-wide view of who is currently signed in.
// Identity is non-nil only when Status is SessionAuthenticated.
type SessionState struct {
	Status   SessionStatus
	Identity *Identity
}

// IsAuthenticated reports whether an identity is currently signed in.
func (s SessionState) IsAuthenticated() bool {
	return s.Status == SessionAuthenticated
}

// Resolved reports whether the first provider notification has arrived.
func (s SessionState) Resolved() bool {
	return s.Status != SessionUnknown
}

// SessionObserver receives every state transition after subscription,
// starting with an immediate replay of the latest known state.
type SessionObserver func(state SessionState)

// SessionStore holds the single authoritative session cell. It has exactly
// one writer, the identity provider's state-change callback, and any number
// of readers and subscribers. Mutating operations never write it directly;
// they rely on the provider's asynchronous confirmation.
type SessionStore struct {
	mu        sync.Mutex
	state     SessionState
	observers map[int]SessionObserver
	nextID    int
	resolved  chan struct{}
	logger    Logger

	// deliverMu serializes observer deliveries so a Subscribe replay can
	// never land after a newer transition already delivered to the same
	// observer.
	deliverMu sync.Mutex
}

// NewSessionStore creates a store in the SessionUnknown state. Attach it to
// a provider with Bind, or feed it manually via OnProviderStateChange.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		state:     SessionState{Status: SessionUnknown},
		observers: map[int]SessionObserver{},
		resolved:  make(chan struct{}),
		logger:    defLogger{},
	}
}

func (s *SessionStore) WithLogger(logger Logger) *SessionStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Bind subscribes the store to the provider's notification channel and
// returns the unsubscribe handle.
func (s *SessionStore) Bind(provider IdentityProvider) (unsubscribe func()) {
	return provider.SubscribeStateChanges(s.OnProviderStateChange)
}

// Current returns a snapshot of the session state.
func (s *SessionStore) Current() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitResolved blocks until the first provider notification has been applied
// or ctx is done. It returns the state as of resolution.
func (s *SessionStore) WaitResolved(ctx context.Context) (SessionState, error) {
	s.mu.Lock()
	if s.state.Resolved() {
		state := s.state
		s.mu.Unlock()
		return state, nil
	}
	done := s.resolved
	s.mu.Unlock()

	select {
	case <-done:
		return s.Current(), nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

// Subscribe registers an observer and immediately replays the latest known
// state to it. The returned function removes the subscription; it is safe to
// call more than once.
func (s *SessionStore) Subscribe(observer SessionObserver) (unsubscribe func()) {
	if observer == nil {
		return func() {}
	}

	s.deliverMu.Lock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = observer
	replay := s.state
	s.mu.Unlock()

	observer(replay)
	s.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// OnProviderStateChange applies a provider notification. A nil identity
// means signed out. The provider guarantees serial delivery, so this method
// is never invoked concurrently with itself; the lock only shields readers
// and subscriber bookkeeping.
func (s *SessionStore) OnProviderStateChange(identity *Identity) {
	next := SessionState{Status: SessionUnauthenticated}
	if identity != nil {
		next = SessionState{Status: SessionAuthenticated, Identity: identity}
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	first := !s.state.Resolved()
	s.state = next
	targets := make([]SessionObserver, 0, len(s.observers))
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		targets = append(targets, s.observers[id])
	}
	s.mu.Unlock()

	if first {
		close(s.resolved)
	}

	s.logger.Debug("session state changed", "status", next.Status)

	// Deliver outside the state lock so observers can call back into the
	// store; deliverMu still holds off concurrent Subscribe replays.
	for _, observer := range targets {
		observer(next)
	}
}
