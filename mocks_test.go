package authcore_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	authcore "github.com/kesslerlabs/go-authcore"
)

// MockIdentityProvider implements authcore.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock

	mu      sync.Mutex
	stateFn func(identity *authcore.Identity)
}

func (m *MockIdentityProvider) CreateAccount(ctx context.Context, email, password string) (*authcore.Identity, error) {
	args := m.Called(ctx, email, password)
	var identity *authcore.Identity
	if v := args.Get(0); v != nil {
		identity = v.(*authcore.Identity)
	}
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) VerifyCredential(ctx context.Context, email, password string) (*authcore.Identity, error) {
	args := m.Called(ctx, email, password)
	var identity *authcore.Identity
	if v := args.Get(0); v != nil {
		identity = v.(*authcore.Identity)
	}
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) OpenFederatedConsent(ctx context.Context) (*authcore.Identity, error) {
	args := m.Called(ctx)
	var identity *authcore.Identity
	if v := args.Get(0); v != nil {
		identity = v.(*authcore.Identity)
	}
	return identity, args.Error(1)
}

// SubscribeStateChanges captures the callback so tests can drive state
// transitions through EmitState, the way the real provider would.
func (m *MockIdentityProvider) SubscribeStateChanges(fn func(identity *authcore.Identity)) (unsubscribe func()) {
	m.mu.Lock()
	m.stateFn = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.stateFn = nil
		m.mu.Unlock()
	}
}

// EmitState simulates the provider's asynchronous auth-state notification.
func (m *MockIdentityProvider) EmitState(identity *authcore.Identity) {
	m.mu.Lock()
	fn := m.stateFn
	m.mu.Unlock()
	if fn != nil {
		fn(identity)
	}
}

// MockProfileStore implements authcore.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) Upsert(ctx context.Context, id string, record *authcore.ProfileRecord, merge bool) error {
	args := m.Called(ctx, id, record, merge)
	return args.Error(0)
}

func (m *MockProfileStore) Get(ctx context.Context, id string) (*authcore.ProfileRecord, error) {
	args := m.Called(ctx, id)
	var record *authcore.ProfileRecord
	if v := args.Get(0); v != nil {
		record = v.(*authcore.ProfileRecord)
	}
	return record, args.Error(1)
}

// recordingSink collects activity events so tests can assert on the audit
// trail without a real sink.
type recordingSink struct {
	mu     sync.Mutex
	events []authcore.ActivityEvent
}

func (s *recordingSink) Record(ctx context.Context, event authcore.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []authcore.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authcore.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *recordingSink) Has(eventType authcore.ActivityEventType) bool {
	for _, t := range s.Types() {
		if t == eventType {
			return true
		}
	}
	return false
}

// recordingNavigator captures the redirects issued by Logout and the guard.
type recordingNavigator struct {
	mu     sync.Mutex
	path   string
	params map[string]string
	calls  int
}

func (n *recordingNavigator) Navigate(path string, params map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.params = params
	n.calls++
}

func (n *recordingNavigator) Last() (string, map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path, n.params
}

func (n *recordingNavigator) CallCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

var testEpoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newUserIdentity(id string) *authcore.Identity {
	return &authcore.Identity{
		ID:             id,
		Email:          id + "@example.com",
		DisplayName:    "Test User",
		PhotoURL:       "https://img.example.com/" + id + ".png",
		CreationTime:   testEpoch,
		LastSignInTime: testEpoch,
	}
}

func returningUserIdentity(id string) *authcore.Identity {
	identity := newUserIdentity(id)
	identity.LastSignInTime = testEpoch.Add(48 * time.Hour)
	return identity
}
