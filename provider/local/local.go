// Package local is an in-process IdentityProvider for tests and embedded
// deployments. Credentials are bcrypt-hashed in memory; state-change
// notifications follow the same serial-delivery contract a hosted provider
// gives.
package local

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	authcore "github.com/kesslerlabs/go-authcore"
)

// Provider error codes, mirroring the hosted provider's code space so the
// core's classifier recognizes them.
const (
	CodeUserNotFound     = "auth/user-not-found"
	CodeWrongPassword    = "auth/wrong-password"
	CodeTooManyRequests  = "auth/too-many-requests"
	CodeEmailInUse       = "auth/email-already-in-use"
	CodeWeakPassword     = "auth/weak-password"
	CodeInvalidEmail     = "auth/invalid-email"
	CodeCredentialClash  = "auth/account-exists-with-different-credential"
	CodeConsentUnwired   = "auth/operation-not-allowed"
	CodePopupClosed      = "auth/popup-closed-by-user"
)

// MaxLoginAttempts is the number of failed attempts before the provider
// rate-limits a credential.
var MaxLoginAttempts = 5

// CoolDownPeriod is how long the rate limit holds after the last failure.
var CoolDownPeriod = 24 * time.Hour

const minPasswordLength = 6

// ConsentFlow models the interactive federated consent surface. Open blocks
// until the user completes or cancels; cancellation surfaces as a
// *authcore.ProviderCodeError with CodePopupClosed.
type ConsentFlow interface {
	Open(ctx context.Context) (*authcore.Identity, error)
}

// ConsentFlowFunc adapts a function to the ConsentFlow interface.
type ConsentFlowFunc func(ctx context.Context) (*authcore.Identity, error)

func (f ConsentFlowFunc) Open(ctx context.Context) (*authcore.Identity, error) {
	return f(ctx)
}

type account struct {
	identity     authcore.Identity
	passwordHash string
	federated    bool

	attempts  int
	attemptAt time.Time
}

// Provider is the in-process identity provider.
type Provider struct {
	mu          sync.Mutex
	accounts    map[string]*account
	current     *authcore.Identity
	subscribers map[int]func(*authcore.Identity)
	nextSub     int

	// notifyMu serializes state-change delivery so the callback contract
	// (never invoked concurrently with itself) holds.
	notifyMu sync.Mutex

	consent    ConsentFlow
	now        func() time.Time
	bcryptCost int
}

var _ authcore.IdentityProvider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithConsentFlow wires the interactive federated consent surface.
func WithConsentFlow(flow ConsentFlow) Option {
	return func(p *Provider) {
		p.consent = flow
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithBcryptCost lowers the hashing cost for tests.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			p.bcryptCost = cost
		}
	}
}

// New creates an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		accounts:    map[string]*account{},
		subscribers: map[int]func(*authcore.Identity){},
		now:         time.Now,
		bcryptCost:  14,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// CreateAccount implements authcore.IdentityProvider. A freshly created
// account is signed in, like a hosted provider does after registration.
func (p *Provider) CreateAccount(ctx context.Context, email, password string) (*authcore.Identity, error) {
	key, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if len(password) < minPasswordLength {
		return nil, &authcore.ProviderCodeError{Code: CodeWeakPassword, Message: "password should be at least 6 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, &authcore.ProviderCodeError{Code: "auth/internal-error", Message: err.Error()}
	}

	p.mu.Lock()
	if _, exists := p.accounts[key]; exists {
		p.mu.Unlock()
		return nil, &authcore.ProviderCodeError{Code: CodeEmailInUse, Message: "the email address is already in use by another account"}
	}

	now := p.now()
	acc := &account{
		identity: authcore.Identity{
			ID:             stableID(key),
			Email:          key,
			CreationTime:   now,
			LastSignInTime: now,
		},
		passwordHash: string(hash),
	}
	p.accounts[key] = acc
	snapshot := acc.identity
	p.current = &snapshot
	p.mu.Unlock()

	p.notify(&snapshot)
	return &snapshot, nil
}

// VerifyCredential implements authcore.IdentityProvider.
func (p *Provider) VerifyCredential(ctx context.Context, email, password string) (*authcore.Identity, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	acc, ok := p.accounts[key]
	if !ok || acc.federated && acc.passwordHash == "" {
		p.mu.Unlock()
		return nil, &authcore.ProviderCodeError{Code: CodeUserNotFound, Message: "no account matches this email"}
	}

	now := p.now()
	if acc.attempts >= MaxLoginAttempts && now.Sub(acc.attemptAt) < CoolDownPeriod {
		p.mu.Unlock()
		return nil, &authcore.ProviderCodeError{Code: CodeTooManyRequests, Message: "access temporarily disabled due to many failed attempts"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.passwordHash), []byte(password)); err != nil {
		acc.attempts++
		acc.attemptAt = now
		p.mu.Unlock()
		return nil, &authcore.ProviderCodeError{Code: CodeWrongPassword, Message: "the password is invalid"}
	}

	acc.attempts = 0
	acc.identity.LastSignInTime = now
	snapshot := acc.identity
	p.current = &snapshot
	p.mu.Unlock()

	p.notify(&snapshot)
	return &snapshot, nil
}

// OpenFederatedConsent implements authcore.IdentityProvider, delegating the
// interactive part to the configured ConsentFlow and folding the resulting
// identity into the account set.
func (p *Provider) OpenFederatedConsent(ctx context.Context) (*authcore.Identity, error) {
	if p.consent == nil {
		return nil, &authcore.ProviderCodeError{Code: CodeConsentUnwired, Message: "no federated consent flow configured"}
	}

	remote, err := p.consent.Open(ctx)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(strings.TrimSpace(remote.Email))

	p.mu.Lock()
	acc, exists := p.accounts[key]
	if exists && !acc.federated {
		p.mu.Unlock()
		return nil, &authcore.ProviderCodeError{
			Code:    CodeCredentialClash,
			Message: "an account already exists with the same email address but different sign-in credentials",
		}
	}

	now := p.now()
	if !exists {
		acc = &account{
			identity: authcore.Identity{
				ID:             remote.ID,
				Email:          key,
				DisplayName:    remote.DisplayName,
				PhotoURL:       remote.PhotoURL,
				CreationTime:   now,
				LastSignInTime: now,
			},
			federated: true,
		}
		if acc.identity.ID == "" {
			acc.identity.ID = stableID(key)
		}
		p.accounts[key] = acc
	} else {
		acc.identity.DisplayName = remote.DisplayName
		acc.identity.PhotoURL = remote.PhotoURL
		acc.identity.LastSignInTime = now
	}

	snapshot := acc.identity
	p.current = &snapshot
	p.mu.Unlock()

	p.notify(&snapshot)
	return &snapshot, nil
}

// SignOut implements authcore.IdentityProvider.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	p.notify(nil)
	return nil
}

// SubscribeStateChanges implements authcore.IdentityProvider. The callback
// immediately receives the current state, then every later transition, each
// delivered serially.
func (p *Provider) SubscribeStateChanges(fn func(identity *authcore.Identity)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = fn
	current := p.current
	p.mu.Unlock()

	p.notifyMu.Lock()
	fn(current)
	p.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) notify(identity *authcore.Identity) {
	p.mu.Lock()
	targets := make([]func(*authcore.Identity), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		targets = append(targets, fn)
	}
	p.mu.Unlock()

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	for _, fn := range targets {
		fn(identity)
	}
}

func normalizeEmail(email string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(key); err != nil {
		return "", &authcore.ProviderCodeError{Code: CodeInvalidEmail, Message: "the email address is badly formatted"}
	}
	return key, nil
}

// stableID derives a deterministic account id from the email so repeated
// registrations in tests and fixtures land on the same id.
func stableID(email string) string {
	if id, err := hashid.NewUUID(email); err == nil {
		return id.String()
	}
	return uuid.New().String()
}
