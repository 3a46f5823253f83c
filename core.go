package authcore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultConsentTimeout bounds the federated consent flow.
const DefaultConsentTimeout = 30 * time.Second

// DefaultSignInPath is where Logout and denied navigations land.
const DefaultSignInPath = "/auth/login"

// Core orchestrates registration, sign-in, federated sign-in, and sign-out
// against the identity provider, classifying provider failures and keeping
// the profile store in sync as a side effect. Session state is never written
// here; the provider's notification channel feeds the SessionStore.
type Core struct {
	provider       IdentityProvider
	profiles       *ProfileSyncHandler
	sessions       *SessionStore
	navigator      Navigator
	logger         Logger
	activitySink   ActivitySink
	consentTimeout time.Duration
	signInPath     string
	now            func() time.Time
}

// NewCore returns a new Core bound to the given provider and profile store.
// The returned SessionStore is already subscribed to the provider's
// notification channel.
func NewCore(provider IdentityProvider, store ProfileStore) *Core {
	sessions := NewSessionStore()
	sessions.Bind(provider)

	return &Core{
		provider:       provider,
		profiles:       NewProfileSyncHandler(store),
		sessions:       sessions,
		navigator:      NavigatorFunc(nil),
		logger:         defLogger{},
		activitySink:   noopActivitySink{},
		consentTimeout: DefaultConsentTimeout,
		signInPath:     DefaultSignInPath,
		now:            time.Now,
	}
}

func (c *Core) WithLogger(logger Logger) *Core {
	if logger != nil {
		c.logger = logger
		c.sessions.WithLogger(logger)
		c.profiles.WithLogger(logger)
	}
	return c
}

// WithNavigator sets the redirect sink used by Logout.
func (c *Core) WithNavigator(nav Navigator) *Core {
	if nav != nil {
		c.navigator = nav
	}
	return c
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (c *Core) WithActivitySink(sink ActivitySink) *Core {
	c.activitySink = normalizeActivitySink(sink)
	return c
}

// WithConsentTimeout overrides the federated sign-in deadline.
func (c *Core) WithConsentTimeout(d time.Duration) *Core {
	if d > 0 {
		c.consentTimeout = d
	}
	return c
}

// WithSignInPath overrides the unauthenticated entry point.
func (c *Core) WithSignInPath(path string) *Core {
	if path != "" {
		c.signInPath = path
	}
	return c
}

// WithClock injects a custom clock (useful for tests).
func (c *Core) WithClock(clock func() time.Time) *Core {
	if clock != nil {
		c.now = clock
		c.profiles.WithClock(clock)
	}
	return c
}

// Sessions exposes the session store so callers and guards can observe
// the authoritative auth state.
func (c *Core) Sessions() *SessionStore {
	return c.sessions
}

// Register creates a credential with the identity provider and, on success,
// creates the profile document before returning. The profile write failure
// is logged, never surfaced: the account exists in the provider of record
// regardless, and retrying the profile write is safer than rolling back an
// authentication account.
func (c *Core) Register(ctx context.Context, payload RegisterPayload) (*Identity, error) {
	if err := payload.Validate(); err != nil {
		return nil, ClassifyValidation(err)
	}

	identity, err := c.provider.CreateAccount(ctx, payload.Email, payload.Password)
	if err != nil {
		classified := ClassifyError(err)
		c.logger.Error("Register create account error", "error", classified)
		c.emitAuthEvent(ctx, ActivityEventRegisterFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": payload.Email,
			"kind":  string(KindOf(classified)),
		})
		return nil, classified
	}

	if err := c.profiles.Execute(ctx, ProfileSyncMessage{
		Identity:    *identity,
		DisplayName: payload.DisplayName,
	}); err != nil {
		c.logger.Warn("Register profile creation failed, account kept", "error", err, "id", identity.ID)
		c.emitAuthEvent(ctx, ActivityEventProfileSyncFailed, c.actorFromIdentity(identity), identity.ID, map[string]any{
			"stage": "register",
			"error": err.Error(),
		})
	}

	c.emitAuthEvent(ctx, ActivityEventRegisterSuccess, c.actorFromIdentity(identity), identity.ID, map[string]any{
		"email": payload.Email,
	})

	return identity, nil
}

// Login verifies an email/password credential with the provider. It never
// touches the profile store. Session state flips only once the provider's
// own notification arrives.
func (c *Core) Login(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := c.provider.VerifyCredential(ctx, email, password)
	if err != nil {
		classified := ClassifyError(err)
		c.logger.Error("Login verify credential error", "error", classified)
		c.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"kind":  string(KindOf(classified)),
		})
		return nil, classified
	}

	c.emitAuthEvent(ctx, ActivityEventLoginSuccess, c.actorFromIdentity(identity), identity.ID, map[string]any{
		"email": email,
	})

	return identity, nil
}

// Logout signs out with the provider and redirects to the sign-in entry
// point. It cannot fail in a way the caller must handle: the session store
// moves to unauthenticated via the provider's notification regardless.
func (c *Core) Logout(ctx context.Context) {
	if err := c.provider.SignOut(ctx); err != nil {
		c.logger.Warn("Logout provider sign out error", "error", err)
	}

	c.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{Type: "user"}, "", nil)

	c.navigator.Navigate(c.signInPath, nil)
}

func (c *Core) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(c.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = c.now()
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	if err := sink.Record(ctx, event); err != nil {
		c.logger.Warn("activity sink record error: %v", err)
	}
}

func (c *Core) actorFromIdentity(identity *Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID,
		Type: "user",
	}
}
