package authcore

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the immutable snapshot of an identity-provider record.
// It is owned by the provider; the core never mutates it.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	DisplayName    string    `json:"display_name,omitempty"`
	PhotoURL       string    `json:"photo_url,omitempty"`
	CreationTime   time.Time `json:"creation_time"`
	LastSignInTime time.Time `json:"last_sign_in_time"`
}

// IsNewUser reports whether this sign-in is the identity's first. The
// provider stamps CreationTime and LastSignInTime with the same value
// on the very first sign-in.
func (i *Identity) IsNewUser() bool {
	return i.CreationTime.Equal(i.LastSignInTime)
}

// ProviderCodeError is the opaque {code, message} pair surfaced by the
// identity provider. The code space is provider-defined and open-ended;
// Classify turns these into the closed domain vocabulary.
type ProviderCodeError struct {
	Code    string
	Message string
}

func (e *ProviderCodeError) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// IdentityProvider is the external service that verifies credentials and
// issues identity records. Errors surface as *ProviderCodeError values.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	VerifyCredential(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error

	// OpenFederatedConsent starts the interactive consent flow and blocks
	// until the user completes or cancels it. Cancellation surfaces as a
	// *ProviderCodeError with the provider's cancellation code.
	OpenFederatedConsent(ctx context.Context) (*Identity, error)

	// SubscribeStateChanges registers the callback that receives every
	// auth-state transition. Delivery is serial: the provider never invokes
	// the callback concurrently with itself.
	SubscribeStateChanges(fn func(identity *Identity)) (unsubscribe func())
}

// ProfileStore is the external document store holding per-user metadata.
// Upsert with merge=false creates the document idempotently; merge=true
// updates only the fields set on record, leaving the rest untouched.
type ProfileStore interface {
	Upsert(ctx context.Context, id string, record *ProfileRecord, merge bool) error
	Get(ctx context.Context, id string) (*ProfileRecord, error)
}

// Navigator is the redirect sink used by Logout and the admission guard.
// Fire and forget; the core consumes no return value.
type Navigator interface {
	Navigate(path string, params map[string]string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(path string, params map[string]string)

func (f NavigatorFunc) Navigate(path string, params map[string]string) {
	if f != nil {
		f(path, params)
	}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHCORE "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHCORE "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHCORE "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHCORE "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
