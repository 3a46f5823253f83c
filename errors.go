package authcore

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Kind is the closed set of failure outcomes surfaced by the core. Every
// provider failure is mapped to exactly one Kind before it reaches a caller.
type Kind string

const (
	KindAccountNotRegistered Kind = "account_not_registered"
	KindWrongCredentials     Kind = "wrong_credentials"
	KindTooManyAttempts      Kind = "too_many_attempts"
	KindConsentCancelled     Kind = "consent_cancelled"
	KindSignInTimedOut       Kind = "sign_in_timed_out"
	KindAccountCollision     Kind = "account_collision"
	KindEmailAlreadyInUse    Kind = "email_already_in_use"
	KindWeakPassword         Kind = "weak_password"
	KindInvalidEmail         Kind = "invalid_email"
	KindInvalidPayload       Kind = "invalid_payload"
	KindUnknown              Kind = "unknown"
)

// ErrAccountNotRegistered is returned when a login targets an unknown email.
var ErrAccountNotRegistered = goerrors.New("account is not registered", goerrors.CategoryNotFound).
	WithTextCode(string(KindAccountNotRegistered)).
	WithCode(goerrors.CodeNotFound)

// ErrWrongCredentials is returned for a bad password or mismatched credential.
var ErrWrongCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(string(KindWrongCredentials)).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyAttempts is returned when the provider rate-limits repeated attempts.
var ErrTooManyAttempts = goerrors.New("too many attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(string(KindTooManyAttempts)).
	WithCode(goerrors.CodeBadRequest)

// ErrConsentCancelled is returned when the user closes the federated consent
// flow. Benign: callers should not treat it as an alarm.
var ErrConsentCancelled = goerrors.New("sign in was cancelled", goerrors.CategoryOperation).
	WithTextCode(string(KindConsentCancelled)).
	WithCode(goerrors.CodeBadRequest)

// ErrSignInTimedOut is returned when the federated flow exceeds its deadline.
var ErrSignInTimedOut = goerrors.New("sign in took too long, check your connection and try again", goerrors.CategoryOperation).
	WithTextCode(string(KindSignInTimedOut)).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountCollision is returned when a federated identity's email is already
// bound to a different credential type.
var ErrAccountCollision = goerrors.New("an account already exists with the same email but a different sign-in method", goerrors.CategoryConflict).
	WithTextCode(string(KindAccountCollision)).
	WithCode(goerrors.CodeConflict)

// ErrEmailAlreadyInUse is returned when registering an existing email.
var ErrEmailAlreadyInUse = goerrors.New("email is already in use", goerrors.CategoryConflict).
	WithTextCode(string(KindEmailAlreadyInUse)).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is returned when a password fails the provider policy.
var ErrWeakPassword = goerrors.New("password does not meet the minimum requirements", goerrors.CategoryValidation).
	WithTextCode(string(KindWeakPassword)).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidEmail is returned for a malformed email at registration.
var ErrInvalidEmail = goerrors.New("email address is not valid", goerrors.CategoryValidation).
	WithTextCode(string(KindInvalidEmail)).
	WithCode(goerrors.CodeBadRequest)

// ErrUnknown covers every unrecognized provider code. The raw provider
// message is preserved in the error metadata.
var ErrUnknown = goerrors.New("an unexpected authentication error occurred", goerrors.CategoryInternal).
	WithTextCode(string(KindUnknown)).
	WithCode(goerrors.CodeInternal)

// providerCodeTable maps the provider's known code space to domain kinds.
var providerCodeTable = map[string]*goerrors.Error{
	"auth/user-not-found":                           ErrAccountNotRegistered,
	"auth/account-not-registered":                   ErrAccountNotRegistered,
	"auth/wrong-password":                           ErrWrongCredentials,
	"auth/invalid-credential":                       ErrWrongCredentials,
	"auth/wrong-credentials":                        ErrWrongCredentials,
	"auth/too-many-requests":                        ErrTooManyAttempts,
	"auth/popup-closed-by-user":                     ErrConsentCancelled,
	"auth/cancelled-popup-request":                  ErrConsentCancelled,
	"auth/account-exists-with-different-credential": ErrAccountCollision,
	"auth/email-already-in-use":                     ErrEmailAlreadyInUse,
	"auth/weak-password":                            ErrWeakPassword,
	"auth/invalid-email":                            ErrInvalidEmail,
}

// Classify maps an opaque provider code to its domain error. It is total:
// every input yields exactly one classified error, unrecognized codes map to
// ErrUnknown with the original message carried in metadata.
func Classify(code, message string) *goerrors.Error {
	base, ok := providerCodeTable[code]
	if !ok {
		base = ErrUnknown
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}

	meta := map[string]any{"provider_code": code}
	if message != "" {
		meta["provider_message"] = message
	}

	return clone.WithMetadata(meta)
}

// ClassifyValidation maps payload validation failures to their domain
// errors so callers see the same closed Kind set regardless of whether the
// rejection came from local validation or the provider. Email and password
// failures map to their dedicated kinds, any other field failure becomes
// KindInvalidPayload with the per-field messages preserved.
func ClassifyValidation(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var fields validation.Errors
	if !goerrors.As(err, &fields) {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr != nil {
			return richErr
		}
		clone := ErrUnknown.Clone()
		if clone == nil {
			clone = ErrUnknown
		}
		clone.Source = err
		return clone
	}

	classified := func(base *goerrors.Error, field string) *goerrors.Error {
		clone := base.Clone()
		if clone == nil {
			clone = base
		}
		clone.Source = err
		return clone.WithMetadata(map[string]any{
			"field":  field,
			"detail": fields[field].Error(),
		})
	}

	if _, ok := fields["email"]; ok {
		return classified(ErrInvalidEmail, "email")
	}
	if _, ok := fields["password"]; ok {
		return classified(ErrWeakPassword, "password")
	}

	return goerrors.FromOzzoValidation(fields, "payload failed validation").
		WithTextCode(string(KindInvalidPayload)).
		WithCode(goerrors.CodeBadRequest)
}

// ClassifyError normalizes any error coming back from the identity provider.
// *ProviderCodeError values go through the code table; already-classified
// errors pass through untouched; anything else becomes ErrUnknown.
func ClassifyError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var pce *ProviderCodeError
	if goerrors.As(err, &pce) && pce != nil {
		classified := Classify(pce.Code, pce.Message)
		classified.Source = err
		return classified
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil {
		return richErr
	}

	clone := ErrUnknown.Clone()
	if clone == nil {
		clone = ErrUnknown
	}
	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider_message": err.Error(),
	})
}

// KindOf extracts the domain Kind from a classified error. Unclassified
// errors report KindUnknown; nil reports the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr != nil && richErr.TextCode != "" {
		return Kind(richErr.TextCode)
	}

	return KindUnknown
}

// RawProviderMessage recovers the provider's original message from a
// classified error, when one was preserved.
func RawProviderMessage(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ""
	}
	if msg, ok := richErr.Metadata["provider_message"].(string); ok {
		return msg
	}
	return ""
}
