// Package guardware provides route admission middleware backed by the
// session store: unauthenticated requests are bounced to the sign-in page
// with the original destination preserved in the returnUrl query parameter.
package guardware

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/goliatone/go-router"

	authcore "github.com/kesslerlabs/go-authcore"
)

// SessionSource exposes the slice of the session store the middleware
// needs. *authcore.SessionStore satisfies it.
type SessionSource interface {
	Current() authcore.SessionState
	WaitResolved(ctx context.Context) (authcore.SessionState, error)
}

type Config struct {
	// Sessions is required.
	Sessions SessionSource

	// Filter skips the guard for matching requests, e.g. public assets.
	Filter func(router.Context) bool

	// SignInPath is where denied requests are redirected. Defaults to
	// the package-wide sign-in path.
	SignInPath string

	// ContextKey is the locals key the authenticated identity is stored
	// under. Defaults to "identity".
	ContextKey string

	// ResolveTimeout bounds how long a request waits for the initial
	// session state to resolve. Defaults to 5 seconds.
	ResolveTimeout time.Duration

	// Logger defaults to a no-op friendly stderr logger.
	Logger authcore.Logger
}

func GetDefaultConfig(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SignInPath == "" {
		cfg.SignInPath = authcore.DefaultSignInPath
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "identity"
	}

	if cfg.ResolveTimeout == 0 {
		cfg.ResolveTimeout = 5 * time.Second
	}

	return cfg
}

// New builds the admission middleware. Every request runs through an
// admission decision against the current session state; the navigator wired
// into the guard performs the actual HTTP redirect.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			var redirectErr error
			navigate := authcore.NavigatorFunc(func(path string, params map[string]string) {
				redirectErr = ctx.Redirect(redirectTarget(path, params), redirectStatus(ctx))
			})

			guard := authcore.NewAdmissionGuard(cfg.Sessions, navigate).
				WithSignInPath(cfg.SignInPath)
			if cfg.Logger != nil {
				guard = guard.WithLogger(cfg.Logger)
			}

			waitCtx, cancel := context.WithTimeout(ctx.Context(), cfg.ResolveTimeout)
			defer cancel()

			if guard.Decide(waitCtx, ctx.OriginalURL()) == authcore.Deny {
				return redirectErr
			}

			if identity := cfg.Sessions.Current().Identity; identity != nil {
				ctx.Locals(cfg.ContextKey, identity)
			}

			return ctx.Next()
		}
	}
}

// IdentityFromContext retrieves the identity stored by the middleware.
func IdentityFromContext(ctx router.Context, key ...string) (*authcore.Identity, bool) {
	k := "identity"
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}

	identity, ok := ctx.Locals(k).(*authcore.Identity)
	return identity, ok
}

func redirectTarget(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}

	return path + "?" + values.Encode()
}

func redirectStatus(ctx router.Context) int {
	if ctx.Method() == http.MethodGet {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
