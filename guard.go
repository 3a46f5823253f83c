package authcore

import (
	"context"
)

// Decision is the admission outcome for one navigation attempt.
type Decision string

const (
	Admit Decision = "admit"
	Deny  Decision = "deny"
)

// ReturnURLParam carries the originally attempted path on denial so a
// successful sign-in can resume navigation to it.
const ReturnURLParam = "returnUrl"

// SessionReader is the slice of the session store an admission decision
// needs. *SessionStore satisfies it.
type SessionReader interface {
	WaitResolved(ctx context.Context) (SessionState, error)
}

// AdmissionGuard gates access to protected areas based on session state. It
// never returns an error: denial is always expressed as the Deny decision
// plus a redirect to the sign-in entry point.
type AdmissionGuard struct {
	sessions   SessionReader
	navigator  Navigator
	signInPath string
	logger     Logger
}

// NewAdmissionGuard builds a guard over the given session store. The
// navigator receives the redirect side effect on denial.
func NewAdmissionGuard(sessions SessionReader, navigator Navigator) *AdmissionGuard {
	return &AdmissionGuard{
		sessions:   sessions,
		navigator:  navigator,
		signInPath: DefaultSignInPath,
		logger:     defLogger{},
	}
}

func (g *AdmissionGuard) WithSignInPath(path string) *AdmissionGuard {
	if path != "" {
		g.signInPath = path
	}
	return g
}

func (g *AdmissionGuard) WithLogger(logger Logger) *AdmissionGuard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// Decide reads the session state exactly once for this navigation attempt.
// If the very first provider notification has not arrived yet it waits for
// it (bounded by ctx); an unresolved state at ctx expiry denies. Denial
// redirects to the sign-in path carrying returnUrl=targetPath.
func (g *AdmissionGuard) Decide(ctx context.Context, targetPath string) Decision {
	state, err := g.sessions.WaitResolved(ctx)
	if err != nil {
		g.logger.Warn("Admission decision before first auth notification", "path", targetPath, "error", err)
	}

	if state.IsAuthenticated() {
		return Admit
	}

	g.logger.Info("Navigation denied, redirecting to sign in", "path", targetPath)
	if g.navigator != nil {
		g.navigator.Navigate(g.signInPath, map[string]string{
			ReturnURLParam: targetPath,
		})
	}

	return Deny
}
