package authcore

import (
	"context"
	"time"
)

// FlowState tracks the federated consent flow. AwaitingConsent is the only
// suspending state; every terminal state maps to a fixed outcome or feeds
// the classifier.
type FlowState string

const (
	FlowIdle            FlowState = "idle"
	FlowAwaitingConsent FlowState = "awaiting_consent"
	FlowSucceeded       FlowState = "succeeded"
	FlowCancelled       FlowState = "cancelled"
	FlowTimedOut        FlowState = "timed_out"
	FlowFailed          FlowState = "failed"
)

type consentOutcome struct {
	identity *Identity
	err      error
}

// SignInWithProvider runs the interactive federated consent flow, racing its
// completion against the configured deadline. Whichever settles first wins;
// the loser's eventual completion is discarded, so a late success never
// triggers a stale profile write.
//
// On success the profile write runs detached: the identity is returned
// without waiting, and a write failure is logged rather than surfaced.
func (c *Core) SignInWithProvider(ctx context.Context) (*Identity, error) {
	state := FlowAwaitingConsent

	flowCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the consent goroutine never blocks after the race is lost.
	outcome := make(chan consentOutcome, 1)
	go func() {
		identity, err := c.provider.OpenFederatedConsent(flowCtx)
		outcome <- consentOutcome{identity: identity, err: err}
	}()

	timer := time.NewTimer(c.consentTimeout)
	defer timer.Stop()

	select {
	case result := <-outcome:
		if result.err != nil {
			classified := ClassifyError(result.err)
			if KindOf(classified) == KindConsentCancelled {
				state = FlowCancelled
				c.logger.Info("Federated sign in cancelled by user")
				c.emitAuthEvent(ctx, ActivityEventFederatedCancel, ActorRef{Type: "unknown"}, "", nil)
			} else {
				state = FlowFailed
				c.logger.Error("Federated sign in error", "error", classified, "state", state)
				c.emitAuthEvent(ctx, ActivityEventFederatedFailure, ActorRef{Type: "unknown"}, "", map[string]any{
					"kind": string(KindOf(classified)),
				})
			}
			return nil, classified
		}

		state = FlowSucceeded
		c.finishFederated(ctx, result.identity)
		return result.identity, nil

	case <-timer.C:
		state = FlowTimedOut
		c.logger.Warn("Federated sign in timed out", "timeout", c.consentTimeout, "state", state)
		c.emitAuthEvent(ctx, ActivityEventFederatedTimeout, ActorRef{Type: "unknown"}, "", map[string]any{
			"timeout": c.consentTimeout.String(),
		})
		timedOut := ErrSignInTimedOut.Clone()
		if timedOut == nil {
			timedOut = ErrSignInTimedOut
		}
		return nil, timedOut

	case <-ctx.Done():
		return nil, ClassifyError(ctx.Err())
	}
}

// finishFederated records the success event and kicks off the detached
// profile write. New-vs-returning is decided by the provider timestamps:
// equal creation and last-sign-in times mean a first-time user and a full
// profile creation; otherwise only LastLoginAt/PhotoURL are merged in.
func (c *Core) finishFederated(ctx context.Context, identity *Identity) {
	c.emitAuthEvent(ctx, ActivityEventFederatedSuccess, c.actorFromIdentity(identity), identity.ID, map[string]any{
		"is_new_user": identity.IsNewUser(),
	})

	msg := ProfileSyncMessage{
		Identity: *identity,
		Merge:    !identity.IsNewUser(),
	}

	// Detached on purpose: the caller's sign-in must not fail or stall on a
	// secondary-store hiccup. Detach from the request context as well so a
	// returning caller does not cancel the write mid-flight.
	go func() {
		syncCtx, cancel := context.WithTimeout(context.Background(), c.consentTimeout)
		defer cancel()

		if err := c.profiles.Execute(syncCtx, msg); err != nil {
			c.logger.Warn("Background federated profile sync failed", "error", err, "id", msg.Identity.ID)
			c.emitAuthEvent(syncCtx, ActivityEventProfileSyncFailed, c.actorFromIdentity(identity), identity.ID, map[string]any{
				"stage": "federated",
				"error": err.Error(),
			})
		}
	}()
}
