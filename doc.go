// Package authcore maintains a single authoritative in-process view of who
// is currently signed in, and gates access to protected areas based on it.
//
// Session truth:
//   - SessionStore holds one mutable cell observed by any number of
//     subscribers. It is written exclusively by the identity provider's
//     state-change notification; the mutating operations (Register, Login,
//     SignInWithProvider, Logout) never flip it themselves, so there is a
//     single source of truth and no optimistic-update race.
//
// Operations:
//   - Core orchestrates registration, password sign-in, federated sign-in,
//     and sign-out against an external IdentityProvider, triggering
//     idempotent profile persistence as a side effect. The federated flow
//     races the interactive consent against a fixed deadline; the losing
//     side is discarded.
//
// Errors:
//   - Every provider failure is classified into a closed vocabulary before
//     it reaches a caller. Classify/KindOf give presentation code a stable
//     text code per kind; raw provider messages survive in error metadata.
//
// Admission:
//   - AdmissionGuard consumes SessionStore to admit or deny a navigation
//     attempt, redirecting denied attempts to the sign-in entry point with
//     the original path as returnUrl.
package authcore
