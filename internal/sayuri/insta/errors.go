package insta

import (
	"errors"
	"fmt"
)

// ErrTwoFactorRequired is returned by Login when the account has two-factor
// authentication enabled. The caller should collect a code and call
// LoginWithSecondFactor with the same username and password.
var ErrTwoFactorRequired = errors.New("two-factor code required")

// ErrChallengeRequired is returned by Login when Instagram demands a
// checkpoint verification. The client retains the challenge context; the
// caller should collect the emailed/SMSed code and call ResolveChallenge.
var ErrChallengeRequired = errors.New("challenge verification required")

// ErrNotFound is returned by ResolveIDByUsername when the username does not
// resolve to an account.
var ErrNotFound = errors.New("user not found")

// ErrNotLoggedIn is returned by operations that require an authenticated
// session when none has been established.
var ErrNotLoggedIn = errors.New("not logged in")

// AuthError reports a failed login attempt (bad credentials, locked account,
// rejected code). It is terminal for the current flow: the caller must
// restart from the beginning, no partial credential reuse.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("instagram auth failed: %s", e.Reason)
}

// ProviderError reports a failed provider call outside the login flow
// (a single unfollow, a list fetch page). During a batch it is recorded and
// the run continues; for an immediate action it surfaces to the caller.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("instagram %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
