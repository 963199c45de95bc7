// Package insta provides the Instagram account provider: the interface the
// rest of Sayuri programs against, the typed errors that drive the login
// state machine, and a concrete client for Instagram's private web API.
package insta

import "context"

// Profile is the public summary of the authenticated account, shown to the
// user after a successful login and before mass-action confirmations.
type Profile struct {
	ID             string
	Username       string
	FullName       string
	FollowerCount  int
	FollowingCount int
	MediaCount     int
}

// Target identifies one account acted upon by a batch job: a follower to
// remove or a followed account to unfollow. The list is fetched once, in
// full, before a batch starts and is immutable for the run.
type Target struct {
	ID       string
	Username string
}

// Provider is the account-automation surface Sayuri consumes. One Provider
// instance holds the authenticated context for exactly one user's account
// session; instances must never be shared across users.
//
// Login outcomes are distinguished by error identity: ErrTwoFactorRequired
// and ErrChallengeRequired are expected branches (the client retains the
// state needed for the follow-up call), *AuthError means the attempt is
// dead and the flow restarts from scratch.
type Provider interface {
	// Login authenticates with username and password.
	Login(ctx context.Context, username, password string) (*Profile, error)

	// LoginWithSecondFactor retries the login with a TOTP/SMS code after
	// Login returned ErrTwoFactorRequired.
	LoginWithSecondFactor(ctx context.Context, username, password, code string) (*Profile, error)

	// ResolveChallenge submits a verification code against the challenge
	// context retained from the Login call that returned
	// ErrChallengeRequired, then re-establishes the session.
	ResolveChallenge(ctx context.Context, code string) (*Profile, error)

	// AccountInfo returns the authenticated account's current profile.
	AccountInfo(ctx context.Context) (*Profile, error)

	// ListFollowers returns the full follower list in provider order.
	ListFollowers(ctx context.Context) ([]Target, error)

	// ListFollowing returns the full following list in provider order.
	ListFollowing(ctx context.Context) ([]Target, error)

	// Unfollow removes the authenticated account's follow edge to targetID.
	Unfollow(ctx context.Context, targetID string) error

	// RemoveFollower removes targetID from the account's followers.
	RemoveFollower(ctx context.Context, targetID string) error

	// ResolveIDByUsername maps a username to its account ID.
	// Returns ErrNotFound when the username does not resolve.
	ResolveIDByUsername(ctx context.Context, name string) (string, error)

	// ExportSettings serializes the resumable login context (cookies,
	// identifiers) so a session can survive without re-entering credentials.
	ExportSettings() ([]byte, error)

	// RestoreSettings loads a previously exported login context.
	RestoreSettings(data []byte) error
}

// Factory creates a fresh, unauthenticated Provider. The session store uses
// it to lazily build one account session per user.
type Factory func() Provider
