package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bdobrica/Sayuri/common/redact"
	"github.com/bdobrica/Sayuri/common/trace"
	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
)

// ErrEmptyInput is returned when a submitted username or code is blank.
var ErrEmptyInput = errors.New("input must not be empty")

// ErrWrongState is returned when a submit call does not match the session's
// current state (e.g. a password arrives while no login is in progress).
var ErrWrongState = errors.New("unexpected input for current login state")

// JobStopper cancels a user's running batch job, if any. Implemented by the
// job registry; logout uses it so no worker outlives its session.
type JobStopper interface {
	RequestStop(userID string) bool
}

// Machine drives a session from unauthenticated to authenticated through
// credential entry and the optional second-factor/challenge branches.
//
// Provider errors are never retried here: every failure is terminal for the
// attempt, clears the session's credentials, and forces re-entry from the
// beginning.
type Machine struct {
	sessions *Store
	factory  insta.Factory
	jobs     JobStopper
}

// NewMachine returns a Machine creating account sessions via factory.
// jobs may be nil when no batch subsystem is wired (tests).
func NewMachine(sessions *Store, factory insta.Factory, jobs JobStopper) *Machine {
	return &Machine{sessions: sessions, factory: factory, jobs: jobs}
}

// StartLogin resets the session and begins a fresh login flow. Any running
// batch job is cancelled first — the account context it runs on is about to
// be replaced.
func (m *Machine) StartLogin(sess *Session) {
	if m.jobs != nil {
		m.jobs.RequestStop(sess.UserID)
	}
	sess.State = StateAwaitingUsername
	sess.Username = ""
	sess.password = ""
	sess.Profile = nil
	sess.Settings = nil
	sess.client = nil
	sess.TraceID = trace.GenerateID()
	slog.Info("login flow started", "user", sess.UserID, "trace", sess.TraceID)
}

// SubmitUsername stores the username verbatim (no validation beyond
// non-empty) and advances to AwaitingPassword.
func (m *Machine) SubmitUsername(sess *Session, username string) error {
	if sess.State != StateAwaitingUsername {
		return ErrWrongState
	}
	if username == "" {
		return ErrEmptyInput
	}
	sess.Username = username
	sess.State = StateAwaitingPassword
	return nil
}

// SubmitPassword invokes the provider login. Three live outcomes:
// authenticated (password cleared, profile returned), ErrTwoFactorRequired
// or ErrChallengeRequired (password retained for the follow-up call). Any
// other error fails the attempt and clears the session.
func (m *Machine) SubmitPassword(ctx context.Context, sess *Session, password string) (*insta.Profile, error) {
	if sess.State != StateAwaitingPassword {
		return nil, ErrWrongState
	}
	if password == "" {
		return nil, ErrEmptyInput
	}

	sess.password = password
	client := m.accountSession(sess)

	profile, err := client.Login(ctx, sess.Username, password)
	switch {
	case err == nil:
		m.completeLogin(sess, profile)
		return profile, nil
	case errors.Is(err, insta.ErrTwoFactorRequired):
		sess.State = StateAwaitingSecondFactor
		return nil, err
	case errors.Is(err, insta.ErrChallengeRequired):
		sess.State = StateAwaitingChallenge
		return nil, err
	default:
		m.failLogin(sess, "login", err)
		return nil, err
	}
}

// SubmitSecondFactorCode retries the login with the stored credentials and
// the submitted code. Success authenticates; any failure is terminal.
func (m *Machine) SubmitSecondFactorCode(ctx context.Context, sess *Session, code string) (*insta.Profile, error) {
	if sess.State != StateAwaitingSecondFactor {
		return nil, ErrWrongState
	}
	if code == "" {
		return nil, ErrEmptyInput
	}

	profile, err := sess.client.LoginWithSecondFactor(ctx, sess.Username, sess.password, code)
	if err != nil {
		m.failLogin(sess, "two-factor", err)
		return nil, err
	}
	m.completeLogin(sess, profile)
	return profile, nil
}

// SubmitChallengeCode resolves the provider challenge retained from the
// failed login and re-establishes the session. Success authenticates; any
// failure is terminal.
func (m *Machine) SubmitChallengeCode(ctx context.Context, sess *Session, code string) (*insta.Profile, error) {
	if sess.State != StateAwaitingChallenge {
		return nil, ErrWrongState
	}
	if code == "" {
		return nil, ErrEmptyInput
	}

	profile, err := sess.client.ResolveChallenge(ctx, code)
	if err != nil {
		m.failLogin(sess, "challenge", err)
		return nil, err
	}
	m.completeLogin(sess, profile)
	return profile, nil
}

// Logout is valid from any state: cancels the user's running batch job,
// discards the account session, and removes the session entirely.
func (m *Machine) Logout(sess *Session) {
	if m.jobs != nil {
		if m.jobs.RequestStop(sess.UserID) {
			slog.Info("logout: requested stop of running batch job", "user", sess.UserID)
		}
	}
	sess.password = ""
	sess.client = nil
	m.sessions.Delete(sess.UserID)
	slog.Info("logged out", "user", sess.UserID, "trace", sess.TraceID)
}

// accountSession returns the session's provider handle, creating it on
// first use. At most one per user for the session's lifetime.
func (m *Machine) accountSession(sess *Session) insta.Provider {
	if sess.client == nil {
		sess.client = m.factory()
	}
	return sess.client
}

// completeLogin is the single transition into Authenticated. The password is
// cleared here, on this transition, and the resumable login context is
// captured for the session's lifetime.
func (m *Machine) completeLogin(sess *Session, profile *insta.Profile) {
	sess.password = ""
	sess.State = StateAuthenticated
	sess.Profile = profile

	if settings, err := sess.client.ExportSettings(); err == nil {
		sess.Settings = settings
	} else {
		slog.Warn("could not export login settings", "user", sess.UserID, "err", err)
	}

	slog.Info("login complete",
		"user", sess.UserID, "account", profile.Username, "trace", sess.TraceID)
}

// failLogin is the single transition into Failed: all session data including
// the password is cleared on this transition.
func (m *Machine) failLogin(sess *Session, step string, err error) {
	safeErr := redact.Error(err, sess.password)
	slog.Warn("login failed",
		"user", sess.UserID, "step", step, "trace", sess.TraceID, "err", safeErr)

	sess.password = ""
	sess.Username = ""
	sess.Profile = nil
	sess.Settings = nil
	sess.client = nil
	sess.State = StateFailed
}
