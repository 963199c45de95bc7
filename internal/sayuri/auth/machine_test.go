package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bdobrica/Sayuri/internal/sayuri/auth"
	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
)

// fakeAccount is a scriptable insta.Provider for exercising the login flow.
type fakeAccount struct {
	loginErr     error
	secondErr    error
	challengeErr error

	profile *insta.Profile

	loginCalls  int
	lastUser    string
	lastPass    string
	lastCode    string
	exportCalls int
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{
		profile: &insta.Profile{ID: "42", Username: "alice", FullName: "Alice", FollowerCount: 10, FollowingCount: 20},
	}
}

func (f *fakeAccount) Login(_ context.Context, username, password string) (*insta.Profile, error) {
	f.loginCalls++
	f.lastUser = username
	f.lastPass = password
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.profile, nil
}

func (f *fakeAccount) LoginWithSecondFactor(_ context.Context, username, password, code string) (*insta.Profile, error) {
	f.lastUser = username
	f.lastPass = password
	f.lastCode = code
	if f.secondErr != nil {
		return nil, f.secondErr
	}
	return f.profile, nil
}

func (f *fakeAccount) ResolveChallenge(_ context.Context, code string) (*insta.Profile, error) {
	f.lastCode = code
	if f.challengeErr != nil {
		return nil, f.challengeErr
	}
	return f.profile, nil
}

func (f *fakeAccount) AccountInfo(_ context.Context) (*insta.Profile, error) { return f.profile, nil }
func (f *fakeAccount) ListFollowers(_ context.Context) ([]insta.Target, error) {
	return nil, nil
}
func (f *fakeAccount) ListFollowing(_ context.Context) ([]insta.Target, error) {
	return nil, nil
}
func (f *fakeAccount) Unfollow(_ context.Context, _ string) error       { return nil }
func (f *fakeAccount) RemoveFollower(_ context.Context, _ string) error { return nil }
func (f *fakeAccount) ResolveIDByUsername(_ context.Context, _ string) (string, error) {
	return "", insta.ErrNotFound
}
func (f *fakeAccount) ExportSettings() ([]byte, error) {
	f.exportCalls++
	return []byte(`{"user_id":"42"}`), nil
}
func (f *fakeAccount) RestoreSettings(_ []byte) error { return nil }

// stopRecorder records RequestStop calls.
type stopRecorder struct {
	calls []string
	found bool
}

func (s *stopRecorder) RequestStop(userID string) bool {
	s.calls = append(s.calls, userID)
	return s.found
}

func setup(account *fakeAccount) (*auth.Machine, *auth.Store, *auth.Session, *stopRecorder) {
	sessions := auth.NewStore()
	stopper := &stopRecorder{}
	machine := auth.NewMachine(sessions, func() insta.Provider { return account }, stopper)
	sess := sessions.GetOrCreate("@alice:example.com", "!room:example.com")
	return machine, sessions, sess, stopper
}

func TestLoginHappyPath(t *testing.T) {
	account := newFakeAccount()
	machine, _, sess, _ := setup(account)
	ctx := context.Background()

	machine.StartLogin(sess)
	if sess.State != auth.StateAwaitingUsername {
		t.Fatalf("state = %v, want awaiting-username", sess.State)
	}
	if sess.TraceID == "" {
		t.Error("expected a trace ID after StartLogin")
	}

	if err := machine.SubmitUsername(sess, "alice"); err != nil {
		t.Fatalf("SubmitUsername: %v", err)
	}
	if sess.State != auth.StateAwaitingPassword {
		t.Fatalf("state = %v, want awaiting-password", sess.State)
	}

	profile, err := machine.SubmitPassword(ctx, sess, "hunter2")
	if err != nil {
		t.Fatalf("SubmitPassword: %v", err)
	}
	if profile.Username != "alice" {
		t.Errorf("profile.Username = %q, want alice", profile.Username)
	}
	if sess.State != auth.StateAuthenticated {
		t.Errorf("state = %v, want authenticated", sess.State)
	}
	if sess.HasPassword() {
		t.Error("password must be cleared on the transition into authenticated")
	}
	if sess.Settings == nil {
		t.Error("expected resumable settings to be captured at login")
	}
	if account.exportCalls != 1 {
		t.Errorf("ExportSettings calls = %d, want 1", account.exportCalls)
	}
}

func TestWrongPasswordClearsSession(t *testing.T) {
	account := newFakeAccount()
	account.loginErr = &insta.AuthError{Reason: "incorrect password"}
	machine, _, sess, _ := setup(account)
	ctx := context.Background()

	machine.StartLogin(sess)
	machine.SubmitUsername(sess, "alice")

	_, err := machine.SubmitPassword(ctx, sess, "wrong")
	var authErr *insta.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want *insta.AuthError", err)
	}
	if sess.State != auth.StateFailed {
		t.Errorf("state = %v, want failed", sess.State)
	}
	if sess.HasPassword() {
		t.Error("password must be cleared on the transition into failed")
	}
	if sess.Username != "" {
		t.Error("username must be cleared on failure")
	}
	if sess.Client() != nil {
		t.Error("account session must be discarded on failure")
	}

	// A failed flow restarts from the beginning.
	if _, err := machine.SubmitPassword(ctx, sess, "again"); !errors.Is(err, auth.ErrWrongState) {
		t.Errorf("password after failure: err = %v, want ErrWrongState", err)
	}
}

func TestTwoFactorRetainsPasswordUntilCode(t *testing.T) {
	account := newFakeAccount()
	account.loginErr = insta.ErrTwoFactorRequired
	machine, _, sess, _ := setup(account)
	ctx := context.Background()

	machine.StartLogin(sess)
	machine.SubmitUsername(sess, "alice")

	_, err := machine.SubmitPassword(ctx, sess, "hunter2")
	if !errors.Is(err, insta.ErrTwoFactorRequired) {
		t.Fatalf("err = %v, want ErrTwoFactorRequired", err)
	}
	if sess.State != auth.StateAwaitingSecondFactor {
		t.Fatalf("state = %v, want awaiting-second-factor", sess.State)
	}
	if !sess.HasPassword() {
		t.Fatal("password must be retained for the second-factor retry")
	}

	profile, err := machine.SubmitSecondFactorCode(ctx, sess, "123456")
	if err != nil {
		t.Fatalf("SubmitSecondFactorCode: %v", err)
	}
	if profile == nil || sess.State != auth.StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", sess.State)
	}
	if sess.HasPassword() {
		t.Error("password must be cleared once authenticated")
	}
	if account.lastPass != "hunter2" || account.lastCode != "123456" {
		t.Errorf("second factor used pass=%q code=%q", account.lastPass, account.lastCode)
	}
}

func TestRejectedSecondFactorIsTerminal(t *testing.T) {
	account := newFakeAccount()
	account.loginErr = insta.ErrTwoFactorRequired
	account.secondErr = &insta.AuthError{Reason: "code rejected"}
	machine, _, sess, _ := setup(account)
	ctx := context.Background()

	machine.StartLogin(sess)
	machine.SubmitUsername(sess, "alice")
	machine.SubmitPassword(ctx, sess, "hunter2")

	if _, err := machine.SubmitSecondFactorCode(ctx, sess, "000000"); err == nil {
		t.Fatal("expected rejection error")
	}
	if sess.State != auth.StateFailed {
		t.Errorf("state = %v, want failed", sess.State)
	}
	if sess.HasPassword() {
		t.Error("password must be cleared on failure")
	}
}

func TestChallengeFlow(t *testing.T) {
	account := newFakeAccount()
	account.loginErr = insta.ErrChallengeRequired
	machine, _, sess, _ := setup(account)
	ctx := context.Background()

	machine.StartLogin(sess)
	machine.SubmitUsername(sess, "alice")

	_, err := machine.SubmitPassword(ctx, sess, "hunter2")
	if !errors.Is(err, insta.ErrChallengeRequired) {
		t.Fatalf("err = %v, want ErrChallengeRequired", err)
	}
	if sess.State != auth.StateAwaitingChallenge {
		t.Fatalf("state = %v, want awaiting-challenge", sess.State)
	}

	profile, err := machine.SubmitChallengeCode(ctx, sess, "987654")
	if err != nil {
		t.Fatalf("SubmitChallengeCode: %v", err)
	}
	if profile == nil || sess.State != auth.StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", sess.State)
	}
	if account.lastCode != "987654" {
		t.Errorf("challenge code = %q", account.lastCode)
	}
}

func TestOutOfOrderInputs(t *testing.T) {
	account := newFakeAccount()
	machine, _, sess, _ := setup(account)
	ctx := context.Background()

	if _, err := machine.SubmitPassword(ctx, sess, "pw"); !errors.Is(err, auth.ErrWrongState) {
		t.Errorf("password before login: err = %v, want ErrWrongState", err)
	}
	if err := machine.SubmitUsername(sess, "alice"); !errors.Is(err, auth.ErrWrongState) {
		t.Errorf("username before login: err = %v, want ErrWrongState", err)
	}
	if _, err := machine.SubmitSecondFactorCode(ctx, sess, "123"); !errors.Is(err, auth.ErrWrongState) {
		t.Errorf("code before login: err = %v, want ErrWrongState", err)
	}

	machine.StartLogin(sess)
	if err := machine.SubmitUsername(sess, ""); !errors.Is(err, auth.ErrEmptyInput) {
		t.Errorf("empty username: err = %v, want ErrEmptyInput", err)
	}
	machine.SubmitUsername(sess, "alice")
	if _, err := machine.SubmitPassword(ctx, sess, ""); !errors.Is(err, auth.ErrEmptyInput) {
		t.Errorf("empty password: err = %v, want ErrEmptyInput", err)
	}
}

func TestLogoutCancelsJobAndRemovesSession(t *testing.T) {
	account := newFakeAccount()
	machine, sessions, sess, stopper := setup(account)
	ctx := context.Background()
	stopper.found = true

	machine.StartLogin(sess)
	machine.SubmitUsername(sess, "alice")
	machine.SubmitPassword(ctx, sess, "hunter2")

	machine.Logout(sess)
	if len(stopper.calls) == 0 {
		t.Fatal("logout must request a stop of the user's batch job")
	}
	if _, ok := sessions.Get("@alice:example.com"); ok {
		t.Error("session must be removed on logout")
	}
}

func TestStartLoginCancelsRunningJob(t *testing.T) {
	account := newFakeAccount()
	machine, _, sess, stopper := setup(account)

	machine.StartLogin(sess)
	if len(stopper.calls) != 1 {
		t.Fatalf("RequestStop calls = %d, want 1", len(stopper.calls))
	}
}

func TestStartLoginResetsFailedSession(t *testing.T) {
	account := newFakeAccount()
	account.loginErr = &insta.AuthError{Reason: "nope"}
	machine, _, sess, _ := setup(account)
	ctx := context.Background()

	machine.StartLogin(sess)
	machine.SubmitUsername(sess, "alice")
	machine.SubmitPassword(ctx, sess, "wrong")
	if sess.State != auth.StateFailed {
		t.Fatalf("state = %v, want failed", sess.State)
	}

	account.loginErr = nil
	machine.StartLogin(sess)
	machine.SubmitUsername(sess, "alice")
	if _, err := machine.SubmitPassword(ctx, sess, "right"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if sess.State != auth.StateAuthenticated {
		t.Errorf("state = %v, want authenticated", sess.State)
	}
}
