// Package commands implements the conversational interface: it interprets
// each incoming message against the user's login state and pending menu
// choice, drives the auth machine and the batch runner, and produces the
// Markdown reply to send back.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bdobrica/Sayuri/internal/sayuri/auth"
	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
	"github.com/bdobrica/Sayuri/internal/sayuri/jobs"
	"github.com/bdobrica/Sayuri/internal/sayuri/store"
)

// History provides read access to past batch runs. Satisfied by *store.Store.
type History interface {
	RecentRuns(ctx context.Context, userID string, limit int) ([]*store.Run, error)
}

// Redactor removes a message from the conversation. Satisfied by the Matrix
// client; used to delete password and verification-code messages the moment
// they are consumed.
type Redactor interface {
	Redact(roomID, eventID string) error
}

// pendingKind is a menu step that spans more than one message.
type pendingKind int

const (
	pendingNone           pendingKind = iota
	pendingUnfollowTarget             // waiting for a username to unfollow
	pendingRemoveTarget               // waiting for a username to remove
	pendingConfirm                    // waiting for yes/no before a mass action
)

// convState is the per-user menu position, separate from the login state.
type convState struct {
	pending     pendingKind
	confirmKind jobs.Kind // set when pending == pendingConfirm
}

// Handlers interprets messages and produces replies.
type Handlers struct {
	sessions *auth.Store
	machine  *auth.Machine
	registry *jobs.Registry
	runner   *jobs.Runner
	history  History  // may be nil
	redactor Redactor // may be nil

	mu   sync.Mutex
	conv map[string]*convState
}

// NewHandlers wires the conversational layer. history and redactor may be nil.
func NewHandlers(sessions *auth.Store, machine *auth.Machine, registry *jobs.Registry, runner *jobs.Runner, history History, redactor Redactor) *Handlers {
	return &Handlers{
		sessions: sessions,
		machine:  machine,
		registry: registry,
		runner:   runner,
		history:  history,
		redactor: redactor,
		conv:     make(map[string]*convState),
	}
}

func (h *Handlers) state(userID string) *convState {
	h.mu.Lock()
	defer h.mu.Unlock()
	cs, ok := h.conv[userID]
	if !ok {
		cs = &convState{}
		h.conv[userID] = cs
	}
	return cs
}

func (h *Handlers) clearState(userID string) {
	h.mu.Lock()
	delete(h.conv, userID)
	h.mu.Unlock()
}

// HandleMessage processes one incoming message and returns the reply to send.
// Every path returns a usable reply: errors surface as friendly text with a
// next step, never as silence.
func (h *Handlers) HandleMessage(ctx context.Context, userID, roomID, eventID, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	lower := strings.ToLower(text)

	sess := h.sessions.GetOrCreate(userID, roomID)

	// Global commands work in any state.
	switch lower {
	case "/start", "/login", "start", "login":
		return h.startLogin(sess)
	case "/help", "help":
		return h.helpText(sess)
	case "/cancel", "cancel":
		return h.cancel(ctx, sess)
	case "stop", "/stop":
		return h.stopJob(sess)
	case "progress", "status", "stats", "/progress", "/status", "/stats":
		return h.progress(sess)
	}

	switch sess.State {
	case auth.StateUnauthenticated, auth.StateFailed:
		return "👋 Hi! I'm **Sayuri**, your Instagram assistant.\n\nSend **/start** to log in to your Instagram account."
	case auth.StateAwaitingUsername:
		return h.submitUsername(sess, text)
	case auth.StateAwaitingPassword:
		h.redactMessage(roomID, eventID)
		return h.submitPassword(ctx, sess, text)
	case auth.StateAwaitingSecondFactor:
		h.redactMessage(roomID, eventID)
		return h.submitSecondFactor(ctx, sess, text)
	case auth.StateAwaitingChallenge:
		h.redactMessage(roomID, eventID)
		return h.submitChallenge(ctx, sess, text)
	case auth.StateAuthenticated:
		return h.handleMenu(ctx, sess, text)
	}

	return h.helpText(sess)
}

// redactMessage best-effort deletes a credential-bearing message from the
// room so it does not linger in history.
func (h *Handlers) redactMessage(roomID, eventID string) {
	if h.redactor == nil || eventID == "" {
		return
	}
	if err := h.redactor.Redact(roomID, eventID); err != nil {
		slog.Warn("could not redact credential message", "room", roomID, "err", err)
	}
}

func (h *Handlers) startLogin(sess *auth.Session) string {
	h.clearState(sess.UserID)
	h.machine.StartLogin(sess)
	return "🔑 **Instagram login**\n\nPlease send your Instagram **username**."
}

func (h *Handlers) submitUsername(sess *auth.Session, text string) string {
	username := strings.TrimPrefix(text, "@")
	if err := h.machine.SubmitUsername(sess, username); err != nil {
		if errors.Is(err, auth.ErrEmptyInput) {
			return "Username cannot be empty. Please send your Instagram **username**."
		}
		return h.helpText(sess)
	}
	return fmt.Sprintf("👤 Username: **%s**\n\nNow send your **password**.\n\n_I will delete your message right away so the password does not stay in this room._", username)
}

func (h *Handlers) submitPassword(ctx context.Context, sess *auth.Session, password string) string {
	profile, err := h.machine.SubmitPassword(ctx, sess, password)
	switch {
	case err == nil:
		return h.welcome(profile)
	case errors.Is(err, auth.ErrEmptyInput):
		return "Password cannot be empty. Please send your Instagram **password**."
	case errors.Is(err, insta.ErrTwoFactorRequired):
		return "📱 **Two-factor authentication required.**\n\nPlease send the 6-digit code from your authenticator app or SMS."
	case errors.Is(err, insta.ErrChallengeRequired):
		return "🛡 **Instagram wants to verify it's you.**\n\nA verification code was sent to your email or phone. Please send it here."
	default:
		return loginFailed(err)
	}
}

func (h *Handlers) submitSecondFactor(ctx context.Context, sess *auth.Session, code string) string {
	profile, err := h.machine.SubmitSecondFactorCode(ctx, sess, strings.TrimSpace(code))
	switch {
	case err == nil:
		return h.welcome(profile)
	case errors.Is(err, auth.ErrEmptyInput):
		return "The code cannot be empty. Please send the 6-digit code."
	default:
		return loginFailed(err)
	}
}

func (h *Handlers) submitChallenge(ctx context.Context, sess *auth.Session, code string) string {
	profile, err := h.machine.SubmitChallengeCode(ctx, sess, strings.TrimSpace(code))
	switch {
	case err == nil:
		return h.welcome(profile)
	case errors.Is(err, auth.ErrEmptyInput):
		return "The code cannot be empty. Please send the verification code."
	default:
		return loginFailed(err)
	}
}

func loginFailed(err error) string {
	var authErr *insta.AuthError
	if errors.As(err, &authErr) {
		return fmt.Sprintf("❌ **Login failed:** %s\n\nSend **/start** to try again.", authErr.Reason)
	}
	return "❌ **Login failed.** Please check your credentials and connection.\n\nSend **/start** to try again."
}

func (h *Handlers) welcome(profile *insta.Profile) string {
	return fmt.Sprintf(
		"✅ **Logged in as @%s**\n\n"+
			"👤 %s\n"+
			"👥 Followers: **%d**\n"+
			"➡️ Following: **%d**\n"+
			"📸 Posts: **%d**\n\n%s",
		profile.Username, profile.FullName,
		profile.FollowerCount, profile.FollowingCount, profile.MediaCount,
		menuText())
}

// cancel aborts whatever is in flight: a pending menu step, a login in
// progress, or a running batch job.
func (h *Handlers) cancel(ctx context.Context, sess *auth.Session) string {
	cs := h.state(sess.UserID)
	if cs.pending != pendingNone {
		h.clearState(sess.UserID)
		return "👍 Cancelled.\n\n" + menuText()
	}

	if h.registry.RequestStop(sess.UserID) {
		return "⏹ Stop requested. The job will halt after the current action."
	}

	switch sess.State {
	case auth.StateAwaitingUsername, auth.StateAwaitingPassword,
		auth.StateAwaitingSecondFactor, auth.StateAwaitingChallenge:
		h.machine.Logout(sess)
		return "👍 Login cancelled. Send **/start** whenever you're ready."
	case auth.StateAuthenticated:
		return "Nothing to cancel.\n\n" + menuText()
	}
	return "Nothing to cancel. Send **/start** to log in."
}

func (h *Handlers) stopJob(sess *auth.Session) string {
	if h.registry.RequestStop(sess.UserID) {
		return "⏹ **Stop requested.** The job will halt after the current action finishes."
	}
	return "ℹ️ No batch job is running."
}

func (h *Handlers) progress(sess *auth.Session) string {
	p, ok := h.registry.Progress(sess.UserID)
	if !ok {
		return "ℹ️ No batch job is running."
	}
	if p.Total <= 0 {
		return "🔄 Still fetching the target list, hang on..."
	}
	return fmt.Sprintf(
		"⚙️ **Progress**\n\n"+
			"✅ Done: **%d/%d**\n"+
			"❌ Failed: **%d**\n"+
			"⏭ Remaining: **%d**\n"+
			"📊 **%.1f%%**",
		p.Count, p.Total, p.Failed, p.Remaining(), p.Percent())
}

func (h *Handlers) helpText(sess *auth.Session) string {
	if sess.State == auth.StateAuthenticated {
		return menuText()
	}
	return "👋 I'm **Sayuri**, your Instagram assistant.\n\n" +
		"• **/start** — log in to Instagram\n" +
		"• **/cancel** — abort whatever is in progress\n" +
		"• **/help** — this message"
}

func menuText() string {
	return "📋 **What would you like to do?**\n\n" +
		"1️⃣ **info** — account overview\n" +
		"2️⃣ **unfollow** `username` — unfollow one account\n" +
		"3️⃣ **remove** `username` — remove one follower\n" +
		"4️⃣ **unfollowall** — unfollow everyone\n" +
		"5️⃣ **removeall** — remove all followers\n" +
		"6️⃣ **history** — recent batch runs\n" +
		"7️⃣ **logout** — end the session\n\n" +
		"_During a batch job: **stop** to cancel, **progress** to check on it._"
}
