package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/Sayuri/internal/sayuri/auth"
	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
	"github.com/bdobrica/Sayuri/internal/sayuri/jobs"
)

// handleMenu interprets a message from an authenticated user: either a menu
// choice or the continuation of a multi-step action (target username,
// yes/no confirmation).
func (h *Handlers) handleMenu(ctx context.Context, sess *auth.Session, text string) string {
	cs := h.state(sess.UserID)
	lower := strings.ToLower(text)

	// Continuations first.
	switch cs.pending {
	case pendingUnfollowTarget:
		h.clearState(sess.UserID)
		return h.unfollowOne(ctx, sess, text)
	case pendingRemoveTarget:
		h.clearState(sess.UserID)
		return h.removeOne(ctx, sess, text)
	case pendingConfirm:
		kind := cs.confirmKind
		h.clearState(sess.UserID)
		switch lower {
		case "yes", "y", "confirm":
			return h.startBatch(sess, kind)
		default:
			return "👍 Okay, nothing was changed.\n\n" + menuText()
		}
	}

	// Fresh menu choice. Accept both the number and the keyword; a keyword
	// may carry the target username inline ("unfollow somebody").
	cmd, arg := splitCommand(text)
	switch strings.ToLower(cmd) {
	case "1", "info":
		return h.accountInfo(ctx, sess)
	case "2", "unfollow":
		if arg == "" {
			h.state(sess.UserID).pending = pendingUnfollowTarget
			return "✂️ Which account should I unfollow? Send the **username**."
		}
		return h.unfollowOne(ctx, sess, arg)
	case "3", "remove":
		if arg == "" {
			h.state(sess.UserID).pending = pendingRemoveTarget
			return "🚫 Which follower should I remove? Send the **username**."
		}
		return h.removeOne(ctx, sess, arg)
	case "4", "unfollowall":
		return h.confirmBatch(sess, jobs.KindUnfollowAll)
	case "5", "removeall":
		return h.confirmBatch(sess, jobs.KindRemoveFollowers)
	case "6", "history":
		return h.runHistory(ctx, sess)
	case "7", "logout":
		h.clearState(sess.UserID)
		h.machine.Logout(sess)
		return "👋 **Logged out.** Your session and credentials are gone.\n\nSend **/start** to log in again."
	}

	return "🤔 I didn't catch that.\n\n" + menuText()
}

// splitCommand separates the first word from the rest of the message.
func splitCommand(text string) (cmd, arg string) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	cmd = parts[0]
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

// accountInfo fetches fresh profile numbers; falls back to the login-time
// snapshot when the provider call fails.
func (h *Handlers) accountInfo(ctx context.Context, sess *auth.Session) string {
	profile, err := sess.Client().AccountInfo(ctx)
	if err != nil {
		slog.Warn("account info refresh failed, using login snapshot", "user", sess.UserID, "err", err)
		profile = sess.Profile
	}
	if profile == nil {
		return "❌ Could not load your account info right now. Try again in a moment."
	}
	return fmt.Sprintf(
		"👤 **@%s** — %s\n\n"+
			"👥 Followers: **%d**\n"+
			"➡️ Following: **%d**\n"+
			"📸 Posts: **%d**",
		profile.Username, profile.FullName,
		profile.FollowerCount, profile.FollowingCount, profile.MediaCount)
}

// unfollowOne resolves a username and unfollows that single account.
func (h *Handlers) unfollowOne(ctx context.Context, sess *auth.Session, username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return "Username cannot be empty.\n\n" + menuText()
	}

	targetID, err := sess.Client().ResolveIDByUsername(ctx, username)
	if errors.Is(err, insta.ErrNotFound) {
		return fmt.Sprintf("🔍 I couldn't find **@%s**. Check the spelling and try again.", username)
	}
	if err != nil {
		slog.Error("resolve username failed", "user", sess.UserID, "target", username, "err", err)
		return fmt.Sprintf("❌ Could not look up **@%s** right now: %v", username, err)
	}

	if err := sess.Client().Unfollow(ctx, targetID); err != nil {
		slog.Error("unfollow failed", "user", sess.UserID, "target", username, "err", err)
		return fmt.Sprintf("❌ Could not unfollow **@%s**: %v", username, err)
	}
	return fmt.Sprintf("✅ Unfollowed **@%s**.\n\n%s", username, menuText())
}

// removeOne resolves a username and removes that single follower.
func (h *Handlers) removeOne(ctx context.Context, sess *auth.Session, username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return "Username cannot be empty.\n\n" + menuText()
	}

	targetID, err := sess.Client().ResolveIDByUsername(ctx, username)
	if errors.Is(err, insta.ErrNotFound) {
		return fmt.Sprintf("🔍 I couldn't find **@%s**. Check the spelling and try again.", username)
	}
	if err != nil {
		slog.Error("resolve username failed", "user", sess.UserID, "target", username, "err", err)
		return fmt.Sprintf("❌ Could not look up **@%s** right now: %v", username, err)
	}

	if err := sess.Client().RemoveFollower(ctx, targetID); err != nil {
		slog.Error("remove follower failed", "user", sess.UserID, "target", username, "err", err)
		return fmt.Sprintf("❌ Could not remove **@%s**: %v", username, err)
	}
	return fmt.Sprintf("✅ Removed **@%s** from your followers.\n\n%s", username, menuText())
}

// confirmBatch asks for explicit confirmation before a mass action. The
// counts come from the login-time profile; the authoritative total is fetched
// when the job actually starts.
func (h *Handlers) confirmBatch(sess *auth.Session, kind jobs.Kind) string {
	if _, running := h.registry.Get(sess.UserID); running {
		return "⚠️ A batch job is already running. Send **stop** to cancel it or **progress** to check on it."
	}

	cs := h.state(sess.UserID)
	cs.pending = pendingConfirm
	cs.confirmKind = kind

	var what string
	count := 0
	if kind == jobs.KindRemoveFollowers {
		what = "remove **all your followers**"
		if sess.Profile != nil {
			count = sess.Profile.FollowerCount
		}
	} else {
		what = "unfollow **everyone you follow**"
		if sess.Profile != nil {
			count = sess.Profile.FollowingCount
		}
	}

	msg := fmt.Sprintf("⚠️ **Are you sure?**\n\nThis will %s", what)
	if count > 0 {
		msg += fmt.Sprintf(" (about **%d** accounts)", count)
	}
	msg += ".\n\nThis cannot be undone. Reply **yes** to proceed, anything else to cancel."
	return msg
}

// startBatch launches the confirmed mass action.
func (h *Handlers) startBatch(sess *auth.Session, kind jobs.Kind) string {
	_, err := h.runner.Start(sess.UserID, kind, sess.Client())
	if errors.Is(err, jobs.ErrAlreadyRunning) {
		return "⚠️ A batch job is already running. Send **stop** to cancel it or **progress** to check on it."
	}
	if err != nil {
		slog.Error("could not start batch job", "user", sess.UserID, "kind", string(kind), "err", err)
		return fmt.Sprintf("❌ Could not start the job: %v", err)
	}
	return "🚀 On it! I'll keep you posted here."
}

// runHistory lists the user's recent batch runs.
func (h *Handlers) runHistory(ctx context.Context, sess *auth.Session) string {
	if h.history == nil {
		return "ℹ️ Run history is not enabled."
	}
	runs, err := h.history.RecentRuns(ctx, sess.UserID, 10)
	if err != nil {
		slog.Error("could not load run history", "user", sess.UserID, "err", err)
		return "❌ Could not load your run history right now."
	}
	if len(runs) == 0 {
		return "📭 No batch runs yet.\n\n" + menuText()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📜 **Recent runs (%d)**\n\n", len(runs)))
	for _, run := range runs {
		emoji := "✅"
		switch run.Outcome {
		case "stopped":
			emoji = "⛔"
		case "error":
			emoji = "❌"
		}
		sb.WriteString(fmt.Sprintf("%s **%s** — %d done, %d failed of %d (%s)\n",
			emoji, run.Kind, run.Count, run.Failed, run.Total,
			run.FinishedAt.Format("2006-01-02 15:04")))
	}
	return sb.String()
}
