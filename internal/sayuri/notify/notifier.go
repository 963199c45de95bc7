// Package notify provides the outward progress-reporting channel used by the
// batch runner and the login flow.
//
// Delivery is fire-and-forget by contract: a dropped progress message must
// never stall or abort a batch, so send failures are logged at WARN and
// swallowed. Core components depend only on the Notifier interface; the
// Matrix implementation lives here, a recording stub lives in the tests.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Notifier reports outward to one user's conversation.
type Notifier interface {
	// Send posts a message to the user. Best effort.
	Send(ctx context.Context, userID, text string)

	// EditLast replaces the last message sent to the user via Send.
	// Falls back to a fresh Send when there is nothing to edit.
	EditLast(ctx context.Context, userID, text string)

	// DeleteLast removes the last message sent to the user, if any.
	DeleteLast(ctx context.Context, userID string)
}

// Sender is the subset of the Matrix client needed by MatrixNotifier.
// Defined as an interface so the notifier can be unit-tested independently.
type Sender interface {
	SendMarkdown(roomID, text string) (eventID string, err error)
	EditMarkdown(roomID, eventID, text string) error
	Redact(roomID, eventID string) error
}

// RoomResolver maps a user ID to the room their conversation lives in.
// Returns ok=false when the user has no active conversation.
type RoomResolver func(userID string) (roomID string, ok bool)

// MatrixNotifier posts formatted messages to each user's conversation room
// and remembers the last event per user so it can be edited or deleted.
type MatrixNotifier struct {
	sender  Sender
	resolve RoomResolver

	mu   sync.Mutex
	last map[string]lastEvent // userID → last sent event
}

type lastEvent struct {
	roomID  string
	eventID string
}

// NewMatrixNotifier creates a MatrixNotifier that resolves rooms via resolve
// and delivers through sender.
func NewMatrixNotifier(sender Sender, resolve RoomResolver) *MatrixNotifier {
	return &MatrixNotifier{
		sender:  sender,
		resolve: resolve,
		last:    make(map[string]lastEvent),
	}
}

// Send posts text to the user's room. Failures are logged, never returned.
func (n *MatrixNotifier) Send(ctx context.Context, userID, text string) {
	roomID, ok := n.resolve(userID)
	if !ok {
		slog.Warn("notify: no room for user, dropping message", "user", userID)
		return
	}

	eventID, err := n.sender.SendMarkdown(roomID, text)
	if err != nil {
		slog.Warn("notify: send failed", "user", userID, "room", roomID, "err", err)
		return
	}

	n.mu.Lock()
	n.last[userID] = lastEvent{roomID: roomID, eventID: eventID}
	n.mu.Unlock()
}

// EditLast replaces the last message sent to the user. When no previous
// event is tracked (or the edit fails) it degrades to a fresh Send so the
// user still sees the update.
func (n *MatrixNotifier) EditLast(ctx context.Context, userID, text string) {
	n.mu.Lock()
	prev, ok := n.last[userID]
	n.mu.Unlock()

	if !ok {
		n.Send(ctx, userID, text)
		return
	}
	if err := n.sender.EditMarkdown(prev.roomID, prev.eventID, text); err != nil {
		slog.Warn("notify: edit failed, sending fresh message", "user", userID, "err", err)
		n.Send(ctx, userID, text)
	}
}

// DeleteLast redacts the last message sent to the user, if any.
func (n *MatrixNotifier) DeleteLast(ctx context.Context, userID string) {
	n.mu.Lock()
	prev, ok := n.last[userID]
	delete(n.last, userID)
	n.mu.Unlock()

	if !ok {
		return
	}
	if err := n.sender.Redact(prev.roomID, prev.eventID); err != nil {
		slog.Warn("notify: redact failed", "user", userID, "err", err)
	}
}

// Noop is a no-op Notifier for wiring paths where notifications are disabled.
type Noop struct{}

// Send does nothing.
func (Noop) Send(_ context.Context, _, _ string) {}

// EditLast does nothing.
func (Noop) EditLast(_ context.Context, _, _ string) {}

// DeleteLast does nothing.
func (Noop) DeleteLast(_ context.Context, _ string) {}
