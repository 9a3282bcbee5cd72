// Package session holds the ephemeral per-user dialogue state. Sessions are
// not part of the durable ticket store: they live in memory (or Redis) and
// are created, mutated and cleared by the conversation state machine.
package session

import (
	"context"

	"github.com/spec-kit/support-bot/internal/domain"
)

// State tags the current position of a user inside a dialogue flow.
type State string

const (
	// Intake flow.
	StateAwaitingName     State = "awaiting_name"
	StateAwaitingCategory State = "awaiting_category"
	StateAwaitingQuestion State = "awaiting_question"

	// Operator answer flows, entered from announcement actions.
	StateAnswerPrivate State = "answer_private"
	StateAnswerGroup   State = "answer_group"
)

// Session is the accumulating bag of fields collected during a dialogue.
// A user has at most one active session; entering any state replaces
// whatever was there before.
type Session struct {
	State    State           `json:"state"`
	Name     *string         `json:"name,omitempty"`
	Category domain.Category `json:"category,omitempty"`
	// TicketID is set only in the answer flows.
	TicketID int64 `json:"ticket_id,omitempty"`
}

// Store is the explicit session store keyed by Telegram user id. Same-user
// access is serialized by Telegram's per-chat update delivery; the store
// itself must be safe for concurrent use across different users.
type Store interface {
	Get(ctx context.Context, userID int64) (Session, bool, error)
	Put(ctx context.Context, userID int64, s Session) error
	Clear(ctx context.Context, userID int64) error
}
