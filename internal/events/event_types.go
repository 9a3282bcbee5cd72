package events

import (
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketAnnounced EventType = "ticket_announced"
	EventTicketAnswered  EventType = "ticket_answered"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  int64     `json:"ticket_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	UserID      int64           `json:"user_id"`
	Category    domain.Category `json:"category"`
	DisplayName string          `json:"display_name"`
}

// TicketAnnouncedPayload payload.
type TicketAnnouncedPayload struct {
	GroupChatID    int64 `json:"group_chat_id"`
	GroupMessageID int   `json:"group_message_id"`
}

// TicketAnsweredPayload payload.
type TicketAnsweredPayload struct {
	OperatorID int64  `json:"operator_id"`
	Mode       string `json:"mode"`
}
