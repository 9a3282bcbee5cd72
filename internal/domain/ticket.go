package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "new"
	TicketStatusAnswered TicketStatus = "answered"
)

// Ticket is the aggregate for a submitted question. UserDisplayName is a
// snapshot taken at creation time; later renames do not touch it.
// GroupMessageID stays nil until the group announcement has been posted.
type Ticket struct {
	ID              int64
	UserID          int64
	UserDisplayName *string
	Category        Category
	Question        string
	Status          TicketStatus
	OperatorID      *int64
	GroupChatID     int64
	GroupMessageID  *int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Answered reports whether an operator has resolved the ticket.
func (t *Ticket) Answered() bool {
	return t.Status == TicketStatusAnswered
}

// DisplayName renders the snapshot name, falling back to the anonymous label.
func (t *Ticket) DisplayName() string {
	if t.UserDisplayName == nil || *t.UserDisplayName == "" {
		return AnonymousName
	}
	return *t.UserDisplayName
}
