package service

import "context"

// Button is a single inline action button.
type Button struct {
	Label string
	Data  string
}

// Keyboard is a grid of inline buttons attached to an outbound message.
type Keyboard [][]Button

// Messenger abstracts the outbound side of the chat transport. Implementations
// return the platform message id of the sent message so callers can correlate
// replies back to it.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	SendReply(ctx context.Context, chatID int64, replyToMessageID int, text string) (int, error)
}
