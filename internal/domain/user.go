package domain

import "time"

// User is an end-user identified by their Telegram user id. Name is optional
// and may be cleared or overwritten on later dialogues; users are never
// deleted.
type User struct {
	ID        int64
	Name      *string
	CreatedAt time.Time
}
