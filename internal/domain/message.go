package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable chat event between two users. At least one of
// Text or AttachmentRef is set; Sender and Recipient are never empty.
type Message struct {
	ID            uuid.UUID
	Sender        string
	Recipient     string
	Text          string
	AttachmentRef string
	CreatedAt     time.Time
}

// User is a registered account. The password is stored only as a bcrypt hash.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
