package chat

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// TimestampLayout mirrors a locale time string.
const TimestampLayout = "15:04:05"

// Message is one immutable entry of the session history.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Sender    Sender `json:"sender"`
}

// NewMessage stamps text with a fresh id and the display time of now.
func NewMessage(sender Sender, text string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: now.Format(TimestampLayout),
		Sender:    sender,
	}
}
