package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const TimestampLayout = "3:04 PM"

var ErrEmptyMessage = errors.New("message is empty")

type ChatMessage struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

func NewChatMessage(text, username string, now time.Time) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}

	return ChatMessage{
		ID:        uuid.NewString(),
		Message:   text,
		Username:  username,
		Timestamp: now.Format(TimestampLayout),
	}, nil
}
