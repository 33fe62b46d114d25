package messages

import (
	"github.com/hilthontt/codenexus/internal/chat"
	"github.com/hilthontt/codenexus/internal/domain"
)

type createMessageRequest struct {
	Message string `json:"message"`
}

type scrollRequest struct {
	Offset int `json:"offset"`
}

type messagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
	Unseen   bool                 `json:"unseen"`
	Scroll   chat.Scroll          `json:"scroll"`
}
