package messages

import (
	"errors"
	"net/http"

	"github.com/hilthontt/codenexus/internal/chat"
	"github.com/hilthontt/codenexus/internal/domain"
	"github.com/hilthontt/codenexus/internal/infrastructure/json"
	"github.com/hilthontt/codenexus/internal/infrastructure/logging"
)

type Handler struct {
	chat   *chat.Manager
	logger logging.Logger
}

func NewHandler(chat *chat.Manager, logger logging.Logger) *Handler {
	return &Handler{chat: chat, logger: logger}
}

func (h *Handler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, h.log())
}

func (h *Handler) CreateNewMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	msg, err := h.chat.SendMessage(r.Context(), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyMessage):
			json.WriteValidationError(w, err)
		case errors.Is(err, chat.ErrNoIdentity):
			json.WriteError(w, http.StatusConflict, err, "Join a room before sending messages")
		default:
			// The message is kept locally and goes out once the channel
			// is back.
			json.Write(w, http.StatusAccepted, msg)
		}
		return
	}

	json.Write(w, http.StatusCreated, msg)
}

func (h *Handler) ClearMessagesHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.ClearChat(r.Context()); err != nil {
		json.WriteInternalError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RecordScrollHandler(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.chat.RecordScroll(req.Offset)
	json.Write(w, http.StatusOK, h.chat.Scroll())
}

func (h *Handler) MarkSeenHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, h.chat.MarkSeen())
}

func (h *Handler) log() messagesResponse {
	msgs := h.chat.Messages()
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return messagesResponse{
		Messages: msgs,
		Unseen:   h.chat.Unseen(),
		Scroll:   h.chat.Scroll(),
	}
}
