package ws

import (
	"encoding/json"

	"github.com/hilthontt/codenexus/internal/domain"
)

// Frame is the wire envelope of every text message on the channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Transport events, raised locally by the channel.
const (
	EventConnect       = "connect"
	EventDisconnect    = "disconnect"
	EventConnectError  = "connect_error"
	EventConnectFailed = "connect_failed"
)

// Room protocol events.
const (
	JoinRequest        = "join-request"
	JoinAccepted       = "join-accepted"
	UsernameExists     = "username-exists"
	UserJoined         = "user-joined"
	UserDisconnected   = "user-disconnected"
	UserOnline         = "user-online"
	UserOffline        = "user-offline"
	FileContentUpdated = "file-content-updated"
	TypingStart        = "typing-start"
	TypingPause        = "typing-pause"
	SendMessage        = "send-message"
	ReceiveMessage     = "receive-message"
	RequestDrawing     = "request-drawing"
	SyncDrawing        = "sync-drawing"
	FileCreated        = "file-created"
	FileRenamed        = "file-renamed"
	FileDeleted        = "file-deleted"
	DirectoryCreated   = "directory-created"
	DirectoryDeleted   = "directory-deleted"
	DirectoryUpdated   = "directory-updated"
	SyncFileStructure  = "sync-file-structure"
)

// Payload structs
type JoinRequestPayload struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

type JoinAcceptedPayload struct {
	User  domain.RemoteUser   `json:"user"`
	Users []domain.RemoteUser `json:"users"`
}

type UserPayload struct {
	User domain.RemoteUser `json:"user"`
}

type SocketPayload struct {
	SocketID string `json:"socketId"`
}

type FileContentPayload struct {
	FileID     string `json:"fileId"`
	NewContent string `json:"newContent"`
}

type TypingStartPayload struct {
	User           *domain.RemoteUser `json:"user,omitempty"`
	CursorPosition int                `json:"cursorPosition"`
}

type TypingPausePayload struct {
	User *domain.RemoteUser `json:"user,omitempty"`
}

type MessagePayload struct {
	Message domain.ChatMessage `json:"message"`
}

type SyncDrawingPayload struct {
	SocketID    string             `json:"socketId,omitempty"`
	DrawingData domain.DrawingData `json:"drawingData"`
}

type ItemCreatedPayload struct {
	ParentDirID string          `json:"parentDirId"`
	Item        json.RawMessage `json:"item"`
}

type ItemRenamedPayload struct {
	ID      string `json:"id"`
	NewName string `json:"newName"`
}

type ItemDeletedPayload struct {
	ID string `json:"id"`
}

type DirectoryUpdatedPayload struct {
	DirID    string            `json:"dirId"`
	Children []json.RawMessage `json:"children"`
}

type FileStructurePayload struct {
	SocketID      string          `json:"socketId,omitempty"`
	FileStructure json.RawMessage `json:"fileStructure"`
	OpenFiles     []string        `json:"openFiles"`
	ActiveFile    string          `json:"activeFile,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// Decode unmarshals a handler payload. Empty data leaves v untouched.
func Decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
