package domain

type UserStatus string

const (
	UserOnline  UserStatus = "online"
	UserOffline UserStatus = "offline"
)

// RemoteUser is one roster entry. SocketID identifies a connection, not a
// person: a participant that reconnects shows up under a new id.
type RemoteUser struct {
	SocketID       string     `json:"socketId"`
	Username       string     `json:"username"`
	RoomID         string     `json:"roomId,omitempty"`
	Status         UserStatus `json:"status"`
	IsAdmin        bool       `json:"isAdmin"`
	Typing         bool       `json:"typing"`
	CurrentFile    string     `json:"currentFile,omitempty"`
	CursorPosition int        `json:"cursorPosition"`
}

func (u RemoteUser) Online() bool {
	return u.Status != UserOffline
}
