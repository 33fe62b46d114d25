package domain

type SessionStatus string

const (
	StatusInitial          SessionStatus = "INITIAL"
	StatusAttemptingJoin   SessionStatus = "ATTEMPTING_JOIN"
	StatusJoined           SessionStatus = "JOINED"
	StatusConnectionFailed SessionStatus = "CONNECTION_FAILED"
	StatusDisconnected     SessionStatus = "DISCONNECTED"
)

func (s SessionStatus) String() string {
	return string(s)
}

type ActivityState string

const (
	ActivityCoding  ActivityState = "coding"
	ActivityDrawing ActivityState = "drawing"
)

type View string

const (
	ViewFiles    View = "files"
	ViewChats    View = "chats"
	ViewClients  View = "clients"
	ViewSettings View = "settings"
	ViewRun      View = "run"
)

func (v View) Valid() bool {
	switch v {
	case ViewFiles, ViewChats, ViewClients, ViewSettings, ViewRun:
		return true
	}
	return false
}
