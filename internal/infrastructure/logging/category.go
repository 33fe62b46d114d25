package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General    Category = "General"
	IO         Category = "IO"
	Internal   Category = "Internal"
	Channel    Category = "Channel"
	Session    Category = "Session"
	Documents  Category = "Documents"
	Chat       Category = "Chat"
	Drawing    Category = "Drawing"
	Storage    Category = "Storage"
	Validation Category = "Validation"
	Redis      Category = "Redis"
	Prometheus Category = "Prometheus"

	RequestResponse Category = "RequestResponse"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"
	Notify          SubCategory = "Notify"
	Api             SubCategory = "Api"

	// Channel
	Connect    SubCategory = "Connect"
	Disconnect SubCategory = "Disconnect"
	Reconnect  SubCategory = "Reconnect"
	Emit       SubCategory = "Emit"
	Receive    SubCategory = "Receive"

	// Session
	Join        SubCategory = "Join"
	Roster      SubCategory = "Roster"
	Navigation  SubCategory = "Navigation"
	ReplayGuard SubCategory = "ReplayGuard"

	// Documents, chat and drawing
	Sync     SubCategory = "Sync"
	Import   SubCategory = "Import"
	Export   SubCategory = "Export"
	Persist  SubCategory = "Persist"
	Settings SubCategory = "Settings"
	Layout   SubCategory = "Layout"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	Event        ExtraKey = "Event"
	RoomID       ExtraKey = "RoomId"
	Username     ExtraKey = "Username"
	SocketID     ExtraKey = "SocketId"
	Status       ExtraKey = "Status"
	Attempt      ExtraKey = "Attempt"
	Delay        ExtraKey = "Delay"
	FileID       ExtraKey = "FileId"
	Path         ExtraKey = "Path"
	Key          ExtraKey = "Key"
	Count        ExtraKey = "Count"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	Latency      ExtraKey = "Latency"
	ClientIp     ExtraKey = "ClientIp"
	ErrorMessage ExtraKey = "ErrorMessage"
)
