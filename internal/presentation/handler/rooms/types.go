package rooms

import "github.com/hilthontt/codenexus/internal/domain"

type joinRequest struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

type noticeResponse struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type entryResponse struct {
	Status          string           `json:"status"`
	Path            string           `json:"path"`
	PrefilledRoomID string           `json:"prefilledRoomId,omitempty"`
	User            *domain.User     `json:"user,omitempty"`
	Notices         []noticeResponse `json:"notices"`
}

type roomResponse struct {
	RoomID string              `json:"roomId"`
	Status string              `json:"status"`
	User   domain.User         `json:"user"`
	Roster []domain.RemoteUser `json:"roster"`
	Peers  []domain.RemoteUser `json:"peers"`
}
