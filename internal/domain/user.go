package domain

import (
	"errors"
	"strings"
)

const (
	MinUsernameLength = 3
	MinRoomIDLength   = 5
)

var (
	ErrInvalidUsername = errors.New("please enter a valid username (min 3 characters)")
	ErrInvalidRoomID   = errors.New("please enter or generate a valid room ID (min 5 characters)")
)

// User is the local identity, fixed for the lifetime of a session.
type User struct {
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

func NewUser(username, roomID string) (User, error) {
	u := User{
		Username: strings.TrimSpace(username),
		RoomID:   strings.TrimSpace(roomID),
	}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	return u, nil
}

func (u User) Validate() error {
	if len(strings.TrimSpace(u.Username)) < MinUsernameLength {
		return ErrInvalidUsername
	}
	if len(strings.TrimSpace(u.RoomID)) < MinRoomIDLength {
		return ErrInvalidRoomID
	}
	return nil
}

func (u User) IsZero() bool {
	return u.Username == "" && u.RoomID == ""
}
