package room

import "errors"

var (
	ErrRoomRequired     = errors.New("room name is required")
	ErrIdentityRequired = errors.New("participant identity is required")
	ErrUnknownRole      = errors.New("unknown participant role")
)
