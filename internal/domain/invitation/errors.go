package invitation

import "errors"

var (
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrInvitationNotActive = errors.New("invitation is no longer active")
	ErrTokenInvalid        = errors.New("invitation token is malformed or has an invalid signature")
)
