package auth

import "context"

// AuthService authenticates doctors. Doctors never pass through the invitation flow.
type AuthService interface {
	LoginWithGoogle(ctx context.Context, req GoogleLoginRequest) (TokenResponse, error)
	Logout(ctx context.Context, token string) error
}
