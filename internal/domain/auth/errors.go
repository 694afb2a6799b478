package auth

import "errors"

var (
	ErrDoctorNotAllowed         = errors.New("account is not on the doctor allow-list")
	ErrEmailNotVerified         = errors.New("email not verified")
	ErrInvalidToken             = errors.New("invalid or expired token")
	ErrTokenRevoked             = errors.New("token has been revoked")
	ErrGoogleAccessDeniedByUser = errors.New("google access denied by user")
	ErrStateCookieNotFound      = errors.New("state cookie not found")
	ErrStateCookieEmpty         = errors.New("state cookie is empty")
	ErrStateParamEmpty          = errors.New("state parameter is empty")
	ErrStateMismatch            = errors.New("state mismatch")
	ErrCodeValueEmpty           = errors.New("authorization code is empty")
)
