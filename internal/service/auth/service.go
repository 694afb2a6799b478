package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/telecare/consult-gate/internal/domain/auth"
	"github.com/telecare/consult-gate/internal/pkg/jwt"
)

type AuthServiceImpl struct {
	jwt.Service
	allowed map[string]struct{}
}

// NewAuthService creates a doctor auth service. Only emails in doctorEmails may log in.
func NewAuthService(jwtService jwt.Service, doctorEmails []string) auth.AuthService {
	allowed := make(map[string]struct{}, len(doctorEmails))
	for _, email := range doctorEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			allowed[email] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		slog.Warn("DOCTOR_EMAILS is empty, no doctor will be able to log in")
	}
	return &AuthServiceImpl{Service: jwtService, allowed: allowed}
}

// LoginWithGoogle implements auth.AuthService.
func (a *AuthServiceImpl) LoginWithGoogle(ctx context.Context, req auth.GoogleLoginRequest) (auth.TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return auth.TokenResponse{}, err
	}
	if !req.VerifiedEmail {
		return auth.TokenResponse{}, auth.ErrEmailNotVerified
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, ok := a.allowed[email]; !ok {
		slog.Warn("Doctor login rejected", "google_id", req.GoogleID)
		return auth.TokenResponse{}, auth.ErrDoctorNotAllowed
	}

	var tokenResponse auth.TokenResponse
	var err error
	tokenResponse.AccessToken, tokenResponse.AccessTokenExpiresIn, err = a.Service.GenerateAccessToken(email, email)
	if err != nil {
		return auth.TokenResponse{}, fmt.Errorf("failed to create access token: %w", err)
	}
	tokenResponse.DoctorID = email

	slog.Info("Doctor logged in via Google OAuth", "google_id", req.GoogleID)
	return tokenResponse, nil
}

// Logout implements auth.AuthService.
func (a *AuthServiceImpl) Logout(ctx context.Context, token string) error {
	if token == "" {
		return auth.ErrInvalidToken
	}
	if !a.Service.IsTokenRevoked(token) {
		a.Service.RevokeToken(token)
	}
	return nil
}
