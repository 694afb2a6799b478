package response

import (
	"errors"
	"net/http"

	"github.com/telecare/consult-gate/internal/domain/auth"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/domain/room"
	"github.com/telecare/consult-gate/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth domain errors
	case errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, auth.ErrTokenRevoked):
		Unauthorized(w, "Token revoked")
	case errors.Is(err, auth.ErrEmailNotVerified):
		Forbidden(w, "Email not verified")
	case errors.Is(err, auth.ErrDoctorNotAllowed):
		Forbidden(w, "Account is not allowed to sign in")

	// Invitation domain errors
	case errors.Is(err, invitation.ErrInvitationNotFound):
		NotFound(w, "Invitation not found")
	case errors.Is(err, invitation.ErrInvitationNotActive):
		Conflict(w, "Invitation is no longer active")
	case errors.Is(err, invitation.ErrTokenInvalid):
		BadRequest(w, "Invitation token is invalid", nil)

	// Room domain errors
	case errors.Is(err, room.ErrRoomRequired), errors.Is(err, room.ErrIdentityRequired), errors.Is(err, room.ErrUnknownRole):
		BadRequest(w, err.Error(), nil)

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}

// DenyStatus maps a deny reason to its HTTP status
func DenyStatus(reason invitation.Reason) int {
	switch reason {
	case invitation.ReasonInvalidToken:
		return http.StatusBadRequest
	case invitation.ReasonInvalidLink:
		return http.StatusNotFound
	case invitation.ReasonExpired, invitation.ReasonAlreadyUsed:
		return http.StatusGone
	case invitation.ReasonWrongEmail, invitation.ReasonWrongDevice, invitation.ReasonWrongCountry,
		invitation.ReasonWrongBrowser, invitation.ReasonDirectAccess:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}
