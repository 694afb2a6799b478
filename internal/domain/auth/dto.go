package auth

import "github.com/telecare/consult-gate/internal/pkg/validator"

// GoogleLoginRequest is the identity returned by the Google userinfo endpoint
type GoogleLoginRequest struct {
	Email         string
	GoogleID      string
	VerifiedEmail bool
}

func (r *GoogleLoginRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.Email) {
		errs = append(errs, validator.ValidationError{
			Field:   "email",
			Message: "email is required",
		})
	} else if !validator.IsValidEmail(r.Email) {
		errs = append(errs, validator.ValidationError{
			Field:   "email",
			Message: "email format is invalid",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// TokenResponse carries a doctor session token
type TokenResponse struct {
	AccessToken          string `json:"access_token"`
	AccessTokenExpiresIn int64  `json:"access_token_expires_in"`
	DoctorID             string `json:"doctor_id"`
}
