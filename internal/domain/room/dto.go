package room

import "github.com/telecare/consult-gate/internal/pkg/validator"

// DoctorTokenRequest - POST /api/v1/rooms/{room}/token
type DoctorTokenRequest struct {
	Room     string `json:"-"` // From Chi URL param
	Name     string `json:"name"`
	DoctorID string `json:"-"` // From doctor session
}

func (r *DoctorTokenRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.Room) {
		errs = append(errs, validator.ValidationError{
			Field:   "room",
			Message: "room is required",
		})
	} else if !validator.IsValidRoomName(r.Room) {
		errs = append(errs, validator.ValidationError{
			Field:   "room",
			Message: "room format is invalid",
		})
	}

	if validator.IsEmpty(r.Name) {
		errs = append(errs, validator.ValidationError{
			Field:   "name",
			Message: "name is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// TokenResponse carries a signed video grant
type TokenResponse struct {
	Token     string `json:"token"`
	RoomName  string `json:"roomName"`
	ServerURL string `json:"serverUrl,omitempty"`
}
