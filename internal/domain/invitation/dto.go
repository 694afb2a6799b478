package invitation

import (
	"strconv"

	"github.com/telecare/consult-gate/internal/domain/fingerprint"
	"github.com/telecare/consult-gate/internal/pkg/validator"
)

const maxUsesLimit = 10

// CreateRequest - POST /api/v1/invitations
type CreateRequest struct {
	RoomName       string  `json:"roomName"`
	EmailAllowed   string  `json:"emailAllowed"`
	PhoneAllowed   *string `json:"phoneAllowed,omitempty"`
	ExpiresInHours int     `json:"expiresInHours"`
	MaxUses        *int    `json:"maxUses,omitempty"`
	SendEmail      bool    `json:"sendEmail,omitempty"`
	CreatedBy      string  `json:"-"` // From doctor session
}

// Validate checks the request; maxHours bounds expiresInHours
func (r *CreateRequest) Validate(maxHours int) error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.RoomName) {
		errs = append(errs, validator.ValidationError{
			Field:   "roomName",
			Message: "roomName is required",
		})
	} else if !validator.IsValidRoomName(r.RoomName) {
		errs = append(errs, validator.ValidationError{
			Field:   "roomName",
			Message: "roomName may only contain letters, digits, '-', '_' and '.'",
		})
	}

	if validator.IsEmpty(r.EmailAllowed) {
		errs = append(errs, validator.ValidationError{
			Field:   "emailAllowed",
			Message: "emailAllowed is required",
		})
	} else if !validator.IsValidEmail(NormalizeEmail(r.EmailAllowed)) {
		errs = append(errs, validator.ValidationError{
			Field:   "emailAllowed",
			Message: "emailAllowed format is invalid",
		})
	}

	if r.PhoneAllowed != nil && !validator.IsEmpty(*r.PhoneAllowed) && !validator.IsValidPhoneNumber(*r.PhoneAllowed) {
		errs = append(errs, validator.ValidationError{
			Field:   "phoneAllowed",
			Message: "phoneAllowed format is invalid",
		})
	}

	if r.ExpiresInHours <= 0 || r.ExpiresInHours > maxHours {
		errs = append(errs, validator.ValidationError{
			Field:   "expiresInHours",
			Message: "expiresInHours must be between 1 and " + strconv.Itoa(maxHours),
		})
	}

	if r.MaxUses != nil && (*r.MaxUses < 1 || *r.MaxUses > maxUsesLimit) {
		errs = append(errs, validator.ValidationError{
			Field:   "maxUses",
			Message: "maxUses must be between 1 and " + strconv.Itoa(maxUsesLimit),
		})
	}

	if validator.IsEmpty(r.CreatedBy) {
		errs = append(errs, validator.ValidationError{
			Field:   "createdBy",
			Message: "createdBy is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// CreateResponse for a newly issued invitation
type CreateResponse struct {
	InvitationID string `json:"invitationId"`
	Token        string `json:"token"`
	InviteURL    string `json:"inviteUrl"`
	ExpiresAt    string `json:"expiresAt"`
}

// ValidateRequest - POST /api/v1/invitations/validate
type ValidateRequest struct {
	Token             string                  `json:"token"`
	DeviceFingerprint fingerprint.Fingerprint `json:"deviceFingerprint"`
	Email             string                  `json:"email,omitempty"`
	DisplayName       string                  `json:"displayName,omitempty"`
	RemoteAddr        string                  `json:"-"`
}

// ValidateResponse is the wire shape of a Decision
type ValidateResponse struct {
	Success      bool     `json:"success"`
	LiveKitToken string   `json:"liveKitToken,omitempty"`
	RoomName     string   `json:"roomName,omitempty"`
	ServerURL    string   `json:"serverUrl,omitempty"`
	Error        string   `json:"error,omitempty"`
	Message      string   `json:"message,omitempty"`
	Violations   []string `json:"violations,omitempty"`
}

// Decision is the outcome of a validation. It never carries an error: infra
// failures surface as ReasonUnknown.
type Decision struct {
	OK           bool
	Reason       Reason
	Detail       string // log-only, never sent to the client
	InvitationID string
	RoomName     string
	Credential   string
	ExpiresAt    string
	MaskedEmail  string
	Violations   []Violation
}

// Response converts a decision into its wire shape
func (d Decision) Response(serverURL string) ValidateResponse {
	if d.OK {
		return ValidateResponse{
			Success:      true,
			LiveKitToken: d.Credential,
			RoomName:     d.RoomName,
			ServerURL:    serverURL,
		}
	}
	resp := ValidateResponse{
		Success: false,
		Error:   string(d.Reason),
		Message: d.Reason.Message(),
	}
	for _, v := range d.Violations {
		resp.Violations = append(resp.Violations, string(v.Kind))
	}
	return resp
}

// PeekResponse - GET /api/v1/invitations/peek
type PeekResponse struct {
	InvitationID string `json:"invitationId"`
	RoomName     string `json:"roomName"`
	MaskedEmail  string `json:"maskedEmail"`
	ExpiresAt    string `json:"expiresAt"`
}

// InvitationResponse - doctor-facing view of an invitation
type InvitationResponse struct {
	ID           string  `json:"id"`
	RoomName     string  `json:"roomName"`
	EmailAllowed string  `json:"emailAllowed"`
	PhoneAllowed *string `json:"phoneAllowed,omitempty"`
	Status       Status  `json:"status"`
	MaxUses      int     `json:"maxUses"`
	UseCount     int     `json:"useCount"`
	CreatedBy    string  `json:"createdBy"`
	DevicePinned bool    `json:"devicePinned"`
	CreatedAt    string  `json:"createdAt"`
	ExpiresAt    string  `json:"expiresAt"`
	UsedAt       *string `json:"usedAt,omitempty"`
	RevokedAt    *string `json:"revokedAt,omitempty"`
}

// ListRequest - GET /api/v1/invitations
type ListRequest struct {
	CreatedBy string
	Status    string
}

func (r *ListRequest) Validate() error {
	if r.Status != "" && !Status(r.Status).IsValid() {
		return validator.ValidationErrors{{
			Field:   "status",
			Message: "status must be one of active, used, expired, revoked",
		}}
	}
	return nil
}

// DenialResponse - GET /access-denied
type DenialResponse struct {
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Denial resolves a raw reason query value. Unrecognized values get the
// generic message and are not echoed back.
func Denial(raw string) DenialResponse {
	r, ok := ParseReason(raw)
	if !ok {
		return DenialResponse{Message: MessageFor(raw)}
	}
	return DenialResponse{Reason: string(r), Message: r.Message(), Retryable: r.IsRetryable()}
}

// StatusEvent is pushed to the issuing doctor when an invitation changes
type StatusEvent struct {
	InvitationID string   `json:"invitationId"`
	RoomName     string   `json:"roomName"`
	Status       Status   `json:"status"`
	UseCount     int      `json:"useCount"`
	Reason       string   `json:"reason,omitempty"`
	Violations   []string `json:"violations,omitempty"`
	OccurredAt   string   `json:"occurredAt"`
}
