package invitation

// Reason is the closed set of deny reasons returned to the caller. The string
// values are consumed by the denial page and must stay stable.
type Reason string

const (
	ReasonInvalidLink  Reason = "invalid-link"
	ReasonInvalidToken Reason = "invalid-token"
	ReasonDirectAccess Reason = "direct-access"
	ReasonExpired      Reason = "expired"
	ReasonAlreadyUsed  Reason = "already-used"
	ReasonWrongEmail   Reason = "wrong-email"
	ReasonWrongCountry Reason = "wrong-country"
	ReasonWrongBrowser Reason = "wrong-browser"
	ReasonWrongDevice  Reason = "wrong-device"
	ReasonUnknown      Reason = "unknown"
)

const genericDeniedMessage = "Access denied. Please contact your doctor for a new invitation link."

var reasonMessages = map[Reason]string{
	ReasonInvalidLink:  "This invitation link is not valid. Please check the link you received.",
	ReasonInvalidToken: "This invitation link is malformed or has been tampered with.",
	ReasonDirectAccess: "Consultation rooms can only be joined through an invitation link.",
	ReasonExpired:      "This invitation has expired. Please ask your doctor for a new one.",
	ReasonAlreadyUsed:  "This invitation has already been used and cannot be used again.",
	ReasonWrongEmail:   "The email address does not match the one this invitation was sent to.",
	ReasonWrongCountry: "This invitation cannot be used from your current location.",
	ReasonWrongBrowser: "This invitation must be opened in the browser it was first used with.",
	ReasonWrongDevice:  "This invitation must be opened on the device it was first used with.",
	ReasonUnknown:      "Something went wrong while checking your invitation. Please try again.",
}

// Reasons lists every deny reason in display order
func Reasons() []Reason {
	return []Reason{
		ReasonInvalidLink, ReasonInvalidToken, ReasonDirectAccess, ReasonExpired, ReasonAlreadyUsed,
		ReasonWrongEmail, ReasonWrongCountry, ReasonWrongBrowser, ReasonWrongDevice, ReasonUnknown,
	}
}

// ParseReason maps a raw string onto the closed set
func ParseReason(raw string) (Reason, bool) {
	r := Reason(raw)
	_, ok := reasonMessages[r]
	return r, ok
}

// Message returns the user-facing explanation for r
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return genericDeniedMessage
}

// MessageFor returns the explanation for a raw reason, falling back to a
// generic message for anything outside the known set.
func MessageFor(raw string) string {
	if r, ok := ParseReason(raw); ok {
		return r.Message()
	}
	return genericDeniedMessage
}

// IsRetryable reports whether the client may resubmit the same token
func (r Reason) IsRetryable() bool {
	return r == ReasonUnknown
}
