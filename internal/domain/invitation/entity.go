package invitation

import (
	"strings"
	"time"

	"github.com/telecare/consult-gate/internal/domain/fingerprint"
)

// Status represents the status of an invitation
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Invitation binds a patient identity to a video room for a bounded time window.
type Invitation struct {
	ID               string
	RoomName         string
	EmailAllowed     string
	PhoneAllowed     *string
	Status           Status
	MaxUses          int
	UseCount         int
	CreatedBy        string
	BoundFingerprint *fingerprint.Pinned
	ConsumedBy       *string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UsedAt           *time.Time
	RevokedAt        *time.Time
	UpdatedAt        time.Time
}

// IsExpiredAt checks the store-side expiry against now
func (i *Invitation) IsExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// IsExhausted reports whether every allowed use has been spent
func (i *Invitation) IsExhausted() bool {
	return i.UseCount >= i.MaxUses
}

// MatchesIdentity compares a claimed identity against the bound email
// (case-insensitive) or the bound phone number (digits only).
func (i *Invitation) MatchesIdentity(claimed string) bool {
	claimed = strings.TrimSpace(claimed)
	if claimed == "" {
		return false
	}
	if strings.EqualFold(claimed, i.EmailAllowed) {
		return true
	}
	if i.PhoneAllowed != nil && *i.PhoneAllowed != "" {
		return NormalizePhone(claimed) != "" && NormalizePhone(claimed) == NormalizePhone(*i.PhoneAllowed)
	}
	return false
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps a leading plus and digits only
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskEmail hides most of the local part, e.g. "j***@example.com"
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// Violation is a fingerprint or geo mismatch observed during a validation.
type Violation struct {
	Kind      Reason
	Expected  string
	Presented string
}

// ViolationRecord is the persisted audit entry for a Violation
type ViolationRecord struct {
	InvitationID    string
	Kind            Reason
	FingerprintHash string
	Detail          string
	Denied          bool
	OccurredAt      time.Time
}
