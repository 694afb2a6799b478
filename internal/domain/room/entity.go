package room

import "time"

// Role decides which grant shape a participant receives
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Grant is the input to the session credential minter
type Grant struct {
	Identity string
	Name     string
	Room     string
	Role     Role
	TTL      time.Duration
}

// CredentialMinter signs video-session grants. It is a pure function of its
// input and the signing secret.
type CredentialMinter interface {
	Mint(grant Grant) (string, error)
}
