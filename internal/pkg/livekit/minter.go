package livekit

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/telecare/consult-gate/internal/domain/room"
)

// VideoGrant mirrors the LiveKit "video" claim
type VideoGrant struct {
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	Room           string `json:"room,omitempty"`
	RoomAdmin      bool   `json:"roomAdmin,omitempty"`
	RoomCreate     bool   `json:"roomCreate,omitempty"`
	RoomRecord     bool   `json:"roomRecord,omitempty"`
	CanPublish     *bool  `json:"canPublish,omitempty"`
	CanSubscribe   *bool  `json:"canSubscribe,omitempty"`
	CanPublishData *bool  `json:"canPublishData,omitempty"`
}

// AccessClaims is the LiveKit access token payload
type AccessClaims struct {
	jwt.RegisteredClaims
	Name     string     `json:"name,omitempty"`
	Video    VideoGrant `json:"video"`
	Metadata string     `json:"metadata,omitempty"`
}

// Minter signs LiveKit access tokens with an API key/secret pair
type Minter struct {
	apiKey    string
	apiSecret []byte
	now       func() time.Time
}

// NewMinter returns a room.CredentialMinter for the given API credentials
func NewMinter(apiKey, apiSecret string) *Minter {
	return &Minter{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		now:       time.Now,
	}
}

// Mint implements room.CredentialMinter.
func (m *Minter) Mint(grant room.Grant) (string, error) {
	if strings.TrimSpace(grant.Room) == "" {
		return "", room.ErrRoomRequired
	}
	if strings.TrimSpace(grant.Identity) == "" {
		return "", room.ErrIdentityRequired
	}
	if grant.TTL <= 0 {
		return "", fmt.Errorf("grant ttl must be positive, got %s", grant.TTL)
	}

	allow := true
	video := VideoGrant{
		RoomJoin:       true,
		Room:           grant.Room,
		CanPublish:     &allow,
		CanSubscribe:   &allow,
		CanPublishData: &allow,
	}
	switch grant.Role {
	case room.RolePatient:
	case room.RoleDoctor:
		video.RoomAdmin = true
		video.RoomCreate = true
	default:
		return "", fmt.Errorf("%w: %q", room.ErrUnknownRole, grant.Role)
	}

	now := m.now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   grant.Identity,
			ID:        grant.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(grant.TTL)),
		},
		Name:     grant.Name,
		Video:    video,
		Metadata: fmt.Sprintf(`{"role":%q}`, grant.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign video grant: %w", err)
	}
	return tokenString, nil
}
