package jwt

import (
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/pkg/validator"
)

const (
	inviteTokenType   = "invite"
	claimInvitationID = "inv"
	claimType         = "typ"
)

// InviteTokens signs compact {inv, exp} invitation tokens with a key that is
// never shared with doctor sessions.
type InviteTokens struct {
	tokenAuth *jwtauth.JWTAuth
	key       []byte
	now       func() time.Time
}

// NewInviteTokens creates an HS256 invitation token signer
func NewInviteTokens(secretKey string) *InviteTokens {
	return &InviteTokens{
		tokenAuth: jwtauth.New("HS256", []byte(secretKey), nil),
		key:       []byte(secretKey),
		now:       time.Now,
	}
}

// Sign implements invitation.TokenSigner.
func (t *InviteTokens) Sign(invitationID string, expiresAt time.Time) (string, error) {
	if invitationID == "" {
		return "", fmt.Errorf("invitation id is required")
	}
	_, tokenString, err := t.tokenAuth.Encode(map[string]interface{}{
		claimInvitationID: invitationID,
		claimType:         inviteTokenType,
		"iat":             t.now().Unix(),
		"exp":             expiresAt.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation token: %w", err)
	}
	return tokenString, nil
}

// Verify implements invitation.TokenSigner. Claims validation is disabled on
// parse so an expired but authentic token is reported apart from a forged one.
func (t *InviteTokens) Verify(tokenString string) (invitation.TokenClaims, error) {
	if !validator.HasJWTShape(tokenString) {
		return invitation.TokenClaims{}, invitation.ErrTokenInvalid
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, t.key), jwt.WithValidate(false))
	if err != nil {
		return invitation.TokenClaims{}, fmt.Errorf("%w: %v", invitation.ErrTokenInvalid, err)
	}

	typ, ok := token.Get(claimType)
	if !ok || typ != inviteTokenType {
		return invitation.TokenClaims{}, invitation.ErrTokenInvalid
	}

	idVal, ok := token.Get(claimInvitationID)
	if !ok {
		return invitation.TokenClaims{}, invitation.ErrTokenInvalid
	}
	id, ok := idVal.(string)
	if !ok || id == "" {
		return invitation.TokenClaims{}, invitation.ErrTokenInvalid
	}

	if token.Expiration().IsZero() {
		return invitation.TokenClaims{}, invitation.ErrTokenInvalid
	}

	return invitation.TokenClaims{
		InvitationID: id,
		ExpiresAt:    token.Expiration(),
	}, nil
}
