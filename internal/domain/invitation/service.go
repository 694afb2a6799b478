package invitation

import (
	"context"
	"time"
)

// TokenClaims is what an invitation token carries
type TokenClaims struct {
	InvitationID string
	ExpiresAt    time.Time
}

// TokenSigner mints and verifies invitation tokens. Verify checks shape and
// signature only; expiry is left to the caller so it can be reported apart.
type TokenSigner interface {
	Sign(invitationID string, expiresAt time.Time) (string, error)
	Verify(token string) (TokenClaims, error)
}

// InvitationService defines the interface for invitation business logic
type InvitationService interface {
	// Create issues a new invitation and its token
	Create(ctx context.Context, req CreateRequest) (CreateResponse, error)

	// Validate runs the full gate sequence and consumes the invitation on success
	Validate(ctx context.Context, req ValidateRequest) Decision

	// Peek runs the read-only gates without consuming
	Peek(ctx context.Context, token string) Decision

	// List lists invitations issued by a doctor
	List(ctx context.Context, req ListRequest) ([]InvitationResponse, error)

	// Get returns one invitation owned by createdBy
	Get(ctx context.Context, id, createdBy string) (InvitationResponse, error)

	// Revoke revokes an active invitation owned by createdBy
	Revoke(ctx context.Context, id, createdBy string) (InvitationResponse, error)

	// Delete removes an invitation owned by createdBy
	Delete(ctx context.Context, id, createdBy string) error

	// ExpireStale flips overdue active invitations to expired
	ExpireStale(ctx context.Context) error

	// PurgeOld deletes invitations past the retention period
	PurgeOld(ctx context.Context) error
}
