package invitation

import (
	"context"
	"time"

	"github.com/telecare/consult-gate/internal/domain/fingerprint"
)

// ConsumeParams describes a single active -> used (or use_count+1) transition
type ConsumeParams struct {
	ID          string
	Now         time.Time
	ConsumedBy  string
	Fingerprint fingerprint.Pinned
}

// InvitationRepository defines the interface for invitation data access
type InvitationRepository interface {
	// Create inserts a new invitation record
	Create(ctx context.Context, inv Invitation) (Invitation, error)

	// GetByID retrieves an invitation, ErrInvitationNotFound when missing
	GetByID(ctx context.Context, id string) (Invitation, error)

	// ListByCreator lists invitations issued by a doctor, newest first. A nil status lists all.
	ListByCreator(ctx context.Context, createdBy string, status *Status) ([]Invitation, error)

	// Consume atomically records one use if the invitation is still active, unexhausted and
	// unexpired at p.Now. The last allowed use flips the status to used. Returns
	// ErrInvitationNotActive when the conditional update matched nothing.
	Consume(ctx context.Context, p ConsumeParams) (Invitation, error)

	// MarkExpired flips an active invitation to expired; no-op otherwise
	MarkExpired(ctx context.Context, id string, now time.Time) error

	// MarkRevoked flips an active invitation owned by createdBy to revoked
	MarkRevoked(ctx context.Context, id, createdBy string, now time.Time) (Invitation, error)

	// Delete removes an invitation owned by createdBy
	Delete(ctx context.Context, id, createdBy string) error

	// ExpireStale flips every active invitation past its expiry to expired
	ExpireStale(ctx context.Context, now time.Time) (int64, error)

	// PurgeBefore deletes non-active invitations that expired before cutoff
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// RecordViolations appends audit entries
	RecordViolations(ctx context.Context, records []ViolationRecord) error
}
