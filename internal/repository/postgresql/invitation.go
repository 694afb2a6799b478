package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/telecare/consult-gate/internal/domain/fingerprint"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/pkg/database"
)

const invitationColumns = `
	id, room_name, email_allowed, phone_allowed, status, max_uses, use_count, created_by,
	bound_fp_hash, bound_browser, bound_country, consumed_by,
	created_at, expires_at, used_at, revoked_at, updated_at`

type invitationRepositoryImpl struct {
	db *database.DB
}

// NewInvitationRepository creates a new invitation repository instance
func NewInvitationRepository(db *database.DB) invitation.InvitationRepository {
	return &invitationRepositoryImpl{db: db}
}

func scanInvitation(row pgx.Row) (invitation.Invitation, error) {
	var inv invitation.Invitation
	var fpHash, fpBrowser, fpCountry *string

	err := row.Scan(
		&inv.ID, &inv.RoomName, &inv.EmailAllowed, &inv.PhoneAllowed, &inv.Status,
		&inv.MaxUses, &inv.UseCount, &inv.CreatedBy,
		&fpHash, &fpBrowser, &fpCountry, &inv.ConsumedBy,
		&inv.CreatedAt, &inv.ExpiresAt, &inv.UsedAt, &inv.RevokedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return inv, err
	}

	if fpHash != nil {
		inv.BoundFingerprint = &fingerprint.Pinned{Hash: *fpHash}
		if fpBrowser != nil {
			inv.BoundFingerprint.BrowserFamily = *fpBrowser
		}
		if fpCountry != nil {
			inv.BoundFingerprint.Country = *fpCountry
		}
	}
	return inv, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) Create(ctx context.Context, inv invitation.Invitation) (invitation.Invitation, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO invitations (
			id, room_name, email_allowed, phone_allowed, status, max_uses, use_count,
			created_by, created_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $8)
		RETURNING ` + invitationColumns

	created, err := scanInvitation(q.QueryRow(ctx, query,
		inv.ID, inv.RoomName, inv.EmailAllowed, inv.PhoneAllowed, inv.Status, inv.MaxUses,
		inv.CreatedBy, inv.CreatedAt, inv.ExpiresAt,
	))
	if err != nil {
		return invitation.Invitation{}, fmt.Errorf("failed to create invitation: %w", err)
	}

	return created, nil
}

// GetByID implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) GetByID(ctx context.Context, id string) (invitation.Invitation, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`

	inv, err := scanInvitation(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inv, invitation.ErrInvitationNotFound
		}
		return inv, fmt.Errorf("failed to get invitation by id: %w", err)
	}

	return inv, nil
}

// ListByCreator implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) ListByCreator(ctx context.Context, createdBy string, status *invitation.Status) ([]invitation.Invitation, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE created_by = $1 AND ($2::text IS NULL OR status = $2::text)
		ORDER BY created_at DESC
	`

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	rows, err := q.Query(ctx, query, createdBy, statusArg)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := []invitation.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return invitations, nil
}

// Consume implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) Consume(ctx context.Context, p invitation.ConsumeParams) (invitation.Invitation, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE invitations
		SET use_count     = use_count + 1,
		    status        = CASE WHEN use_count + 1 >= max_uses THEN 'used' ELSE status END,
		    used_at       = $2,
		    consumed_by   = $3,
		    bound_fp_hash = COALESCE(bound_fp_hash, $4),
		    bound_browser = COALESCE(bound_browser, $5),
		    bound_country = COALESCE(bound_country, $6),
		    updated_at    = $2
		WHERE id = $1 AND status = 'active' AND use_count < max_uses AND expires_at > $2
		RETURNING ` + invitationColumns

	inv, err := scanInvitation(q.QueryRow(ctx, query,
		p.ID, p.Now, p.ConsumedBy,
		nullIfEmpty(p.Fingerprint.Hash), nullIfEmpty(p.Fingerprint.BrowserFamily), nullIfEmpty(p.Fingerprint.Country),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inv, invitation.ErrInvitationNotActive
		}
		return inv, fmt.Errorf("failed to consume invitation: %w", err)
	}

	return inv, nil
}

// MarkExpired implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) MarkExpired(ctx context.Context, id string, now time.Time) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE invitations
		SET status = 'expired', updated_at = $2
		WHERE id = $1 AND status = 'active'
	`

	if _, err := q.Exec(ctx, query, id, now); err != nil {
		return fmt.Errorf("failed to mark invitation as expired: %w", err)
	}
	return nil
}

// MarkRevoked implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) MarkRevoked(ctx context.Context, id, createdBy string, now time.Time) (invitation.Invitation, error) {
	var revoked invitation.Invitation

	err := WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		q := GetQuerier(txCtx, r.db)

		current, err := scanInvitation(q.QueryRow(txCtx,
			`SELECT `+invitationColumns+` FROM invitations WHERE id = $1 AND created_by = $2 FOR UPDATE`,
			id, createdBy,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return invitation.ErrInvitationNotFound
			}
			return fmt.Errorf("failed to lock invitation: %w", err)
		}
		if current.Status != invitation.StatusActive {
			return invitation.ErrInvitationNotActive
		}

		revoked, err = scanInvitation(q.QueryRow(txCtx, `
			UPDATE invitations
			SET status = 'revoked', revoked_at = $2, updated_at = $2
			WHERE id = $1
			RETURNING `+invitationColumns,
			id, now,
		))
		if err != nil {
			return fmt.Errorf("failed to mark invitation as revoked: %w", err)
		}
		return nil
	})
	if err != nil {
		return invitation.Invitation{}, err
	}

	return revoked, nil
}

// Delete implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) Delete(ctx context.Context, id, createdBy string) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `DELETE FROM invitations WHERE id = $1 AND created_by = $2`, id, createdBy)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return invitation.ErrInvitationNotFound
	}
	return nil
}

// ExpireStale implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE invitations
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeBefore implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		DELETE FROM invitations
		WHERE status <> 'active' AND expires_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecordViolations implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) RecordViolations(ctx context.Context, records []invitation.ViolationRecord) error {
	if len(records) == 0 {
		return nil
	}

	return WithTransaction(ctx, r.db, func(txCtx context.Context) error {
		q := GetQuerier(txCtx, r.db)
		for _, rec := range records {
			_, err := q.Exec(txCtx, `
				INSERT INTO invitation_violations (invitation_id, kind, fingerprint_hash, detail, denied, occurred_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, rec.InvitationID, string(rec.Kind), rec.FingerprintHash, rec.Detail, rec.Denied, rec.OccurredAt)
			if err != nil {
				return fmt.Errorf("failed to record violation: %w", err)
			}
		}
		return nil
	})
}
