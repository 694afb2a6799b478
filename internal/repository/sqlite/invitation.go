package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/telecare/consult-gate/internal/domain/fingerprint"
	"github.com/telecare/consult-gate/internal/domain/invitation"
)

//go:embed schema.sql
var schemaSQL string

const invitationColumns = `
	id, room_name, email_allowed, phone_allowed, status, max_uses, use_count, created_by,
	bound_fp_hash, bound_browser, bound_country, consumed_by,
	created_at, expires_at, used_at, revoked_at, updated_at`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

func fromNullString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}

type invitationRepositoryImpl struct {
	db *sql.DB
}

// NewInvitationRepository returns an invitation.InvitationRepository over an
// embedded SQLite database and applies the schema.
func NewInvitationRepository(ctx context.Context, db *sql.DB) (invitation.InvitationRepository, error) {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &invitationRepositoryImpl{db: db}, nil
}

func scanInvitation(row rowScanner) (invitation.Invitation, error) {
	var inv invitation.Invitation
	var (
		status                          string
		phone, fpHash, fpBrowser        sql.NullString
		fpCountry, consumedBy           sql.NullString
		createdAt, expiresAt, updatedAt int64
		usedAt, revokedAt               sql.NullInt64
	)

	err := row.Scan(
		&inv.ID, &inv.RoomName, &inv.EmailAllowed, &phone, &status,
		&inv.MaxUses, &inv.UseCount, &inv.CreatedBy,
		&fpHash, &fpBrowser, &fpCountry, &consumedBy,
		&createdAt, &expiresAt, &usedAt, &revokedAt, &updatedAt,
	)
	if err != nil {
		return inv, err
	}

	inv.Status = invitation.Status(status)
	inv.PhoneAllowed = fromNullString(phone)
	inv.ConsumedBy = fromNullString(consumedBy)
	inv.CreatedAt = fromMillis(createdAt)
	inv.ExpiresAt = fromMillis(expiresAt)
	inv.UpdatedAt = fromMillis(updatedAt)
	inv.UsedAt = fromNullMillis(usedAt)
	inv.RevokedAt = fromNullMillis(revokedAt)

	if fpHash.Valid {
		inv.BoundFingerprint = &fingerprint.Pinned{
			Hash:          fpHash.String,
			BrowserFamily: fpBrowser.String,
			Country:       fpCountry.String,
		}
	}
	return inv, nil
}

// Create implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) Create(ctx context.Context, inv invitation.Invitation) (invitation.Invitation, error) {
	var phone sql.NullString
	if inv.PhoneAllowed != nil {
		phone = nullString(*inv.PhoneAllowed)
	}

	query := `
		INSERT INTO invitations (
			id, room_name, email_allowed, phone_allowed, status, max_uses, use_count,
			created_by, created_at, expires_at, updated_at
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, 0, ?7, ?8, ?9, ?8)
		RETURNING ` + invitationColumns

	created, err := scanInvitation(r.db.QueryRowContext(ctx, query,
		inv.ID, inv.RoomName, inv.EmailAllowed, phone, string(inv.Status), inv.MaxUses,
		inv.CreatedBy, toMillis(inv.CreatedAt), toMillis(inv.ExpiresAt),
	))
	if err != nil {
		return invitation.Invitation{}, fmt.Errorf("failed to create invitation: %w", err)
	}
	return created, nil
}

// GetByID implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) GetByID(ctx context.Context, id string) (invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE id = ?1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inv, invitation.ErrInvitationNotFound
		}
		return inv, fmt.Errorf("failed to get invitation by id: %w", err)
	}
	return inv, nil
}

// ListByCreator implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) ListByCreator(ctx context.Context, createdBy string, status *invitation.Status) ([]invitation.Invitation, error) {
	var statusArg sql.NullString
	if status != nil {
		statusArg = nullString(string(*status))
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM invitations
		WHERE created_by = ?1 AND (?2 IS NULL OR status = ?2)
		ORDER BY created_at DESC, id DESC
	`, createdBy, statusArg)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return invitations, nil
}

// Consume implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) Consume(ctx context.Context, p invitation.ConsumeParams) (invitation.Invitation, error) {
	now := toMillis(p.Now)

	inv, err := scanInvitation(r.db.QueryRowContext(ctx, `
		UPDATE invitations
		SET use_count     = use_count + 1,
		    status        = CASE WHEN use_count + 1 >= max_uses THEN 'used' ELSE status END,
		    used_at       = ?2,
		    consumed_by   = ?3,
		    bound_fp_hash = COALESCE(bound_fp_hash, ?4),
		    bound_browser = COALESCE(bound_browser, ?5),
		    bound_country = COALESCE(bound_country, ?6),
		    updated_at    = ?2
		WHERE id = ?1 AND status = 'active' AND use_count < max_uses AND expires_at > ?2
		RETURNING `+invitationColumns,
		p.ID, now, p.ConsumedBy,
		nullString(p.Fingerprint.Hash), nullString(p.Fingerprint.BrowserFamily), nullString(p.Fingerprint.Country),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return inv, invitation.ErrInvitationNotActive
		}
		return inv, fmt.Errorf("failed to consume invitation: %w", err)
	}
	return inv, nil
}

// MarkExpired implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) MarkExpired(ctx context.Context, id string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE invitations SET status = 'expired', updated_at = ?2
		WHERE id = ?1 AND status = 'active'
	`, id, toMillis(now))
	if err != nil {
		return fmt.Errorf("failed to mark invitation as expired: %w", err)
	}
	return nil
}

// MarkRevoked implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) MarkRevoked(ctx context.Context, id, createdBy string, now time.Time) (invitation.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, `
		UPDATE invitations
		SET status = 'revoked', revoked_at = ?3, updated_at = ?3
		WHERE id = ?1 AND created_by = ?2 AND status = 'active'
		RETURNING `+invitationColumns,
		id, createdBy, toMillis(now),
	))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return invitation.Invitation{}, fmt.Errorf("failed to mark invitation as revoked: %w", err)
	}

	// Nothing matched: tell a missing invitation apart from a non-active one.
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil || current.CreatedBy != createdBy {
		return invitation.Invitation{}, invitation.ErrInvitationNotFound
	}
	return invitation.Invitation{}, invitation.ErrInvitationNotActive
}

// Delete implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) Delete(ctx context.Context, id, createdBy string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = ?1 AND created_by = ?2`, id, createdBy)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return invitation.ErrInvitationNotFound
	}
	return nil
}

// ExpireStale implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations SET status = 'expired', updated_at = ?1
		WHERE status = 'active' AND expires_at <= ?1
	`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale invitations: %w", err)
	}
	return res.RowsAffected()
}

// PurgeBefore implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM invitations WHERE status <> 'active' AND expires_at < ?1
	`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge invitations: %w", err)
	}
	return res.RowsAffected()
}

// RecordViolations implements invitation.InvitationRepository.
func (r *invitationRepositoryImpl) RecordViolations(ctx context.Context, records []invitation.ViolationRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invitation_violations (invitation_id, kind, fingerprint_hash, detail, denied, occurred_at)
			VALUES (?1, ?2, ?3, ?4, ?5, ?6)
		`, rec.InvitationID, string(rec.Kind), rec.FingerprintHash, rec.Detail, rec.Denied, toMillis(rec.OccurredAt))
		if err != nil {
			return fmt.Errorf("failed to record violation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
