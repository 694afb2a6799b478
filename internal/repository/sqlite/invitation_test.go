package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telecare/consult-gate/internal/domain/fingerprint"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/pkg/database"
)

func newTestRepo(t *testing.T) (invitation.InvitationRepository, *sql.DB) {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "invitations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewInvitationRepository(context.Background(), db)
	require.NoError(t, err)
	return repo, db
}

func countViolations(t *testing.T, db *sql.DB, invitationID string) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM invitation_violations WHERE invitation_id = ?1`, invitationID).Scan(&n)
	require.NoError(t, err)
	return n
}

func seedInvitation(t *testing.T, repo invitation.InvitationRepository, id, createdBy string, maxUses int, expiresAt time.Time) invitation.Invitation {
	t.Helper()
	now := time.Now().UTC()
	inv, err := repo.Create(context.Background(), invitation.Invitation{
		ID:           id,
		RoomName:     "consult-1",
		EmailAllowed: "patient@example.com",
		Status:       invitation.StatusActive,
		MaxUses:      maxUses,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	})
	require.NoError(t, err)
	return inv
}

func TestInvitationRepository_CreateAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	phone := "+4915112345678"

	expiresAt := time.Now().Add(time.Hour).UTC()
	created, err := repo.Create(ctx, invitation.Invitation{
		ID:           "inv-1",
		RoomName:     "consult-1",
		EmailAllowed: "patient@example.com",
		PhoneAllowed: &phone,
		Status:       invitation.StatusActive,
		MaxUses:      1,
		CreatedBy:    "doctor-1",
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    expiresAt,
	})
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusActive, created.Status)
	assert.Equal(t, 0, created.UseCount)
	assert.Nil(t, created.UsedAt)
	assert.Nil(t, created.BoundFingerprint)

	got, err := repo.GetByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "consult-1", got.RoomName)
	require.NotNil(t, got.PhoneAllowed)
	assert.Equal(t, phone, *got.PhoneAllowed)
	assert.WithinDuration(t, expiresAt, got.ExpiresAt, time.Millisecond)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, invitation.ErrInvitationNotFound)
}

func TestInvitationRepository_ConsumeIsSingleUse(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	seedInvitation(t, repo, "inv-1", "doctor-1", 1, time.Now().Add(time.Hour))

	pinned := fingerprint.Pinned{Hash: "abc", BrowserFamily: "chrome", Country: "DE"}
	used, err := repo.Consume(ctx, invitation.ConsumeParams{ID: "inv-1", Now: time.Now(), ConsumedBy: "patient@example.com", Fingerprint: pinned})
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusUsed, used.Status)
	assert.Equal(t, 1, used.UseCount)
	require.NotNil(t, used.UsedAt)
	require.NotNil(t, used.ConsumedBy)
	require.NotNil(t, used.BoundFingerprint)
	assert.Equal(t, pinned, *used.BoundFingerprint)

	_, err = repo.Consume(ctx, invitation.ConsumeParams{ID: "inv-1", Now: time.Now(), ConsumedBy: "x", Fingerprint: pinned})
	assert.ErrorIs(t, err, invitation.ErrInvitationNotActive)
}

func TestInvitationRepository_ConsumeMultiUseKeepsFirstPin(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	seedInvitation(t, repo, "inv-1", "doctor-1", 2, time.Now().Add(time.Hour))

	first, err := repo.Consume(ctx, invitation.ConsumeParams{ID: "inv-1", Now: time.Now(), ConsumedBy: "a", Fingerprint: fingerprint.Pinned{Hash: "first"}})
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusActive, first.Status)

	second, err := repo.Consume(ctx, invitation.ConsumeParams{ID: "inv-1", Now: time.Now(), ConsumedBy: "a", Fingerprint: fingerprint.Pinned{Hash: "second"}})
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusUsed, second.Status)
	assert.Equal(t, "first", second.BoundFingerprint.Hash)
}

func TestInvitationRepository_ConsumeRefusesExpired(t *testing.T) {
	repo, _ := newTestRepo(t)
	seedInvitation(t, repo, "inv-1", "doctor-1", 1, time.Now().Add(-time.Minute))

	_, err := repo.Consume(context.Background(), invitation.ConsumeParams{ID: "inv-1", Now: time.Now()})
	assert.ErrorIs(t, err, invitation.ErrInvitationNotActive)
}

func TestInvitationRepository_ConcurrentConsume(t *testing.T) {
	repo, _ := newTestRepo(t)
	seedInvitation(t, repo, "inv-1", "doctor-1", 1, time.Now().Add(time.Hour))

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, losers := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Consume(context.Background(), invitation.ConsumeParams{ID: "inv-1", Now: time.Now(), ConsumedBy: "p"})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, invitation.ErrInvitationNotActive) {
				losers++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, losers)
}

func TestInvitationRepository_Revoke(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	seedInvitation(t, repo, "inv-1", "doctor-1", 1, time.Now().Add(time.Hour))

	_, err := repo.MarkRevoked(ctx, "inv-1", "doctor-2", time.Now())
	assert.ErrorIs(t, err, invitation.ErrInvitationNotFound)

	revoked, err := repo.MarkRevoked(ctx, "inv-1", "doctor-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusRevoked, revoked.Status)
	assert.NotNil(t, revoked.RevokedAt)

	_, err = repo.MarkRevoked(ctx, "inv-1", "doctor-1", time.Now())
	assert.ErrorIs(t, err, invitation.ErrInvitationNotActive)

	_, err = repo.Consume(ctx, invitation.ConsumeParams{ID: "inv-1", Now: time.Now()})
	assert.ErrorIs(t, err, invitation.ErrInvitationNotActive)
}

func TestInvitationRepository_ListByCreator(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	seedInvitation(t, repo, "inv-1", "doctor-1", 1, time.Now().Add(time.Hour))
	seedInvitation(t, repo, "inv-2", "doctor-1", 1, time.Now().Add(time.Hour))
	seedInvitation(t, repo, "inv-3", "doctor-2", 1, time.Now().Add(time.Hour))
	_, err := repo.MarkRevoked(ctx, "inv-2", "doctor-1", time.Now())
	require.NoError(t, err)

	all, err := repo.ListByCreator(ctx, "doctor-1", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	revoked := invitation.StatusRevoked
	onlyRevoked, err := repo.ListByCreator(ctx, "doctor-1", &revoked)
	require.NoError(t, err)
	require.Len(t, onlyRevoked, 1)
	assert.Equal(t, "inv-2", onlyRevoked[0].ID)

	none, err := repo.ListByCreator(ctx, "doctor-9", nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInvitationRepository_ExpireAndPurge(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()
	seedInvitation(t, repo, "stale", "doctor-1", 1, now.Add(-48*time.Hour))
	seedInvitation(t, repo, "fresh", "doctor-1", 1, now.Add(time.Hour))

	n, err := repo.ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stale, err := repo.GetByID(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusExpired, stale.Status)

	purged, err := repo.PurgeBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.GetByID(ctx, "stale")
	assert.ErrorIs(t, err, invitation.ErrInvitationNotFound)
	_, err = repo.GetByID(ctx, "fresh")
	assert.NoError(t, err)
}

func TestInvitationRepository_MarkExpiredOnlyFromActive(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	seedInvitation(t, repo, "inv-1", "doctor-1", 1, time.Now().Add(time.Hour))
	_, err := repo.MarkRevoked(ctx, "inv-1", "doctor-1", time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.MarkExpired(ctx, "inv-1", time.Now()))
	got, err := repo.GetByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusRevoked, got.Status)
}

func TestInvitationRepository_DeleteAndViolations(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()
	seedInvitation(t, repo, "inv-1", "doctor-1", 1, time.Now().Add(time.Hour))

	err := repo.RecordViolations(ctx, []invitation.ViolationRecord{
		{InvitationID: "inv-1", Kind: invitation.ReasonWrongDevice, FingerprintHash: "h1", Denied: true, OccurredAt: time.Now()},
		{InvitationID: "inv-1", Kind: invitation.ReasonWrongCountry, FingerprintHash: "h1", Detail: "DE->FR", OccurredAt: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countViolations(t, db, "inv-1"))

	assert.ErrorIs(t, repo.Delete(ctx, "inv-1", "doctor-2"), invitation.ErrInvitationNotFound)
	require.NoError(t, repo.Delete(ctx, "inv-1", "doctor-1"))
	_, err = repo.GetByID(ctx, "inv-1")
	assert.ErrorIs(t, err, invitation.ErrInvitationNotFound)
}
