package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/pkg/jwt"
)

// janitorStub only implements the sweep operations
type janitorStub struct {
	invitation.InvitationService
	expired atomic.Int32
	purged  atomic.Int32
}

func (j *janitorStub) ExpireStale(context.Context) error {
	j.expired.Add(1)
	return nil
}

func (j *janitorStub) PurgeOld(context.Context) error {
	j.purged.Add(1)
	return errors.New("store unavailable")
}

func TestInvitationJobs_Register(t *testing.T) {
	stub := &janitorStub{}
	scheduler := NewScheduler()
	NewInvitationJobs(stub, time.Minute, time.Second).RegisterJobs(scheduler)

	assert.Equal(t, []string{"expire_stale_invitations", "purge_old_invitations"}, scheduler.Jobs())

	scheduler.RunOnce(context.Background())
	assert.Equal(t, int32(1), stub.expired.Load())
	assert.Equal(t, int32(1), stub.purged.Load())
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	var runs atomic.Int32
	scheduler := NewScheduler()
	scheduler.AddJob("tick", 10*time.Millisecond, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	scheduler.Start()
	scheduler.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	scheduler.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestScheduler_JobTimeout(t *testing.T) {
	scheduler := NewScheduler()
	done := make(chan error, 1)
	scheduler.AddJob("slow", time.Hour, 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	})

	scheduler.RunOnce(context.Background())
	assert.ErrorIs(t, <-done, context.DeadlineExceeded)
}

func TestSessionJobs_PrunesExpiredRevocations(t *testing.T) {
	jwtService := jwt.NewJWTService("session-secret", "1h")
	jwtService.RevokeToken("revoked.session.token")

	jobs := NewSessionJobs(jwtService, time.Minute)
	scheduler := NewScheduler()
	jobs.RegisterJobs(scheduler)
	assert.Equal(t, []string{"prune_revoked_sessions"}, scheduler.Jobs())

	scheduler.RunOnce(context.Background())
	assert.True(t, jwtService.IsTokenRevoked("revoked.session.token"))

	jobs.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	scheduler.RunOnce(context.Background())
	assert.False(t, jwtService.IsTokenRevoked("revoked.session.token"))
}
