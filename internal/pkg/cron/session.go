package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/telecare/consult-gate/internal/pkg/jwt"
)

// SessionJobs contains the doctor session janitor jobs
type SessionJobs struct {
	jwtService jwt.Service
	interval   time.Duration
	now        func() time.Time
}

// NewSessionJobs creates session cron jobs
func NewSessionJobs(jwtService jwt.Service, interval time.Duration) *SessionJobs {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SessionJobs{jwtService: jwtService, interval: interval, now: time.Now}
}

// RegisterJobs registers the session cron jobs
func (j *SessionJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("prune_revoked_sessions", j.interval, 0, j.PruneRevokedSessions)
}

// PruneRevokedSessions drops revocations whose tokens have already expired
func (j *SessionJobs) PruneRevokedSessions(ctx context.Context) error {
	if n := j.jwtService.PruneRevoked(j.now()); n > 0 {
		slog.Info("Pruned revoked session tokens", "count", n)
	}
	return nil
}
