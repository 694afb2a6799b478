package cron

import (
	"context"
	"time"

	"github.com/telecare/consult-gate/internal/domain/invitation"
)

// InvitationJobs contains the invitation janitor jobs
type InvitationJobs struct {
	invitationService invitation.InvitationService
	interval          time.Duration
	timeout           time.Duration
}

// NewInvitationJobs creates invitation cron jobs
func NewInvitationJobs(invitationService invitation.InvitationService, interval, timeout time.Duration) *InvitationJobs {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &InvitationJobs{
		invitationService: invitationService,
		interval:          interval,
		timeout:           timeout,
	}
}

// RegisterJobs registers all invitation-related cron jobs
func (j *InvitationJobs) RegisterJobs(scheduler *Scheduler) {
	// active -> expired once expires_at has passed
	scheduler.AddJob("expire_stale_invitations", j.interval, j.timeout, j.ExpireStaleInvitations)

	// Retention sweep runs less often
	scheduler.AddJob("purge_old_invitations", 6*j.interval, j.timeout, j.PurgeOldInvitations)
}

// ExpireStaleInvitations flips overdue active invitations to expired
func (j *InvitationJobs) ExpireStaleInvitations(ctx context.Context) error {
	return j.invitationService.ExpireStale(ctx)
}

// PurgeOldInvitations deletes terminal invitations past the retention period
func (j *InvitationJobs) PurgeOldInvitations(ctx context.Context) error {
	return j.invitationService.PurgeOld(ctx)
}
