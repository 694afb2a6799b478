package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/telecare/consult-gate/internal/domain/fingerprint"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/domain/room"
	"github.com/telecare/consult-gate/internal/pkg/email"
	"github.com/telecare/consult-gate/internal/pkg/sse"
)

// Enforcement policies for device and geo mismatches
const (
	PolicyDeny = "deny"
	PolicyLog  = "log"
)

const defaultParticipantName = "Patient"

// Event names pushed to the issuing doctor
const (
	EventCreated   = "invitation.created"
	EventConsumed  = "invitation.consumed"
	EventViolation = "invitation.violation"
	EventRevoked   = "invitation.revoked"
)

// EventPublisher delivers status events to a doctor's live dashboard
type EventPublisher interface {
	Publish(topic string, event sse.Event)
}

// Config holds invitation service configuration
type Config struct {
	MaxHours        int           // upper bound for expiresInHours
	DefaultMaxUses  int           // default: 1
	FrontendURL     string        // base for inviteUrl
	PatientTokenTTL time.Duration // default: 2 hours
	DevicePolicy    string        // deny | log, default: deny
	GeoPolicy       string        // deny | log, default: log
	StoreTimeout    time.Duration // default: 5 seconds
	Retention       time.Duration // default: 30 days
	Now             func() time.Time
}

type invitationServiceImpl struct {
	repo   invitation.InvitationRepository
	tokens invitation.TokenSigner
	minter room.CredentialMinter
	mailer email.EmailService
	events EventPublisher
	config Config
}

// NewInvitationService wires the issuer, validator and management operations.
// mailer and events may be nil.
func NewInvitationService(
	repo invitation.InvitationRepository,
	tokens invitation.TokenSigner,
	minter room.CredentialMinter,
	mailer email.EmailService,
	events EventPublisher,
	cfg Config,
) invitation.InvitationService {
	if cfg.MaxHours == 0 {
		cfg.MaxHours = 168
	}
	if cfg.DefaultMaxUses == 0 {
		cfg.DefaultMaxUses = 1
	}
	if cfg.PatientTokenTTL == 0 {
		cfg.PatientTokenTTL = 2 * time.Hour
	}
	if cfg.DevicePolicy == "" {
		cfg.DevicePolicy = PolicyDeny
	}
	if cfg.GeoPolicy == "" {
		cfg.GeoPolicy = PolicyLog
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.Retention == 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")

	return &invitationServiceImpl{
		repo:   repo,
		tokens: tokens,
		minter: minter,
		mailer: mailer,
		events: events,
		config: cfg,
	}
}

func (s *invitationServiceImpl) publish(name string, inv invitation.Invitation, reason invitation.Reason, violations []invitation.Violation) {
	if s.events == nil || inv.CreatedBy == "" {
		return
	}
	event := invitation.StatusEvent{
		InvitationID: inv.ID,
		RoomName:     inv.RoomName,
		Status:       inv.Status,
		UseCount:     inv.UseCount,
		Reason:       string(reason),
		OccurredAt:   s.config.Now().UTC().Format(time.RFC3339),
	}
	for _, v := range violations {
		event.Violations = append(event.Violations, string(v.Kind))
	}
	s.events.Publish(inv.CreatedBy, sse.Event{Name: name, Data: event})
}

func (s *invitationServiceImpl) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// Create implements invitation.InvitationService.
func (s *invitationServiceImpl) Create(ctx context.Context, req invitation.CreateRequest) (invitation.CreateResponse, error) {
	if err := req.Validate(s.config.MaxHours); err != nil {
		return invitation.CreateResponse{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return invitation.CreateResponse{}, fmt.Errorf("failed to generate invitation id: %w", err)
	}

	now := s.config.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(time.Duration(req.ExpiresInHours) * time.Hour)

	maxUses := s.config.DefaultMaxUses
	if req.MaxUses != nil {
		maxUses = *req.MaxUses
	}

	var phone *string
	if req.PhoneAllowed != nil {
		if normalized := invitation.NormalizePhone(*req.PhoneAllowed); normalized != "" {
			phone = &normalized
		}
	}

	// Sign before writing so a signer failure leaves no orphan record.
	token, err := s.tokens.Sign(id.String(), expiresAt)
	if err != nil {
		return invitation.CreateResponse{}, fmt.Errorf("failed to sign invitation token: %w", err)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	inv, err := s.repo.Create(storeCtx, invitation.Invitation{
		ID:           id.String(),
		RoomName:     strings.TrimSpace(req.RoomName),
		EmailAllowed: invitation.NormalizeEmail(req.EmailAllowed),
		PhoneAllowed: phone,
		Status:       invitation.StatusActive,
		MaxUses:      maxUses,
		CreatedBy:    req.CreatedBy,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		UpdatedAt:    now,
	})
	if err != nil {
		return invitation.CreateResponse{}, fmt.Errorf("failed to create invitation: %w", err)
	}

	inviteURL := s.config.FrontendURL + "/invite/" + token

	slog.Info("Invitation created",
		"invitation_id", inv.ID,
		"room", inv.RoomName,
		"created_by", inv.CreatedBy,
		"max_uses", inv.MaxUses,
		"expires_at", inv.ExpiresAt,
	)

	s.publish(EventCreated, inv, "", nil)

	if req.SendEmail && s.mailer != nil {
		if err := s.mailer.SendInvitation(ctx, inv.EmailAllowed, inviteURL, inv.ExpiresAt); err != nil {
			slog.Error("Failed to send invitation email", "invitation_id", inv.ID, "error", err)
		}
	}

	return invitation.CreateResponse{
		InvitationID: inv.ID,
		Token:        token,
		InviteURL:    inviteURL,
		ExpiresAt:    inv.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// Validate implements invitation.InvitationService.
func (s *invitationServiceImpl) Validate(ctx context.Context, req invitation.ValidateRequest) invitation.Decision {
	decision := s.validate(ctx, req)
	s.audit(req, decision)
	return decision
}

// Peek implements invitation.InvitationService.
func (s *invitationServiceImpl) Peek(ctx context.Context, token string) invitation.Decision {
	inv, decision, ok := s.checkInvitation(ctx, token, s.config.Now())
	if !ok {
		return decision
	}
	return invitation.Decision{
		OK:           true,
		InvitationID: inv.ID,
		RoomName:     inv.RoomName,
		ExpiresAt:    inv.ExpiresAt.UTC().Format(time.RFC3339),
		MaskedEmail:  invitation.MaskEmail(inv.EmailAllowed),
	}
}

func deny(reason invitation.Reason, detail string) invitation.Decision {
	return invitation.Decision{Reason: reason, Detail: detail}
}

// checkInvitation runs the read-only gates: token signature, token expiry,
// lookup, status and store-side expiry.
func (s *invitationServiceImpl) checkInvitation(ctx context.Context, token string, now time.Time) (invitation.Invitation, invitation.Decision, bool) {
	claims, err := s.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return invitation.Invitation{}, deny(invitation.ReasonInvalidToken, err.Error()), false
	}

	if !now.Before(claims.ExpiresAt) {
		d := deny(invitation.ReasonExpired, "token expired")
		d.InvitationID = claims.InvitationID
		return invitation.Invitation{}, d, false
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	inv, err := s.repo.GetByID(storeCtx, claims.InvitationID)
	if err != nil {
		if errors.Is(err, invitation.ErrInvitationNotFound) {
			d := deny(invitation.ReasonInvalidLink, "invitation not found")
			d.InvitationID = claims.InvitationID
			return inv, d, false
		}
		slog.Error("Failed to load invitation", "invitation_id", claims.InvitationID, "error", err)
		d := deny(invitation.ReasonUnknown, err.Error())
		d.InvitationID = claims.InvitationID
		return inv, d, false
	}

	if d, ok := statusDecision(inv); !ok {
		return inv, d, false
	}

	if inv.IsExpiredAt(now) {
		if err := s.repo.MarkExpired(storeCtx, inv.ID, now); err != nil {
			slog.Warn("Failed to mark invitation as expired", "invitation_id", inv.ID, "error", err)
		}
		d := deny(invitation.ReasonExpired, "store expiry passed")
		d.InvitationID = inv.ID
		return inv, d, false
	}

	return inv, invitation.Decision{}, true
}

// statusDecision classifies a non-consumable status. Revocation shares the
// already-used message but keeps its own detail for the logs.
func statusDecision(inv invitation.Invitation) (invitation.Decision, bool) {
	var d invitation.Decision
	switch inv.Status {
	case invitation.StatusActive:
		if !inv.IsExhausted() {
			return d, true
		}
		d = deny(invitation.ReasonAlreadyUsed, "use count exhausted")
	case invitation.StatusUsed:
		d = deny(invitation.ReasonAlreadyUsed, "used")
	case invitation.StatusRevoked:
		d = deny(invitation.ReasonAlreadyUsed, "revoked")
	case invitation.StatusExpired:
		d = deny(invitation.ReasonExpired, "status expired")
	default:
		d = deny(invitation.ReasonUnknown, "unrecognized status "+string(inv.Status))
	}
	d.InvitationID = inv.ID
	return d, false
}

func (s *invitationServiceImpl) validate(ctx context.Context, req invitation.ValidateRequest) invitation.Decision {
	// No store access for a request without device signals
	if req.DeviceFingerprint.IsZero() {
		return deny(invitation.ReasonInvalidToken, "missing device fingerprint")
	}

	now := s.config.Now()

	inv, decision, ok := s.checkInvitation(ctx, req.Token, now)
	if !ok {
		return decision
	}

	if req.Email != "" && !inv.MatchesIdentity(req.Email) {
		d := deny(invitation.ReasonWrongEmail, "claimed identity does not match")
		d.InvitationID = inv.ID
		return d
	}

	presented := req.DeviceFingerprint.Pin()
	violations, denyReason := s.compareFingerprint(inv.BoundFingerprint, presented)
	if len(violations) > 0 {
		s.recordViolations(ctx, inv.ID, presented.Hash, violations, denyReason, now)
		s.publish(EventViolation, inv, denyReason, violations)
	}
	if denyReason != "" {
		d := deny(denyReason, "fingerprint policy")
		d.InvitationID = inv.ID
		d.Violations = violations
		return d
	}

	// Mint before consuming so a signer failure does not burn the invitation.
	credential, err := s.minter.Mint(room.Grant{
		Identity: "patient-" + inv.ID,
		Name:     participantName(req.DisplayName),
		Room:     inv.RoomName,
		Role:     room.RolePatient,
		TTL:      s.config.PatientTokenTTL,
	})
	if err != nil {
		slog.Error("Failed to mint patient credential", "invitation_id", inv.ID, "error", err)
		d := deny(invitation.ReasonUnknown, err.Error())
		d.InvitationID = inv.ID
		return d
	}

	consumedBy := inv.EmailAllowed
	if req.Email != "" {
		consumedBy = invitation.NormalizeEmail(req.Email)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	consumed, err := s.repo.Consume(storeCtx, invitation.ConsumeParams{
		ID:          inv.ID,
		Now:         now,
		ConsumedBy:  consumedBy,
		Fingerprint: presented,
	})
	if err != nil {
		if errors.Is(err, invitation.ErrInvitationNotActive) {
			return s.classifyLostRace(storeCtx, inv.ID, now)
		}
		slog.Error("Failed to consume invitation", "invitation_id", inv.ID, "error", err)
		d := deny(invitation.ReasonUnknown, err.Error())
		d.InvitationID = inv.ID
		return d
	}

	s.publish(EventConsumed, consumed, "", violations)

	return invitation.Decision{
		OK:           true,
		InvitationID: consumed.ID,
		RoomName:     consumed.RoomName,
		Credential:   credential,
		ExpiresAt:    consumed.ExpiresAt.UTC().Format(time.RFC3339),
		MaskedEmail:  invitation.MaskEmail(consumed.EmailAllowed),
		Violations:   violations,
	}
}

// classifyLostRace re-reads an invitation whose conditional consume matched
// nothing and reports why.
func (s *invitationServiceImpl) classifyLostRace(ctx context.Context, id string, now time.Time) invitation.Decision {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, invitation.ErrInvitationNotFound) {
			d := deny(invitation.ReasonInvalidLink, "invitation deleted during validation")
			d.InvitationID = id
			return d
		}
		slog.Error("Failed to re-read invitation after lost consume", "invitation_id", id, "error", err)
		d := deny(invitation.ReasonUnknown, err.Error())
		d.InvitationID = id
		return d
	}
	if d, ok := statusDecision(current); !ok {
		return d
	}
	if current.IsExpiredAt(now) {
		d := deny(invitation.ReasonExpired, "expired during validation")
		d.InvitationID = id
		return d
	}
	d := deny(invitation.ReasonAlreadyUsed, "consume lost race")
	d.InvitationID = id
	return d
}

// compareFingerprint checks the presented device against the pinned one. All
// mismatches are reported; the deny reason is the first one whose policy is
// deny, in device, country, browser order.
func (s *invitationServiceImpl) compareFingerprint(pinned *fingerprint.Pinned, presented fingerprint.Pinned) ([]invitation.Violation, invitation.Reason) {
	if pinned == nil {
		return nil, ""
	}

	var violations []invitation.Violation
	var reason invitation.Reason

	if pinned.Hash != "" && pinned.Hash != presented.Hash {
		violations = append(violations, invitation.Violation{
			Kind:      invitation.ReasonWrongDevice,
			Expected:  pinned.Hash,
			Presented: presented.Hash,
		})
		if s.config.DevicePolicy == PolicyDeny {
			reason = invitation.ReasonWrongDevice
		}
	}

	if pinned.Country != "" && presented.Country != "" && pinned.Country != presented.Country {
		violations = append(violations, invitation.Violation{
			Kind:      invitation.ReasonWrongCountry,
			Expected:  pinned.Country,
			Presented: presented.Country,
		})
		if reason == "" && s.config.GeoPolicy == PolicyDeny {
			reason = invitation.ReasonWrongCountry
		}
	}

	if pinned.BrowserFamily != "" && pinned.BrowserFamily != presented.BrowserFamily {
		violations = append(violations, invitation.Violation{
			Kind:      invitation.ReasonWrongBrowser,
			Expected:  pinned.BrowserFamily,
			Presented: presented.BrowserFamily,
		})
		if reason == "" && s.config.GeoPolicy == PolicyDeny {
			reason = invitation.ReasonWrongBrowser
		}
	}

	return violations, reason
}

func (s *invitationServiceImpl) recordViolations(ctx context.Context, invitationID, fingerprintHash string, violations []invitation.Violation, denyReason invitation.Reason, now time.Time) {
	records := make([]invitation.ViolationRecord, len(violations))
	for i, v := range violations {
		records[i] = invitation.ViolationRecord{
			InvitationID:    invitationID,
			Kind:            v.Kind,
			FingerprintHash: fingerprintHash,
			Detail:          "expected " + v.Expected + ", presented " + v.Presented,
			Denied:          v.Kind == denyReason,
			OccurredAt:      now,
		}
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.repo.RecordViolations(storeCtx, records); err != nil {
		slog.Error("Failed to record violations", "invitation_id", invitationID, "count", len(records), "error", err)
	}
}

// audit writes one log line per validation. It never includes the email or phone.
func (s *invitationServiceImpl) audit(req invitation.ValidateRequest, d invitation.Decision) {
	kinds := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		kinds[i] = string(v.Kind)
	}

	attrs := []any{
		"invitation_id", d.InvitationID,
		"fingerprint_hash", req.DeviceFingerprint.Hash(),
		"browser", fingerprint.BrowserFamily(req.DeviceFingerprint.UserAgent),
		"country", req.DeviceFingerprint.Country(),
		"remote_addr", req.RemoteAddr,
		"violations", kinds,
	}
	if d.OK {
		slog.Info("Invitation validation granted", attrs...)
		return
	}
	attrs = append(attrs, "reason", string(d.Reason), "detail", d.Detail)
	if d.Reason == invitation.ReasonUnknown {
		slog.Error("Invitation validation failed", attrs...)
		return
	}
	slog.Warn("Invitation validation denied", attrs...)
}

func participantName(displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return defaultParticipantName
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// List implements invitation.InvitationService.
func (s *invitationServiceImpl) List(ctx context.Context, req invitation.ListRequest) ([]invitation.InvitationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var status *invitation.Status
	if req.Status != "" {
		st := invitation.Status(req.Status)
		status = &st
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	invitations, err := s.repo.ListByCreator(storeCtx, req.CreatedBy, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	responses := make([]invitation.InvitationResponse, len(invitations))
	for i := range invitations {
		responses[i] = toResponse(invitations[i])
	}
	return responses, nil
}

// Get implements invitation.InvitationService.
func (s *invitationServiceImpl) Get(ctx context.Context, id, createdBy string) (invitation.InvitationResponse, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	inv, err := s.repo.GetByID(storeCtx, id)
	if err != nil {
		return invitation.InvitationResponse{}, err
	}
	if inv.CreatedBy != createdBy {
		return invitation.InvitationResponse{}, invitation.ErrInvitationNotFound
	}
	return toResponse(inv), nil
}

// Revoke implements invitation.InvitationService.
func (s *invitationServiceImpl) Revoke(ctx context.Context, id, createdBy string) (invitation.InvitationResponse, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	inv, err := s.repo.MarkRevoked(storeCtx, id, createdBy, s.config.Now())
	if err != nil {
		return invitation.InvitationResponse{}, err
	}

	slog.Info("Invitation revoked", "invitation_id", inv.ID, "created_by", createdBy)
	s.publish(EventRevoked, inv, "", nil)
	return toResponse(inv), nil
}

// Delete implements invitation.InvitationService.
func (s *invitationServiceImpl) Delete(ctx context.Context, id, createdBy string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.repo.Delete(storeCtx, id, createdBy); err != nil {
		return err
	}

	slog.Info("Invitation deleted", "invitation_id", id, "created_by", createdBy)
	return nil
}

// ExpireStale implements invitation.InvitationService.
func (s *invitationServiceImpl) ExpireStale(ctx context.Context) error {
	count, err := s.repo.ExpireStale(ctx, s.config.Now())
	if err != nil {
		return fmt.Errorf("failed to expire stale invitations: %w", err)
	}
	if count > 0 {
		slog.Info("Expired stale invitations", "count", count)
	}
	return nil
}

// PurgeOld implements invitation.InvitationService.
func (s *invitationServiceImpl) PurgeOld(ctx context.Context) error {
	cutoff := s.config.Now().Add(-s.config.Retention)
	count, err := s.repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge invitations: %w", err)
	}
	if count > 0 {
		slog.Info("Purged old invitations", "count", count, "cutoff", cutoff)
	}
	return nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toResponse(inv invitation.Invitation) invitation.InvitationResponse {
	return invitation.InvitationResponse{
		ID:           inv.ID,
		RoomName:     inv.RoomName,
		EmailAllowed: inv.EmailAllowed,
		PhoneAllowed: inv.PhoneAllowed,
		Status:       inv.Status,
		MaxUses:      inv.MaxUses,
		UseCount:     inv.UseCount,
		CreatedBy:    inv.CreatedBy,
		DevicePinned: inv.BoundFingerprint != nil,
		CreatedAt:    inv.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:    inv.ExpiresAt.UTC().Format(time.RFC3339),
		UsedAt:       formatTime(inv.UsedAt),
		RevokedAt:    formatTime(inv.RevokedAt),
	}
}
