package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/telecare/consult-gate/internal/domain/invitation"
	"github.com/telecare/consult-gate/internal/handler/http/middleware"
	"github.com/telecare/consult-gate/internal/handler/http/response"
	"github.com/telecare/consult-gate/internal/pkg/sse"
	"github.com/telecare/consult-gate/internal/pkg/validator"
)

const maxValidateBody = 64 << 10

type InvitationHandler interface {
	// Doctor endpoints
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Revoke(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
	Events(w http.ResponseWriter, r *http.Request)
	// Public endpoints
	Validate(w http.ResponseWriter, r *http.Request)
	Peek(w http.ResponseWriter, r *http.Request)
	Landing(w http.ResponseWriter, r *http.Request)
	PatientRoom(w http.ResponseWriter, r *http.Request)
	AccessDenied(w http.ResponseWriter, r *http.Request)
}

type invitationHandlerImpl struct {
	invitationService invitation.InvitationService
	hub               *sse.Hub
	serverURL         string
}

func NewInvitationHandler(invitationService invitation.InvitationService, hub *sse.Hub, serverURL string) InvitationHandler {
	return &invitationHandlerImpl{
		invitationService: invitationService,
		hub:               hub,
		serverURL:         serverURL,
	}
}

// Create implements InvitationHandler.
func (h *invitationHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	var req invitation.CreateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("CreateInvitation decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.CreatedBy = middleware.DoctorID(r.Context())

	result, err := h.invitationService.Create(r.Context(), req)
	if err != nil {
		slog.Error("CreateInvitation service error", "error", err)
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Invitation created successfully", result)
}

// List implements InvitationHandler.
func (h *invitationHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	req := invitation.ListRequest{
		CreatedBy: middleware.DoctorID(r.Context()),
		Status:    r.URL.Query().Get("status"),
	}

	results, err := h.invitationService.List(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, results, &response.Meta{TotalItems: len(results)})
}

// Get implements InvitationHandler.
func (h *invitationHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validator.IsValidUUID(id) {
		response.NotFound(w, "Invitation not found")
		return
	}

	result, err := h.invitationService.Get(r.Context(), id, middleware.DoctorID(r.Context()))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// Revoke implements InvitationHandler.
func (h *invitationHandlerImpl) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validator.IsValidUUID(id) {
		response.NotFound(w, "Invitation not found")
		return
	}

	result, err := h.invitationService.Revoke(r.Context(), id, middleware.DoctorID(r.Context()))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Invitation revoked", result)
}

// Delete implements InvitationHandler.
func (h *invitationHandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validator.IsValidUUID(id) {
		response.NotFound(w, "Invitation not found")
		return
	}

	if err := h.invitationService.Delete(r.Context(), id, middleware.DoctorID(r.Context())); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Invitation deleted", nil)
}

// Events implements InvitationHandler. It streams status changes of the
// doctor's invitations as server-sent events.
func (h *invitationHandlerImpl) Events(w http.ResponseWriter, r *http.Request) {
	doctorID := middleware.DoctorID(r.Context())

	// Check if streaming is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalServerError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.hub.Subscribe(doctorID)
	defer cleanup()

	if err := sse.Write(w, sse.Event{Name: "connected", Data: map[string]string{"status": "connected"}}); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := sse.Write(w, event); err != nil {
				slog.Warn("Failed to write invitation event", "event", event.Name, "error", err)
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			if err := sse.Write(w, sse.Event{Name: "ping", Data: map[string]int64{"timestamp": time.Now().Unix()}}); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// Validate implements InvitationHandler. The body is answered in the
// validator's own shape rather than the envelope.
func (h *invitationHandlerImpl) Validate(w http.ResponseWriter, r *http.Request) {
	var req invitation.ValidateRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxValidateBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("ValidateInvitation decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	if req.DeviceFingerprint.IsZero() {
		response.BadRequest(w, "Invalid request format", map[string]string{
			"deviceFingerprint": "deviceFingerprint is required",
		})
		return
	}
	req.RemoteAddr = r.RemoteAddr

	decision := h.invitationService.Validate(r.Context(), req)

	status := http.StatusOK
	if !decision.OK {
		status = response.DenyStatus(decision.Reason)
	}
	response.JSON(w, status, decision.Response(h.serverURL))
}

// Peek implements InvitationHandler.
func (h *invitationHandlerImpl) Peek(w http.ResponseWriter, r *http.Request) {
	decision := h.invitationService.Peek(r.Context(), r.URL.Query().Get("token"))
	if !decision.OK {
		response.JSON(w, response.DenyStatus(decision.Reason), decision.Response(""))
		return
	}

	response.Success(w, invitation.PeekResponse{
		InvitationID: decision.InvitationID,
		RoomName:     decision.RoomName,
		MaskedEmail:  decision.MaskedEmail,
		ExpiresAt:    decision.ExpiresAt,
	})
}

// Landing implements InvitationHandler. It runs behind the Edge Gate and
// sends unusable invitations to the denial page.
func (h *invitationHandlerImpl) Landing(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	decision := h.invitationService.Peek(r.Context(), token)
	if !decision.OK {
		http.Redirect(w, r, middleware.DeniedPath+"?reason="+string(decision.Reason), http.StatusTemporaryRedirect)
		return
	}

	response.Success(w, map[string]string{
		"token":       token,
		"roomName":    decision.RoomName,
		"maskedEmail": decision.MaskedEmail,
		"expiresAt":   decision.ExpiresAt,
		"validateUrl": "/api/v1/invitations/validate",
	})
}

// PatientRoom implements InvitationHandler.
func (h *invitationHandlerImpl) PatientRoom(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"roomName":  chi.URLParam(r, "id"),
		"serverUrl": h.serverURL,
	})
}

// AccessDenied implements InvitationHandler.
func (h *invitationHandlerImpl) AccessDenied(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	response.Success(w, invitation.Denial(r.URL.Query().Get("reason")))
}
