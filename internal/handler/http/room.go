package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/telecare/consult-gate/internal/domain/room"
	"github.com/telecare/consult-gate/internal/handler/http/middleware"
	"github.com/telecare/consult-gate/internal/handler/http/response"
)

type RoomHandler interface {
	DoctorToken(w http.ResponseWriter, r *http.Request)
}

type roomHandlerImpl struct {
	roomService room.RoomService
}

func NewRoomHandler(roomService room.RoomService) RoomHandler {
	return &roomHandlerImpl{roomService: roomService}
}

// DoctorToken implements RoomHandler.
func (h *roomHandlerImpl) DoctorToken(w http.ResponseWriter, r *http.Request) {
	var req room.DoctorTokenRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("DoctorToken decode error", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.Room = chi.URLParam(r, "room")
	req.DoctorID = middleware.DoctorID(r.Context())

	result, err := h.roomService.DoctorToken(r.Context(), req)
	if err != nil {
		slog.Error("DoctorToken service error", "error", err)
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}
