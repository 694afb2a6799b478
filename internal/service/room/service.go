package room

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/telecare/consult-gate/internal/domain/room"
)

type roomServiceImpl struct {
	minter    room.CredentialMinter
	ttl       time.Duration
	serverURL string
}

// NewRoomService creates the doctor direct-access path. It holds no store.
func NewRoomService(minter room.CredentialMinter, doctorTTL time.Duration, serverURL string) room.RoomService {
	if doctorTTL == 0 {
		doctorTTL = 6 * time.Hour
	}
	return &roomServiceImpl{minter: minter, ttl: doctorTTL, serverURL: serverURL}
}

// DoctorToken implements room.RoomService.
func (s *roomServiceImpl) DoctorToken(ctx context.Context, req room.DoctorTokenRequest) (room.TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return room.TokenResponse{}, err
	}

	identity := req.DoctorID
	if identity == "" {
		identity = "doctor-" + req.Name
	}

	token, err := s.minter.Mint(room.Grant{
		Identity: identity,
		Name:     req.Name,
		Room:     req.Room,
		Role:     room.RoleDoctor,
		TTL:      s.ttl,
	})
	if err != nil {
		return room.TokenResponse{}, fmt.Errorf("failed to mint doctor credential: %w", err)
	}

	slog.Info("Doctor credential issued", "room", req.Room, "doctor_id", identity)
	return room.TokenResponse{
		Token:     token,
		RoomName:  req.Room,
		ServerURL: s.serverURL,
	}, nil
}
