package room

import "context"

// RoomService issues credentials outside the invitation flow
type RoomService interface {
	// DoctorToken mints a doctor grant. It never consults the invitation store.
	DoctorToken(ctx context.Context, req DoctorTokenRequest) (TokenResponse, error)
}
