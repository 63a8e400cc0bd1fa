package service

import (
	"context"
	"fmt"
	"log"

	"stockpulse/internal/model"
	"stockpulse/internal/repository"
)

// DeviceTokenService maintains the registry of push-capable devices the FCM
// channel fans out to.
type DeviceTokenService struct {
	tokenRepo repository.DeviceTokenRepository
}

func NewDeviceTokenService(tokenRepo repository.DeviceTokenRepository) *DeviceTokenService {
	return &DeviceTokenService{tokenRepo: tokenRepo}
}

// RegisterToken records a device token for a user.
//
// A token string identifies a device, not an account: when a device changes
// hands the same token shows up under a new user, so registration reassigns
// the existing row instead of erroring. The store should enforce token
// uniqueness, but registration tolerates a broken or missing constraint by
// deduplicating here: one row stays active under the new owner, any
// stragglers sharing the token are deactivated.
func (s *DeviceTokenService) RegisterToken(ctx context.Context, userID int64, token, platform string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	switch platform {
	case model.PlatformIOS, model.PlatformAndroid, model.PlatformWeb:
	case "":
		platform = model.PlatformAndroid
	default:
		return fmt.Errorf("unknown platform: %s", platform)
	}

	rows, err := s.tokenRepo.FindAllByToken(ctx, token)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return s.tokenRepo.Insert(ctx, &model.DeviceToken{
			UserID:   userID,
			Token:    token,
			Platform: platform,
		})
	}

	// Most recently updated row survives; duplicates are dead weight.
	if err := s.tokenRepo.Reassign(ctx, rows[0].ID, userID, platform); err != nil {
		return err
	}
	for _, stale := range rows[1:] {
		if err := s.tokenRepo.DeactivateByID(ctx, stale.ID); err != nil {
			log.Printf("[DeviceToken] Failed to deactivate duplicate row id=%d err=%v", stale.ID, err)
		}
	}
	if len(rows) > 1 {
		log.Printf("[DeviceToken] Deduplicated token: kept=%d deactivated=%d", rows[0].ID, len(rows)-1)
	}
	return nil
}

// UnregisterToken deactivates the user's registration of the token, e.g. on
// logout or explicit opt-out. Idempotent: unknown or inactive tokens are
// not an error. The row is kept (inactive) rather than deleted so a
// re-register is a reactivation, not a new identity.
func (s *DeviceTokenService) UnregisterToken(ctx context.Context, userID int64, token string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}
	return s.tokenRepo.DeactivateForUser(ctx, token, userID)
}
