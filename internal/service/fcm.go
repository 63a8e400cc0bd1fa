package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"stockpulse/internal/repository"
)

// FCMService delivers push notifications to all active mobile/web tokens of
// a user via Firebase Cloud Messaging, and reacts to per-token delivery
// failures by deactivating tokens FCM reports as permanently dead.
type FCMService struct {
	client    *messaging.Client
	tokenRepo repository.DeviceTokenRepository
}

// NewFCMService creates an FCM client from service-account credentials.
//
// The private key in .env files usually carries literal "\n" sequences, so
// they are replaced with real newlines before handing the PEM to the SDK.
func NewFCMService(ctx context.Context, projectID, clientEmail, privateKey string, tokenRepo repository.DeviceTokenRepository) (*FCMService, error) {
	privateKey = strings.ReplaceAll(privateKey, "\\n", "\n")

	credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, projectID, privateKey, clientEmail)

	opt := option.WithCredentialsJSON([]byte(credsJSON))
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	log.Printf("[FCM] Initialized for project: %s", projectID)
	return &FCMService{client: client, tokenRepo: tokenRepo}, nil
}

// SendAlert sends a visible notification (banner in the notification
// center) to every active device of the user.
func (s *FCMService) SendAlert(ctx context.Context, userID int64, title, body string, data map[string]string) error {
	return s.send(ctx, userID, false, title, body, data)
}

// SendSilent sends a background data-only message with no visible banner.
// Used for quiet pushes that refresh app state without disturbing the user.
func (s *FCMService) SendSilent(ctx context.Context, userID int64, data map[string]string) error {
	return s.send(ctx, userID, true, "", "", data)
}

func (s *FCMService) send(ctx context.Context, userID int64, silent bool, title, body string, data map[string]string) error {
	tokens, err := s.tokenRepo.FindActiveTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("find active tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil // user has no registered devices
	}

	messages := make([]*messaging.Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, buildMessage(token, silent, title, body, data))
	}

	// One batch per user; the response carries one result per message in
	// submission order, which is what ties failures back to tokens.
	resp, err := s.client.SendEach(ctx, messages)
	if err != nil {
		// Batch-level failure (network, config). Logged and swallowed: the
		// user's push attempt is lost for this cycle, other channels and
		// the outbox retry path still stand.
		log.Printf("[FCM] Batch send failed: user=%d err=%v", userID, err)
		return nil
	}

	if resp.FailureCount > 0 {
		log.Printf("[FCM] Sent to %d tokens: %d success, %d failure",
			len(tokens), resp.SuccessCount, resp.FailureCount)
	}

	for i, r := range resp.Responses {
		if !r.Success {
			s.handleSendFailure(ctx, tokens[i], r.Error)
		}
	}

	return nil
}

// buildMessage assembles one platform-shaped message per token.
// Android gets high priority so delivery survives battery saving; iOS gets
// either a content-available flag (silent) or an aps alert with sound.
func buildMessage(token string, silent bool, title, body string, data map[string]string) *messaging.Message {
	msg := &messaging.Message{
		Token: token,
		Data:  data,
	}

	android := &messaging.AndroidConfig{
		Priority: "high",
	}
	if !silent && title != "" {
		android.Notification = &messaging.AndroidNotification{
			Title: title,
			Body:  body,
		}
	}
	msg.Android = android

	aps := &messaging.Aps{}
	if silent {
		aps.ContentAvailable = true
	} else if title != "" {
		aps.Alert = &messaging.ApsAlert{
			Title: title,
			Body:  body,
		}
		aps.Sound = "default"
	}
	msg.APNS = &messaging.APNSConfig{
		Payload: &messaging.APNSPayload{Aps: aps},
	}

	return msg
}

// handleSendFailure classifies a per-token error and deactivates tokens the
// gateway reports as permanently dead so future sends skip them.
func (s *FCMService) handleSendFailure(ctx context.Context, token string, err error) {
	switch {
	case messaging.IsUnregistered(err),
		messaging.IsSenderIDMismatch(err),
		errorutils.IsInvalidArgument(err):
		// Token is gone for good (app uninstalled, token rotated, wrong
		// sender). Deactivate so we stop paying for it every send.
		if dbErr := s.tokenRepo.Deactivate(ctx, token); dbErr != nil {
			log.Printf("[FCM] Failed to deactivate token=%s err=%v", truncateToken(token), dbErr)
			return
		}
		log.Printf("[FCM] Deactivated invalid token=%s err=%v", truncateToken(token), err)
	case errorutils.IsUnauthenticated(err):
		// Credentials problem on our side, not the token's. Keep the token.
		log.Printf("[FCM] AUTH FAILURE sending to token=%s err=%v (check service account credentials)", truncateToken(token), err)
	default:
		// Assume transient; the token stays active.
		log.Printf("[FCM] Send failed token=%s err=%v", truncateToken(token), err)
	}
}

// truncateToken keeps logs readable and avoids dumping full tokens.
func truncateToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}

// NopPusher is the push channel used when FCM is not configured: every send
// succeeds without doing anything, so the dispatcher works SSE-only with no
// nil checks.
type NopPusher struct{}

func (NopPusher) SendAlert(ctx context.Context, userID int64, title, body string, data map[string]string) error {
	return nil
}

func (NopPusher) SendSilent(ctx context.Context, userID int64, data map[string]string) error {
	return nil
}
