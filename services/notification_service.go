package services

import (
	"context"
	"fmt"
	"sync"

	"nakeslink/models"
	"nakeslink/repositories"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// NotificationService delivers alerts over FCM push with an SMS fallback
// for critical traffic. Delivery is best-effort per recipient; a channel
// failure is logged, never propagated as a hard error unless every channel
// failed.
type NotificationService struct {
	fcmClient    *messaging.Client
	twilioClient *twilio.RestClient
	twilioNumber string
	userRepo     *repositories.UserRepository
}

func NewNotificationService(
	fcmClient *messaging.Client,
	twilioSID, twilioToken, twilioNumber string,
	userRepo *repositories.UserRepository,
) *NotificationService {
	var twilioClient *twilio.RestClient
	if twilioSID != "" && twilioToken != "" {
		twilioClient = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: twilioSID,
			Password: twilioToken,
		})
	}

	return &NotificationService{
		fcmClient:    fcmClient,
		twilioClient: twilioClient,
		twilioNumber: twilioNumber,
		userRepo:     userRepo,
	}
}

// Send delivers one notification to one recipient. Push goes out whenever
// the recipient has an FCM token; SMS is added for critical-priority alerts
// when Twilio is configured.
func (ns *NotificationService) Send(ctx context.Context, req models.SendNotificationRequest) error {
	user, err := ns.userRepo.GetByID(ctx, req.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to load notification recipient %s: %w", req.RecipientID, err)
	}

	var delivered bool
	var lastErr error

	if ns.fcmClient != nil && user.FCMToken != "" {
		if err := ns.sendPush(ctx, user.FCMToken, req); err != nil {
			logrus.Warnf("Push delivery to user %s failed: %v", req.RecipientID, err)
			lastErr = err
		} else {
			delivered = true
		}
	}

	if ns.twilioClient != nil && user.Phone != "" && req.Priority == models.SeverityCritical {
		if err := ns.sendSMS(user.Phone, req); err != nil {
			logrus.Warnf("SMS delivery to user %s failed: %v", req.RecipientID, err)
			lastErr = err
		} else {
			delivered = true
		}
	}

	if !delivered && lastErr != nil {
		return lastErr
	}
	if !delivered {
		logrus.Infof("No delivery channel available for user %s, notification skipped", req.RecipientID)
	}

	return nil
}

func (ns *NotificationService) sendPush(ctx context.Context, token string, req models.SendNotificationRequest) error {
	data := map[string]string{"type": req.Type}
	for k, v := range req.Data {
		data[k] = v
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: req.Title,
			Body:  req.Message,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:    "emergency_alert",
				Icon:     "ic_notification",
				Color:    "#D32F2F",
				Priority: messaging.PriorityMax,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: req.Title,
						Body:  req.Message,
					},
					Sound: "emergency_alert.caf",
				},
			},
		},
	}

	_, err := ns.fcmClient.Send(ctx, message)
	return err
}

func (ns *NotificationService) sendSMS(phone string, req models.SendNotificationRequest) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(ns.twilioNumber)
	params.SetBody(fmt.Sprintf("%s: %s", req.Title, req.Message))

	_, err := ns.twilioClient.Api.CreateMessage(params)
	return err
}

// MockNotifier records notifications instead of delivering them. Safe for
// concurrent use; fan-out sends from multiple goroutines.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []models.SendNotificationRequest

	// FailFor marks recipient IDs whose deliveries should fail.
	FailFor map[string]bool
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{FailFor: map[string]bool{}}
}

func (m *MockNotifier) Send(ctx context.Context, req models.SendNotificationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailFor[req.RecipientID] {
		return fmt.Errorf("mock delivery failure for %s", req.RecipientID)
	}

	m.Sent = append(m.Sent, req)
	logrus.Debugf("Mock notification to %s: %s", req.RecipientID, req.Title)
	return nil
}

// SentTo returns the notifications recorded for one recipient.
func (m *MockNotifier) SentTo(recipientID string) []models.SendNotificationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.SendNotificationRequest
	for _, req := range m.Sent {
		if req.RecipientID == recipientID {
			out = append(out, req)
		}
	}
	return out
}
