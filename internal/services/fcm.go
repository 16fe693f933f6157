package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"binfleet-backend/internal/models"
)

// DriverNotifier pushes fleet events to a driver's device
type DriverNotifier interface {
	SendBinsAssignedNotification(ctx context.Context, token string, binNumbers []string) error
	SendBinFullNotification(ctx context.Context, token string, bin models.Bin) error
}

// FCMService handles Firebase Cloud Messaging
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates a new FCM service instance from a credentials file
func NewFCMService(credentialsFile string) (*FCMService, error) {
	return newFCMService(option.WithCredentialsFile(credentialsFile))
}

// NewFCMServiceFromBase64 creates a new FCM service instance from base64-encoded credentials
// This is useful for cloud deployments where you can't upload files easily
func NewFCMServiceFromBase64(credentialsBase64 string) (*FCMService, error) {
	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}
	return newFCMService(option.WithCredentialsJSON(credentialsJSON))
}

func newFCMService(opt option.ClientOption) (*FCMService, error) {
	ctx := context.Background()

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &FCMService{client: client}, nil
}

// SendBinsAssignedNotification tells a driver which bins were just added to their route
func (s *FCMService) SendBinsAssignedNotification(ctx context.Context, token string, binNumbers []string) error {
	body := fmt.Sprintf("You have %d new bins to collect: %s", len(binNumbers), strings.Join(binNumbers, ", "))
	if len(binNumbers) == 1 {
		body = fmt.Sprintf("%s was added to your route.", binNumbers[0])
	}

	return s.send(ctx, token, "New Bins Assigned!", body, map[string]string{
		"type":        "bins_assigned",
		"bin_numbers": strings.Join(binNumbers, ","),
		"total_bins":  strconv.Itoa(len(binNumbers)),
	})
}

// SendBinFullNotification tells the assigned driver one of their bins is full
func (s *FCMService) SendBinFullNotification(ctx context.Context, token string, bin models.Bin) error {
	fill := 0.0
	if bin.FillLevel != nil {
		fill = *bin.FillLevel
	}

	return s.send(ctx, token, "Bin Full", fmt.Sprintf("%s at %s is %.0f%% full.", bin.BinNumber, bin.LocationName, fill), map[string]string{
		"type":       "bin_full",
		"bin_id":     bin.ID,
		"bin_number": bin.BinNumber,
		"fill_level": strconv.FormatFloat(fill, 'f', 0, 64),
	})
}

func (s *FCMService) send(ctx context.Context, token, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := s.client.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("error sending FCM message: %w", err)
	}

	log.Printf("✅ FCM notification sent successfully: %s", response)
	return nil
}
