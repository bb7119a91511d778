package notification

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCMGateway sends pushes through the Firebase Admin SDK
type FCMGateway struct {
	client *messaging.Client
}

// NewFCMGateway creates a Firebase gateway from a service account file.
// Without credentials it returns a nil gateway whose Send reports ErrDisabled,
// so the server still starts with push switched off.
func NewFCMGateway(ctx context.Context, credentialsFile string) *FCMGateway {
	if credentialsFile == "" {
		log.Println("⚠️ Firebase credentials not provided, push notifications disabled")
		return nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		log.Printf("⚠️ Failed to initialize Firebase app: %v (push notifications disabled)", err)
		return nil
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to get messaging client: %v", err)
		return nil
	}

	log.Println("✅ Firebase FCM initialized")
	return &FCMGateway{client: client}
}

// Send delivers msg as a web push with the notification block rendered by
// the browser's background handler
func (g *FCMGateway) Send(ctx context.Context, msg Message) (*Result, error) {
	if g == nil || g.client == nil {
		return nil, ErrDisabled
	}

	data := make(map[string]string, len(msg.Data)+2)
	for k, v := range msg.Data {
		data[k] = v
	}
	if msg.ClickAction != "" {
		data["url"] = msg.ClickAction
	}
	if msg.Tag != "" {
		data["tag"] = msg.Tag
	}

	message := &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title:              msg.Title,
				Body:               msg.Body,
				Icon:               msg.Icon,
				Badge:              msg.Badge,
				Tag:                msg.Tag,
				RequireInteraction: true,
			},
			FCMOptions: &messaging.WebpushFCMOptions{
				Link: msg.ClickAction,
			},
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Tag:         msg.Tag,
				ClickAction: msg.ClickAction,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:    "default",
					ThreadID: msg.Tag,
				},
			},
		},
	}

	br, err := g.client.SendEach(ctx, []*messaging.Message{message})
	if err != nil {
		return nil, fmt.Errorf("error sending message: %w", err)
	}

	result := &Result{
		SuccessCount: br.SuccessCount,
		FailureCount: br.FailureCount,
	}
	for _, resp := range br.Responses {
		if resp.Success {
			result.MessageID = resp.MessageID
			continue
		}
		log.Printf("⚠️ FCM failure for user token: %v", resp.Error)
	}
	return result, nil
}
