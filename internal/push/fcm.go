package push

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"pulsegate/internal/model"
)

// FCM allows at most 500 tokens per multicast request.
const fcmBatchLimit = 500

// FCMProvider delivers through Firebase Cloud Messaging. Credentials come
// from a Firebase service account (project id, client email, private
// key); the private key in env files carries literal \n escapes.
type FCMProvider struct {
	client *messaging.Client
}

func NewFCMProvider(ctx context.Context, projectID, clientEmail, privateKey string) (*FCMProvider, error) {
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
	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Name() string {
	return model.ProviderFCM
}

// Send delivers the payload to all targets, chunked to the multicast
// limit. One result per target; a batch-level failure marks the whole
// chunk transient.
func (p *FCMProvider) Send(ctx context.Context, payload Payload, targets []Target) []Result {
	results := make([]Result, 0, len(targets))
	for start := 0; start < len(targets); start += fcmBatchLimit {
		end := start + fcmBatchLimit
		if end > len(targets) {
			end = len(targets)
		}
		results = append(results, p.sendChunk(ctx, payload, targets[start:end])...)
	}
	return results
}

func (p *FCMProvider) sendChunk(ctx context.Context, payload Payload, targets []Target) []Result {
	tokens := make([]string, len(targets))
	for i, t := range targets {
		tokens[i] = t.Token
	}

	message := &messaging.MulticastMessage{
		Tokens:  tokens,
		Android: &messaging.AndroidConfig{Priority: androidPriority(payload)},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: buildAps(payload)},
		},
	}
	// Alert fields carry only non-empty values; FCM's top-level
	// notification has no subtitle, that only exists on the APNS side.
	if payload.Title != "" || payload.Body != "" {
		message.Notification = &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		}
	}
	if len(payload.Data) > 0 {
		message.Data = payload.Data
	}

	response, err := p.client.SendEachForMulticast(ctx, message)
	if err != nil {
		log.Printf("[FCM] Multicast failed: tokens=%d err=%v", len(tokens), err)
		results := make([]Result, len(targets))
		for i, t := range targets {
			results[i] = Result{Target: t, Outcome: OutcomeTransient, Err: err}
		}
		return results
	}

	log.Printf("[FCM] Sent to %d tokens: %d success, %d failure",
		len(tokens), response.SuccessCount, response.FailureCount)

	results := make([]Result, len(targets))
	for i, resp := range response.Responses {
		switch {
		case resp.Success:
			results[i] = Result{Target: targets[i], Outcome: OutcomeOK}
		case messaging.IsUnregistered(resp.Error):
			results[i] = Result{Target: targets[i], Outcome: OutcomeInvalidToken, Err: resp.Error}
		default:
			results[i] = Result{Target: targets[i], Outcome: OutcomeTransient, Err: resp.Error}
		}
	}
	return results
}

func buildAps(payload Payload) *messaging.Aps {
	alert := &messaging.ApsAlert{}
	if payload.Title != "" {
		alert.Title = payload.Title
	}
	if payload.Subtitle != "" {
		alert.SubTitle = payload.Subtitle
	}
	if payload.Body != "" {
		alert.Body = payload.Body
	}

	aps := &messaging.Aps{Alert: alert}
	if payload.Sound {
		aps.Sound = "default"
	}
	return aps
}

func androidPriority(payload Payload) string {
	if payload.HighPriority {
		return "high"
	}
	return "normal"
}
