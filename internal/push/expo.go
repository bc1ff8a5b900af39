package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"pulsegate/internal/model"
)

const (
	defaultExpoPushURL = "https://exp.host/--/api/v2/push/send"

	// Expo caps one request at 100 messages.
	expoBatchLimit = 100

	expoErrDeviceNotRegistered = "DeviceNotRegistered"
)

// expoPushMessage is the payload for Expo's Push API.
type expoPushMessage struct {
	To       []string          `json:"to"`
	Title    string            `json:"title,omitempty"`
	Subtitle string            `json:"subtitle,omitempty"`
	Body     string            `json:"body,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type expoPushResponse struct {
	Data []expoPushTicket `json:"data"`
}

type expoPushTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"` // "DeviceNotRegistered", "MessageTooBig", ...
	} `json:"details,omitempty"`
}

// ExpoProvider delivers through Expo's Push API. No credentials needed;
// Expo fans out to APNs/FCM itself.
type ExpoProvider struct {
	httpClient *http.Client
	url        string
}

func NewExpoProvider() *ExpoProvider {
	return &ExpoProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        defaultExpoPushURL,
	}
}

// NewExpoProviderWithURL points the provider at a non-default API URL.
// Used by tests to stand in a fake Expo endpoint.
func NewExpoProviderWithURL(url string) *ExpoProvider {
	p := NewExpoProvider()
	p.url = url
	return p
}

func (p *ExpoProvider) Name() string {
	return model.ProviderExpo
}

// Send delivers the payload to all targets in batches of at most 100.
// Tickets come back in request order, so each maps to its target by
// index.
func (p *ExpoProvider) Send(ctx context.Context, payload Payload, targets []Target) []Result {
	results := make([]Result, 0, len(targets))
	for start := 0; start < len(targets); start += expoBatchLimit {
		end := start + expoBatchLimit
		if end > len(targets) {
			end = len(targets)
		}
		results = append(results, p.sendChunk(ctx, payload, targets[start:end])...)
	}
	return results
}

func (p *ExpoProvider) sendChunk(ctx context.Context, payload Payload, targets []Target) []Result {
	tokens := make([]string, len(targets))
	for i, t := range targets {
		tokens[i] = t.Token
	}

	message := expoPushMessage{
		To:       tokens,
		Title:    payload.Title,
		Subtitle: payload.Subtitle,
		Body:     payload.Body,
		Data:     payload.Data,
	}
	if payload.Sound {
		message.Sound = "default"
	}
	if payload.HighPriority {
		message.Priority = "high"
	} else {
		message.Priority = "normal"
	}

	tickets, err := p.post(ctx, message)
	if err != nil {
		log.Printf("[ExpoPush] Batch failed: tokens=%d err=%v", len(tokens), err)
		results := make([]Result, len(targets))
		for i, t := range targets {
			results[i] = Result{Target: t, Outcome: OutcomeTransient, Err: err}
		}
		return results
	}

	results := make([]Result, len(targets))
	successCount := 0
	for i, t := range targets {
		if i >= len(tickets) {
			results[i] = Result{Target: t, Outcome: OutcomeTransient, Err: fmt.Errorf("no ticket for token")}
			continue
		}
		ticket := tickets[i]
		switch {
		case ticket.Status == "ok":
			results[i] = Result{Target: t, Outcome: OutcomeOK}
			successCount++
		case ticket.Details.Error == expoErrDeviceNotRegistered:
			results[i] = Result{Target: t, Outcome: OutcomeInvalidToken, Err: fmt.Errorf("expo: %s", ticket.Message)}
		default:
			results[i] = Result{Target: t, Outcome: OutcomeTransient, Err: fmt.Errorf("expo: %s (%s)", ticket.Message, ticket.Details.Error)}
		}
	}

	log.Printf("[ExpoPush] Sent to %d tokens: %d success, %d failed",
		len(tokens), successCount, len(tokens)-successCount)
	return results
}

func (p *ExpoProvider) post(ctx context.Context, message expoPushMessage) ([]expoPushTicket, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expo api error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var pushResp expoPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return pushResp.Data, nil
}
