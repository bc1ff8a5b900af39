// Package forward sends packets that have no local handler to the remote
// instance that owns their endpoint. Forwarding is best-effort: the call
// is bounded by the client timeout and failures are the caller's to log,
// never to retry.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pulsegate/internal/model"
)

// PacketPath is the route remote instances expose for forwarded packets.
const PacketPath = "/internal/packets"

const defaultTimeout = 5 * time.Second

// Client forwards packets over HTTP to a resolved peer address.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Forward posts the packet plus its sender identity to addr. A non-2xx
// response counts as a remote-side failure.
func (c *Client) Forward(ctx context.Context, accountID int64, deviceID string, pkt *model.Packet, addr string) error {
	envelope := model.ForwardEnvelope{
		AccountID: accountID,
		DeviceID:  deviceID,
		Packet:    pkt,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal forward envelope: %w", err)
	}

	url := "http://" + addr + PacketPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward to %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("forward to %s: status=%d", addr, resp.StatusCode)
	}
	return nil
}
