// Package whatsapp talks to the external WhatsApp HTTP gateway. The gateway
// is a JSON-over-HTTP sidecar that owns the actual device sessions; this
// package only covers the two capabilities the backend needs, sending a
// text message for a session and probing a session's connection state, plus
// the naming convention that ties sessions to owning users.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client for the gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client for the gateway at baseURL with a per-call
// timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type sendTextRequest struct {
	Session string `json:"session"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendTextResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error,omitempty"`
}

// SendText asks the gateway to send a text message through the given
// session. It returns the transport-assigned message id; the gateway may
// legitimately return an empty id, in which case delivery ACKs for this
// message can never be correlated.
func (c *Client) SendText(ctx context.Context, session, phone, content string) (string, error) {
	reqBody, err := json.Marshal(sendTextRequest{Session: session, Phone: phone, Message: content})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/messages/send", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gateway send: unexpected status %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendTextResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("gateway send: decode response: %w body=%q", err, string(body))
	}
	if sr.Error != "" {
		return "", fmt.Errorf("gateway send: %s", sr.Error)
	}
	return sr.MessageID, nil
}

type sessionStatusResponse struct {
	Status string `json:"status"`
}

// SessionStatus probes the gateway for the session's connection state. The
// returned string is gateway-specific; use IsReady to interpret it.
func (c *Client) SessionStatus(ctx context.Context, session string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions/"+session+"/status", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway status: unexpected status %d body=%q", resp.StatusCode, string(body))
	}

	var sr sessionStatusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("gateway status: decode response: %w body=%q", err, string(body))
	}
	return sr.Status, nil
}
