package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGraphAPIBase    = "https://graph.facebook.com"
	defaultGraphAPIVersion = "v18.0"
	defaultHTTPTimeout     = 10 * time.Second
)

// ErrDelivery means the Graph API did not accept an outbound message.
var ErrDelivery = errors.New("whatsapp: delivery failed")

// ClientConfig holds Graph API credentials and endpoint settings.
type ClientConfig struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	Timeout       time.Duration
}

// Client sends WhatsApp messages via the Meta Graph API.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultGraphAPIVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphAPIBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.cfg.BaseURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)
}

// Deliver sends text to the recipient's WhatsApp number.
func (c *Client) Deliver(ctx context.Context, to, text string) error {
	_, err := c.SendText(ctx, to, text)
	return err
}

// SendText posts a text message and returns the Graph API response.
func (c *Client) SendText(ctx context.Context, to, text string) (*SendResponse, error) {
	body, err := json.Marshal(SendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             SendText{PreviewURL: false, Body: text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal send request: %w", ErrDelivery, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrDelivery, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: send message: %w", ErrDelivery, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrDelivery, err)
	}

	var sendResp SendResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &sendResp); err != nil && resp.StatusCode/100 == 2 {
			return nil, fmt.Errorf("%w: unmarshal response: %w", ErrDelivery, err)
		}
	}

	if sendResp.Error != nil {
		return &sendResp, fmt.Errorf("%w: API error %d: %s", ErrDelivery, sendResp.Error.Code, sendResp.Error.Message)
	}
	if resp.StatusCode/100 != 2 {
		return &sendResp, fmt.Errorf("%w: unexpected status %d: %s", ErrDelivery, resp.StatusCode, string(respBody))
	}
	return &sendResp, nil
}
