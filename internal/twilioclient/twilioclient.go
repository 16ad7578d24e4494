package twilioclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com"

type Client struct {
	http                *http.Client
	baseURL             string
	accountSID          string
	authToken           string
	fromNumber          string
	messagingServiceSID string
}

type Options struct {
	BaseURL             string
	FromNumber          string
	MessagingServiceSID string
}

func New(httpClient *http.Client, accountSID, authToken string, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimSpace(strings.TrimRight(opts.BaseURL, "/"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:                httpClient,
		baseURL:             baseURL,
		accountSID:          strings.TrimSpace(accountSID),
		authToken:           strings.TrimSpace(authToken),
		fromNumber:          strings.TrimSpace(opts.FromNumber),
		messagingServiceSID: strings.TrimSpace(opts.MessagingServiceSID),
	}
}

type messageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SendSMS creates an outbound message and returns its SID. A messaging
// service SID takes precedence over a bare from number when both are set.
func (c *Client) SendSMS(ctx context.Context, to, body, statusCallbackURL string) (string, error) {
	if c == nil || c.http == nil {
		return "", fmt.Errorf("twilio client is not initialized")
	}
	if c.accountSID == "" || c.authToken == "" {
		return "", fmt.Errorf("twilio credentials are required")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return "", fmt.Errorf("to number is required")
	}
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("message body is required")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)
	switch {
	case c.messagingServiceSID != "":
		form.Set("MessagingServiceSid", c.messagingServiceSID)
	case c.fromNumber != "":
		form.Set("From", c.fromNumber)
	default:
		return "", fmt.Errorf("no from number or messaging service configured")
	}
	if strings.TrimSpace(statusCallbackURL) != "" {
		form.Set("StatusCallback", statusCallbackURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("twilio read response: %w", err)
	}

	var out messageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("twilio decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Message != "" {
			return "", fmt.Errorf("twilio http %d: %s (code %d)", resp.StatusCode, out.Message, out.Code)
		}
		return "", fmt.Errorf("twilio http %d: %s", resp.StatusCode, string(raw))
	}
	if out.SID == "" {
		return "", fmt.Errorf("twilio response missing sid")
	}
	return out.SID, nil
}

// DeliveryStatus is the subset of a status callback the server records.
type DeliveryStatus struct {
	MessageSID   string
	Status       string
	ErrorCode    string
	ErrorMessage string
}

// ParseStatusCallback reads the delivery-status fields from a webhook form.
func ParseStatusCallback(form url.Values) DeliveryStatus {
	return DeliveryStatus{
		MessageSID:   strings.TrimSpace(form.Get("MessageSid")),
		Status:       strings.TrimSpace(form.Get("MessageStatus")),
		ErrorCode:    strings.TrimSpace(form.Get("ErrorCode")),
		ErrorMessage: strings.TrimSpace(form.Get("ErrorMessage")),
	}
}
