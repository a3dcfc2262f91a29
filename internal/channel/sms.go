package channel

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

type SMSOptions struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	// AddressPrefix is prepended to From and To, e.g. "whatsapp:".
	AddressPrefix string
	Timeout       time.Duration
}

// SMSGateway talks to a Twilio-style messaging REST API. The same gateway
// serves WhatsApp when AddressPrefix is set.
type SMSGateway struct {
	opts   SMSOptions
	client *http.Client
}

func NewSMSGateway(opts SMSOptions, client *http.Client) *SMSGateway {
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &SMSGateway{opts: opts, client: client}
}

type smsResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}

func (g *SMSGateway) Send(ctx context.Context, env Envelope) (string, error) {
	if strings.TrimSpace(env.Destination) == "" {
		return "", Permanent(fmt.Errorf("sms: empty destination"))
	}

	form := url.Values{}
	form.Set("From", g.opts.AddressPrefix+g.opts.From)
	form.Set("To", g.opts.AddressPrefix+env.Destination)
	form.Set("Body", env.Body)
	for _, a := range env.Attachments {
		form.Add("MediaUrl", a)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", g.opts.BaseURL, url.PathEscape(g.opts.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", Permanent(fmt.Errorf("sms: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.opts.AccountSID, g.opts.AuthToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out smsResponse
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return out.SID, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("sms gateway: %s: %s", resp.Status, out.Message)
	default:
		// 4xx: bad number, unverified sender, bad credentials
		return "", Permanent(fmt.Errorf("sms gateway: %s: %s", resp.Status, out.Message))
	}
}
