package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIBase    = "https://graph.facebook.com"
	DefaultAPIVersion = "v21.0"
	DefaultLanguage   = "es_CL"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	APIBase       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	LanguageCode  string

	// WelcomeTemplate is the only template sent with a header image and the
	// customer's name as body parameter.
	WelcomeTemplate    string
	WelcomeHeaderImage string

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client sends outbound messages through the WhatsApp Cloud API.
// It implements domain.Sender.
type Client struct {
	cfg    ClientConfig
	url    string
	http   *http.Client
	logger *slog.Logger
}

// APIError is returned for non-2xx responses from the Graph API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("whatsapp API %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp API %d: %s", e.StatusCode, e.Message)
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = DefaultLanguage
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = NewHTTPClient(cfg.Timeout)
	}
	return &Client{
		cfg:    cfg,
		url:    fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(cfg.APIBase, "/"), cfg.APIVersion, cfg.PhoneNumberID),
		http:   hc,
		logger: cfg.Logger,
	}
}

// MessagesURL is the endpoint every send is posted to.
func (c *Client) MessagesURL() string { return c.url }

// SendTemplate sends an approved template. nameParam is substituted into the
// welcome template body and ignored for every other template.
func (c *Client) SendTemplate(ctx context.Context, to, template, nameParam string) (int, error) {
	tpl := &sendTemplate{
		Name:     template,
		Language: templateLanguage{Code: c.cfg.LanguageCode},
	}
	if template == c.cfg.WelcomeTemplate {
		if c.cfg.WelcomeHeaderImage != "" {
			tpl.Components = append(tpl.Components, templateComponent{
				Type: "header",
				Parameters: []templateParameter{{
					Type:  "image",
					Image: &templateImage{Link: c.cfg.WelcomeHeaderImage},
				}},
			})
		}
		if nameParam != "" {
			tpl.Components = append(tpl.Components, templateComponent{
				Type:       "body",
				Parameters: []templateParameter{{Type: "text", Text: nameParam}},
			})
		}
	}

	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         tpl,
	})
}

// SendText sends a plain text message. Links in body get a preview.
func (c *Client) SendText(ctx context.Context, to, body string) (int, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &sendText{PreviewURL: strings.Contains(body, "https://"), Body: body},
	})
}

func (c *Client) send(ctx context.Context, msg sendRequest) (int, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send %s: %w", msg.Type, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	c.logger.Debug("whatsapp send",
		"type", msg.Type, "to", msg.To, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var parsed apiErrorResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error.Message != "" {
			apiErr.Code = parsed.Error.Code
			apiErr.Message = parsed.Error.Message
		}
		return resp.StatusCode, apiErr
	}
	return resp.StatusCode, nil
}
