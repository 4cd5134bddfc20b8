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

	"github.com/arogya-clinic/whatsapp-assistant/pkg/logging"
)

const (
	defaultBaseURL = "https://graph.facebook.com/v19.0"

	maxButtons        = 3
	maxButtonTitle    = 20
	maxRowsPerSection = 10
	maxRowTitle       = 24
	maxRowDescription = 72
	maxListButton     = 20
)

// Config controls how the Cloud API client behaves.
type Config struct {
	BaseURL      string
	AccessToken  string
	PhoneID      string
	TemplateLang string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *logging.Logger
}

// Client wraps the WhatsApp Cloud API messages endpoint.
type Client struct {
	baseURL      string
	accessToken  string
	phoneID      string
	templateLang string
	httpClient   *http.Client
	logger       *logging.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("whatsapp: access token is required")
	}
	if strings.TrimSpace(cfg.PhoneID) == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	lang := cfg.TemplateLang
	if lang == "" {
		lang = "en"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:      baseURL,
		accessToken:  cfg.AccessToken,
		phoneID:      cfg.PhoneID,
		templateLang: lang,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) SendResult {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]any{"body": body},
	}
	return c.post(ctx, payload)
}

// SendButtons sends an interactive message with up to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button, header, footer string) SendResult {
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	actions := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		actions = append(actions, map[string]any{
			"type": "reply",
			"reply": map[string]any{
				"id":    b.ID,
				"title": truncate(b.Title, maxButtonTitle),
			},
		})
	}
	interactive := map[string]any{
		"type":   "button",
		"body":   map[string]any{"text": body},
		"action": map[string]any{"buttons": actions},
	}
	if header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": header}
	}
	if footer != "" {
		interactive["footer"] = map[string]any{"text": footer}
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	}
	return c.post(ctx, payload)
}

// SendList sends a sectioned interactive list.
func (c *Client) SendList(ctx context.Context, to, body, buttonLabel string, sections []ListSection) SendResult {
	secs := make([]map[string]any, 0, len(sections))
	for _, s := range sections {
		rows := s.Rows
		if len(rows) > maxRowsPerSection {
			rows = rows[:maxRowsPerSection]
		}
		outRows := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			row := map[string]any{
				"id":    r.ID,
				"title": truncate(r.Title, maxRowTitle),
			}
			if r.Description != "" {
				row["description"] = truncate(r.Description, maxRowDescription)
			}
			outRows = append(outRows, row)
		}
		secs = append(secs, map[string]any{"title": s.Title, "rows": outRows})
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "list",
			"body": map[string]any{"text": body},
			"action": map[string]any{
				"button":   truncate(buttonLabel, maxListButton),
				"sections": secs,
			},
		},
	}
	return c.post(ctx, payload)
}

// SendTemplate sends a pre-approved template with positional body parameters.
func (c *Client) SendTemplate(ctx context.Context, to, name string, params []TemplateParam) SendResult {
	template := map[string]any{
		"name":     name,
		"language": map[string]any{"code": c.templateLang},
	}
	if len(params) > 0 {
		template["components"] = []map[string]any{
			{"type": "body", "parameters": params},
		}
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	return c.post(ctx, payload)
}

// MarkRead marks an inbound message as read.
func (c *Client) MarkRead(ctx context.Context, messageID string) SendResult {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	return c.post(ctx, payload)
}

type apiResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, payload map[string]any) SendResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("whatsapp: marshal payload: %v", err)}
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{Error: fmt.Sprintf("whatsapp: build request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SendResult{Error: fmt.Sprintf("whatsapp: request failed: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendResult{Error: fmt.Sprintf("whatsapp: read response: %v", err)}
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil && len(raw) > 0 {
		c.logger.Warn("whatsapp: unparseable api response", "status", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("status %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return SendResult{Error: "whatsapp: " + msg}
	}

	result := SendResult{Success: true}
	if len(parsed.Messages) > 0 {
		result.MessageID = parsed.Messages[0].ID
	}
	return result
}
