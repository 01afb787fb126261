// Package ai talks to a Gemini-style generateContent endpoint for photo
// descriptions, biometric validation and theft-risk analysis. Every call
// degrades to a deterministic fallback when no key is configured or the
// service fails, so registration never blocks on the model.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultEndpoint is the public Generative Language API base URL.
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gemini-2.5-flash"
	// DefaultTimeout bounds a single model call.
	DefaultTimeout = 20 * time.Second
	// MaxResponseSize caps the decoded response body (1MB).
	MaxResponseSize = 1 << 20
)

// ErrNotConfigured is returned by the raw generate call when no API key is set.
var ErrNotConfigured = errors.New("ai: api key not configured")

// Config holds client configuration.
type Config struct {
	APIKey     string
	Model      string
	Endpoint   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the model API.
type Client struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// New builds a Client, filling defaults for every unset field.
func New(cfg Config) *Client {
	c := &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		model:    cfg.Model,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func textPart(text string) part { return part{Text: text} }

func imagePart(image []byte) part {
	return part{InlineData: &inlineData{
		MimeType: http.DetectContentType(image),
		Data:     base64.StdEncoding.EncodeToString(image),
	}}
}

// generate performs one generateContent call and returns the concatenated
// text of the first candidate.
func (c *Client) generate(ctx context.Context, jsonOutput bool, parts ...part) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	body := generateRequest{Contents: []content{{Parts: parts}}}
	if jsonOutput {
		body.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("model call", "model", c.model, "status", resp.StatusCode, "duration", time.Since(start))

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decoded.Error != nil {
			return "", fmt.Errorf("model status %d: %s", resp.StatusCode, decoded.Error.Message)
		}
		return "", fmt.Errorf("model status %d", resp.StatusCode)
	}
	if len(decoded.Candidates) == 0 {
		return "", errors.New("model returned no candidates")
	}
	var sb strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("model returned empty text")
	}
	return text, nil
}

// stripFence removes a ```json fenced block wrapper if the model added one.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
