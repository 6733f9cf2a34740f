package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// StatusError is a non-2xx response from a model provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// payloadError marks a 2xx response whose body could not be used.
type payloadError struct{ msg string }

func (e *payloadError) Error() string { return e.msg }

const maxErrorBody = 512

func postJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, body, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &payloadError{msg: "decoding response: " + err.Error()}
	}
	return nil
}

// OpenAIChat talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI, OpenRouter, DeepSeek, local gateways).
type OpenAIChat struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Headers     map[string]string
	Client      *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIChat) Complete(ctx context.Context, system, user string) (string, error) {
	headers := map[string]string{"Authorization": "Bearer " + c.APIKey}
	for k, v := range c.Headers {
		headers[k] = v
	}
	body := chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.Temperature,
	}
	var resp chatResponse
	if err := postJSON(ctx, c.Client, strings.TrimRight(c.BaseURL, "/")+"/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &payloadError{msg: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}

// Anthropic talks to the Messages API.
type Anthropic struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Client    *http.Client
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Complete(ctx context.Context, system, user string) (string, error) {
	base := a.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	maxTokens := a.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	headers := map[string]string{
		"x-api-key":         a.APIKey,
		"anthropic-version": "2023-06-01",
	}
	body := anthropicRequest{
		Model:     a.Model,
		System:    system,
		Messages:  []chatMessage{{Role: "user", Content: user}},
		MaxTokens: maxTokens,
	}
	var resp anthropicResponse
	if err := postJSON(ctx, a.Client, strings.TrimRight(base, "/")+"/v1/messages", headers, body, &resp); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", &payloadError{msg: "no text content in response"}
	}
	return b.String(), nil
}

// Gemini talks to the generateContent API.
type Gemini struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction geminiContent   `json:"systemInstruction"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	base := g.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(base, "/"), url.PathEscape(g.Model), url.QueryEscape(g.APIKey))

	body := geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: user}}}},
	}
	var resp geminiResponse
	if err := postJSON(ctx, g.Client, endpoint, nil, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", &payloadError{msg: "no candidates in response"}
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
