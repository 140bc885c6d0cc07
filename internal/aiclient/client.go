// Package aiclient wraps the external content-classification capability
// behind a narrow Provider port. The concrete implementation talks to an
// OpenAI-compatible chat-completions API and asks the model for a strict
// JSON verdict.
//
// This package performs no policy decisions: timeouts, decision validation,
// the confidence downgrade, and the fallback-to-PASS mapping all live in the
// classifier service. Errors returned here are transport or parse failures
// that the service resolves to PASS at a single, documented site.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request describes one piece of content to classify.
type Request struct {
	// Content is the full text under review.
	Content string
	// ContentType is the content kind discriminant ("thread" or "post").
	ContentType string
	// AuthorID identifies the author, so repeat offenders can inform the verdict.
	AuthorID string
	// Context optionally carries surrounding discussion (e.g., the thread
	// title when classifying a post).
	Context string
}

// Verdict is the raw wire response of the classification capability. The
// Decision field is validated by the caller; any value outside the known set
// is treated as malformed there.
type Verdict struct {
	Decision   string   `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	Categories []string `json:"categories"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Provider is the port the classifier service depends on. Implementations
// must honor context cancellation; the service wraps every call in a hard
// timeout.
type Provider interface {
	Moderate(ctx context.Context, req Request) (*Verdict, error)
}

// Client is the HTTP implementation of Provider against an OpenAI-compatible
// chat-completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	// HTTP is the underlying client; overridable in tests. Timeouts are
	// driven by the request context, not by this client.
	HTTP *http.Client
}

// New constructs a Client for the given endpoint. baseURL is the API root
// (e.g. "https://api.openai.com/v1"); a trailing slash is tolerated.
func New(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		HTTP:    &http.Client{},
	}
}

// moderationPrompt instructs the model to answer with nothing but the verdict
// JSON object. Responses that deviate fail JSON parsing and are handled as
// malformed by the caller.
const moderationPrompt = `You are a content moderation system for a community forum.
Review the provided content and respond with ONLY a JSON object of this exact shape:
{"decision":"PASS"|"FLAGGED"|"BLOCKED","confidence":0.0-1.0,"reasons":["..."],"categories":["spam","harassment","hate","violence","sexual","self_harm","illegal","other"],"suggestion":"..."}
Use PASS for acceptable content, FLAGGED for content needing human review, BLOCKED for clear violations.`

// chatRequest / chatResponse mirror the subset of the chat-completions wire
// format this client uses.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Moderate submits the content for classification and parses the verdict.
// Transport errors, non-2xx statuses, and unparseable bodies are returned as
// errors; the caller decides what they degrade to.
func (c *Client) Moderate(ctx context.Context, req Request) (*Verdict, error) {
	user := fmt.Sprintf("content_type: %s\nauthor: %s\n", req.ContentType, req.AuthorID)
	if req.Context != "" {
		user += "context: " + req.Context + "\n"
	}
	user += "content:\n" + req.Content

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: moderationPrompt},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("classification API returned status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode completion envelope: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("completion contained no choices")
	}

	var v Verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(cr.Choices[0].Message.Content)), &v); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return &v, nil
}
