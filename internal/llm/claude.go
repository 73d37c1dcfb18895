package llm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/kandev/axiom/internal/events"
)

const anthropicVersion = "2023-06-01"

// ClaudeProvider talks to Anthropic's messages API.
type ClaudeProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	model string
}

// NewClaudeProvider creates a Claude provider.
func NewClaudeProvider(apiKey, baseURL, model string, opts Options) *ClaudeProvider {
	opts = opts.withDefaults()
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &ClaudeProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: opts.GenerateTimeout},
		model:   model,
	}
}

func (p *ClaudeProvider) ID() string   { return "claude" }
func (p *ClaudeProvider) Name() string { return "Claude" }

func (p *ClaudeProvider) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *ClaudeProvider) SetModel(model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = model
	return nil
}

// ListModels returns the known model set; the messages API has no listing
// endpoint usable with every key type.
func (p *ClaudeProvider) ListModels() ([]string, error) {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-haiku-20241022",
	}, nil
}

func (p *ClaudeProvider) Capabilities() Capabilities {
	return Capabilities{
		Streaming:       true,
		FunctionCalling: true,
		Vision:          true,
		FileContext:     true,
		MaxContext:      200_000,
		MaxOutput:       64_000,
	}
}

func (p *ClaudeProvider) Status() Status {
	if p.apiKey == "" {
		return Unavailable("no API key configured")
	}
	return Ready()
}

func (p *ClaudeProvider) SendMessage(messages []ChatMessage, sink chan<- events.Event) {
	model := p.Model()
	go func() {
		if err := p.stream(model, messages, sink); err != nil {
			sink <- events.LlmError{Message: err.Error()}
		}
		sink <- events.LlmDone{}
	}()
}

// stream posts to /v1/messages and forwards SSE content deltas. System
// messages are lifted into the top-level system field as the API requires.
func (p *ClaudeProvider) stream(model string, messages []ChatMessage, sink chan<- events.Event) error {
	if p.apiKey == "" {
		return &Error{Kind: ErrNotConfigured, Message: "no API key configured"}
	}

	var system string
	conversation := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		conversation = append(conversation, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}

	payload := map[string]any{
		"model":      model,
		"messages":   conversation,
		"max_tokens": 8192,
		"stream":     true,
	}
	if system != "" {
		payload["system"] = system
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: ErrParse, Message: err.Error()}
	}

	req, err := http.NewRequest(http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: ErrNetwork, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.http.Do(req)
	if err != nil {
		return &Error{Kind: ErrNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &Error{Kind: ErrRateLimited, StatusCode: resp.StatusCode, Message: resp.Status}
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: ErrAPI, StatusCode: resp.StatusCode, Message: resp.Status}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				sink <- events.LlmChunk{Text: event.Delta.Text}
			}
		case "error":
			msg := "unknown error"
			if event.Error != nil {
				msg = event.Error.Message
			}
			return &Error{Kind: ErrAPI, Message: msg}
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &Error{Kind: ErrStream, Message: err.Error()}
	}
	return nil
}
