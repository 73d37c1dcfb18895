package llm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/kandev/axiom/internal/events"
)

// OpenAIProvider talks to OpenAI's chat completions API. The base URL is
// configurable so OpenAI-compatible endpoints (Azure, local proxies) work too.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	rest    *resty.Client
	http    *http.Client

	mu    sync.RWMutex
	model string
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(apiKey, baseURL, model string, opts Options) *OpenAIProvider {
	opts = opts.withDefaults()
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(opts.MetadataTimeout).
			SetAuthToken(apiKey),
		http:  &http.Client{Timeout: opts.GenerateTimeout},
		model: model,
	}
}

func (p *OpenAIProvider) ID() string   { return "openai" }
func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = model
	return nil
}

// ListModels queries /models.
func (p *OpenAIProvider) ListModels() ([]string, error) {
	if p.apiKey == "" {
		return nil, &Error{Kind: ErrNotConfigured, Message: "no API key configured"}
	}
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	resp, err := p.rest.R().SetResult(&result).Get("/models")
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &Error{Kind: ErrAPI, StatusCode: resp.StatusCode(), Message: resp.Status()}
	}
	models := make([]string, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{
		Streaming:       true,
		FunctionCalling: true,
		Vision:          true,
		FileContext:     true,
		MaxContext:      128_000,
		MaxOutput:       16_384,
	}
}

func (p *OpenAIProvider) Status() Status {
	if p.apiKey == "" {
		return Unavailable("no API key configured")
	}
	return Ready()
}

func (p *OpenAIProvider) SendMessage(messages []ChatMessage, sink chan<- events.Event) {
	model := p.Model()
	go func() {
		if err := p.stream(model, messages, sink); err != nil {
			sink <- events.LlmError{Message: err.Error()}
		}
		sink <- events.LlmDone{}
	}()
}

// stream posts to /chat/completions and forwards SSE deltas.
func (p *OpenAIProvider) stream(model string, messages []ChatMessage, sink chan<- events.Event) error {
	if p.apiKey == "" {
		return &Error{Kind: ErrNotConfigured, Message: "no API key configured"}
	}

	conversation := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		conversation = append(conversation, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}
	body, err := json.Marshal(map[string]any{
		"model":       model,
		"messages":    conversation,
		"stream":      true,
		"temperature": 0.7,
	})
	if err != nil {
		return &Error{Kind: ErrParse, Message: err.Error()}
	}

	req, err := http.NewRequest(http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: ErrNetwork, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
		if data == "[DONE]" {
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed keep-alive fragments rather than failing the stream.
			continue
		}
		if chunk.Error != nil {
			return &Error{Kind: ErrAPI, Message: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			sink <- events.LlmChunk{Text: choice.Delta.Content}
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &Error{Kind: ErrStream, Message: err.Error()}
	}
	return nil
}
