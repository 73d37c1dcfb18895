package llm

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/kandev/axiom/internal/events"
)

// OllamaProvider talks to a local Ollama daemon. No API key required.
type OllamaProvider struct {
	baseURL string
	rest    *resty.Client
	http    *http.Client

	mu    sync.RWMutex
	model string
}

// NewOllamaProvider creates an Ollama provider against the given base URL.
func NewOllamaProvider(baseURL, model string, opts Options) *OllamaProvider {
	opts = opts.withDefaults()
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		rest:    resty.New().SetBaseURL(baseURL).SetTimeout(opts.MetadataTimeout),
		http:    &http.Client{Timeout: opts.GenerateTimeout},
		model:   model,
	}
}

func (p *OllamaProvider) ID() string   { return "ollama" }
func (p *OllamaProvider) Name() string { return "Ollama" }

func (p *OllamaProvider) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *OllamaProvider) SetModel(model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = model
	return nil
}

// ListModels queries the daemon's tag list.
func (p *OllamaProvider) ListModels() ([]string, error) {
	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	resp, err := p.rest.R().SetResult(&result).Get("/api/tags")
	if err != nil {
		return nil, &Error{Kind: ErrNetwork, Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &Error{Kind: ErrAPI, StatusCode: resp.StatusCode(), Message: resp.Status()}
	}
	models := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (p *OllamaProvider) Capabilities() Capabilities {
	return Capabilities{
		Streaming:   true,
		FileContext: true,
		MaxContext:  128_000,
		MaxOutput:   8192,
	}
}

// Status is Ready; an unreachable daemon surfaces as a network error on the
// stream itself.
func (p *OllamaProvider) Status() Status {
	return Ready()
}

func (p *OllamaProvider) SendMessage(messages []ChatMessage, sink chan<- events.Event) {
	model := p.Model()
	go func() {
		if err := p.stream(model, messages, sink); err != nil {
			sink <- events.LlmError{Message: err.Error()}
		}
		sink <- events.LlmDone{}
	}()
}

// stream posts to /api/chat and forwards the NDJSON response line by line.
func (p *OllamaProvider) stream(model string, messages []ChatMessage, sink chan<- events.Event) error {
	conversation := make([]map[string]string, 0, len(messages))
	for _, m := range messages {
		conversation = append(conversation, map[string]string{
			"role":    string(m.Role),
			"content": m.Content,
		})
	}
	body, err := json.Marshal(map[string]any{
		"model":    model,
		"messages": conversation,
		"stream":   true,
	})
	if err != nil {
		return &Error{Kind: ErrParse, Message: err.Error()}
	}

	resp, err := p.http.Post(p.baseURL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: ErrNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: ErrAPI, StatusCode: resp.StatusCode, Message: resp.Status}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Done  bool   `json:"done"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(line, &chunk); err != nil {
			return &Error{Kind: ErrParse, Message: err.Error()}
		}
		if chunk.Error != "" {
			return &Error{Kind: ErrAPI, Message: chunk.Error}
		}
		if chunk.Message.Content != "" {
			sink <- events.LlmChunk{Text: chunk.Message.Content}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return &Error{Kind: ErrStream, Message: fmt.Sprintf("reading response: %v", err)}
	}
	return nil
}
