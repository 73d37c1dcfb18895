// Package llm defines the streaming chat provider contract and the provider
// registry with fallback.
//
// A provider spawns its own worker for each SendMessage call and publishes
// LlmChunk events to the sink for every token, terminated by at most one
// LlmError followed by exactly one LlmDone. The conductor depends only on
// this contract; each concrete provider translates its HTTP streaming format
// behind it.
package llm

import (
	"fmt"
	"time"

	"github.com/kandev/axiom/internal/events"
)

// Options bounds provider HTTP calls.
type Options struct {
	// MetadataTimeout bounds model listing and other metadata calls.
	MetadataTimeout time.Duration

	// GenerateTimeout bounds a full streaming generation call.
	GenerateTimeout time.Duration
}

// DefaultOptions returns the default provider timeouts.
func DefaultOptions() Options {
	return Options{
		MetadataTimeout: 10 * time.Second,
		GenerateTimeout: 120 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = 10 * time.Second
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 120 * time.Second
	}
	return o
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one turn of the conversation driving the conductor.
type ChatMessage struct {
	Role    Role
	Content string
}

// Capabilities describes what a provider supports.
type Capabilities struct {
	Streaming       bool
	FunctionCalling bool
	Vision          bool
	FileContext     bool
	MaxContext      int
	MaxOutput       int
}

// StatusKind discriminates provider availability states.
type StatusKind int

const (
	StatusReady StatusKind = iota
	StatusBusy
	StatusUnavailable
	StatusRateLimited
)

// Status is a provider's current availability.
type Status struct {
	Kind StatusKind
	// Reason explains StatusUnavailable.
	Reason string
}

// Ready means the provider accepts requests.
func Ready() Status { return Status{Kind: StatusReady} }

// Busy means the provider is processing a request.
func Busy() Status { return Status{Kind: StatusBusy} }

// Unavailable means the provider cannot serve requests.
func Unavailable(reason string) Status { return Status{Kind: StatusUnavailable, Reason: reason} }

// RateLimited means the provider is temporarily rejecting requests.
func RateLimited() Status { return Status{Kind: StatusRateLimited} }

// IsReady reports whether the provider accepts requests.
func (s Status) IsReady() bool { return s.Kind == StatusReady }

func (s Status) String() string {
	switch s.Kind {
	case StatusReady:
		return "Ready"
	case StatusBusy:
		return "Busy"
	case StatusUnavailable:
		return "Unavailable: " + s.Reason
	case StatusRateLimited:
		return "RateLimited"
	}
	return "Unknown"
}

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	ErrNotConfigured ErrorKind = iota
	ErrNetwork
	ErrAPI
	ErrStream
	ErrParse
	ErrUnavailable
	ErrRateLimited
)

// Error is a typed provider failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrNotConfigured:
		return "provider not configured: " + e.Message
	case ErrNetwork:
		return "network error: " + e.Message
	case ErrAPI:
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	case ErrStream:
		return "stream error: " + e.Message
	case ErrParse:
		return "parse error: " + e.Message
	case ErrUnavailable:
		return "provider unavailable: " + e.Message
	case ErrRateLimited:
		return "rate limited: " + e.Message
	}
	return e.Message
}

// Provider is the streaming chat completion contract.
type Provider interface {
	// ID returns the provider's stable identifier (e.g. "ollama", "openai").
	ID() string

	// Name returns the provider's display name.
	Name() string

	// Model returns the currently active model.
	Model() string

	// SetModel switches the active model.
	SetModel(model string) error

	// ListModels returns the models available from this provider.
	ListModels() ([]string, error)

	// Capabilities returns what the provider supports.
	Capabilities() Capabilities

	// Status returns the provider's current availability.
	Status() Status

	// SendMessage spawns a worker that streams the response to sink:
	// an LlmChunk per token, then at most one LlmError, then exactly one
	// LlmDone.
	SendMessage(messages []ChatMessage, sink chan<- events.Event)
}

// Info is a display snapshot of a provider for model selectors.
type Info struct {
	ID     string
	Name   string
	Model  string
	Status Status
}

// Display returns a human-readable "Name (model)" string.
func (i Info) Display() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.Model)
}
