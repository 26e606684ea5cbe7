package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProviderKind identifies which backend a model belongs to.
type ProviderKind string

// Known providers. Only ProviderOllama is served by the local daemon.
const (
	ProviderOllama     ProviderKind = "ollama"
	ProviderOpenAI     ProviderKind = "openai"
	ProviderDeepseek   ProviderKind = "deepseek"
	ProviderGemini     ProviderKind = "gemini"
	ProviderOpenRouter ProviderKind = "openrouter"
)

var knownProviders = []ProviderKind{
	ProviderOllama,
	ProviderOpenAI,
	ProviderDeepseek,
	ProviderGemini,
	ProviderOpenRouter,
}

// IsLocal reports whether models of this provider are served by the local daemon.
func (p ProviderKind) IsLocal() bool {
	return p == ProviderOllama
}

// ParseProviderKind parses a provider name case-insensitively.
func ParseProviderKind(s string) (ProviderKind, error) {
	candidate := ProviderKind(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range knownProviders {
		if candidate == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %q", MsgUnknownProvider, s)
}

// ModelDescriptor is one entry of the daemon's tag listing. Only Name is
// interpreted; the remaining fields are kept as raw JSON of any shape.
type ModelDescriptor struct {
	Name       string          `json:"name"`
	Model      json.RawMessage `json:"model,omitempty"`
	ModifiedAt json.RawMessage `json:"modified_at,omitempty"`
	Size       json.RawMessage `json:"size,omitempty"`
	Digest     json.RawMessage `json:"digest,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// TagList is the decoded response of the daemon's tag listing endpoint.
type TagList struct {
	Models []ModelDescriptor `json:"models"`

	// Raw holds the body exactly as the daemon sent it.
	Raw []byte `json:"-"`
}

// Names returns the model names in daemon order.
func (t *TagList) Names() []string {
	names := make([]string, 0, len(t.Models))
	for _, m := range t.Models {
		names = append(names, m.Name)
	}
	return names
}

// Contains reports whether a model with exactly this name is installed.
func (t *TagList) Contains(name string) bool {
	for _, m := range t.Models {
		if m.Name == name {
			return true
		}
	}
	return false
}

// AvailabilityReason classifies why a model is not ready.
type AvailabilityReason string

const (
	ReasonNoModelSelected    AvailabilityReason = "no_model_selected"
	ReasonServiceUnavailable AvailabilityReason = "service_unavailable"
	ReasonNoModelsInstalled  AvailabilityReason = "no_models_installed"
	ReasonNotInstalled       AvailabilityReason = "not_installed"
	ReasonConnectionFailed   AvailabilityReason = "connection_failed"
)

// AvailabilityResult is the outcome of an availability check.
// IsRunning == true implies Error is empty; IsRunning == false implies it is set.
type AvailabilityResult struct {
	IsRunning         bool               `json:"isRunning"`
	Error             string             `json:"error,omitempty"`
	ResolvedModelName string             `json:"resolvedModelName,omitempty"`
	Reason            AvailabilityReason `json:"reason,omitempty"`
}

// ModelListResult is the outcome of listing installed models.
type ModelListResult struct {
	Models []string `json:"models"`
	Error  string   `json:"error,omitempty"`
}

// RequestStats holds aggregated request statistics for monitoring.
type RequestStats struct {
	TotalRequests      int64           `json:"total_requests"`
	SuccessfulRequests int64           `json:"successful_requests"`
	FailedRequests     int64           `json:"failed_requests"`
	TotalResponseTime  int64           `json:"total_response_time"`
	LastRequestTime    time.Time       `json:"last_request_time"`
	RequestHistory     []RequestRecord `json:"request_history"`
}

// RequestRecord represents a single request's metadata for history tracking.
type RequestRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Success      bool      `json:"success"`
	ResponseTime int64     `json:"response_time"`
	Model        string    `json:"model"`
	Endpoint     string    `json:"endpoint"`
}

// PeriodStats holds computed statistics for a time period.
type PeriodStats struct {
	Requests        int64   `json:"requests"`
	SuccessRate     float64 `json:"successRate"`
	AvgResponseTime int64   `json:"avgResponseTime"`
	QPS             float64 `json:"qps"`
}
