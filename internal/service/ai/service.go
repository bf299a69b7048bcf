package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carechat/internal/config"
	"carechat/internal/models"

	openai "github.com/sashabaranov/go-openai"
)

// AssistantSource resolves the cached assistant configuration. Resolution
// happens at most once per process; see service/assistant.
type AssistantSource interface {
	Resolve(ctx context.Context) (*models.AssistantConfig, error)
}

// Service owns all provider-side traffic for one process: file uploads,
// the streaming Responses relay and the legacy thread-polling path. It holds
// no per-user state; conversation continuity is whatever the caller sends.
type Service struct {
	client      *openai.Client
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	assistantID string
	assistants  AssistantSource

	pollAttempts int
	pollInterval time.Duration
}

const defaultBaseURL = "https://api.openai.com/v1"

// NewService wires the go-openai client plus the raw HTTP client used for
// the Responses endpoint, which the SDK does not cover.
func NewService(apiKey string, provCfg config.ProviderConfig, assistants AssistantSource) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if provCfg.AssistantID == "" {
		return nil, errors.New("assistant id is required")
	}
	baseURL := strings.TrimSuffix(provCfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = baseURL

	return &Service{
		client:       openai.NewClientWithConfig(clientCfg),
		httpClient:   &http.Client{},
		apiKey:       apiKey,
		baseURL:      baseURL,
		assistantID:  provCfg.AssistantID,
		assistants:   assistants,
		pollAttempts: provCfg.PollAttempts,
		pollInterval: time.Duration(provCfg.PollIntervalMS) * time.Millisecond,
	}, nil
}

// TurnRequest is one inbound chat turn after HTTP-level validation.
type TurnRequest struct {
	Message        string
	ThreadID       string
	CarriedFileIDs []string
	Files          []models.UploadedFile
}

// TurnResult is the finalized outcome of a non-streaming turn.
type TurnResult struct {
	Text          string
	ThreadID      string
	FileIDs       []string
	FilesUploaded int
}

// UpstreamError wraps a non-2xx answer from any provider endpoint with
// enough detail for logs and error payloads.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: %d - %s", e.Endpoint, e.Status, e.Body)
}

// mergeFileIDs combines the ids carried over from the client with the newly
// uploaded ones, deduplicated, input order preserved.
func mergeFileIDs(carried []string, uploaded []models.ProviderFile) []string {
	seen := make(map[string]struct{}, len(carried)+len(uploaded))
	merged := make([]string, 0, len(carried)+len(uploaded))
	for _, id := range carried {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	for _, f := range uploaded {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		merged = append(merged, f.ID)
	}
	return merged
}
