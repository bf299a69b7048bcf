package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"carechat/internal/config"
	"carechat/internal/models"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"
)

// Service resolves the hosted assistant's configuration (model, instruction
// text, tool declarations). The upstream fetch happens at most once per
// process lifetime: concurrent cold-start requests share one in-flight call
// through the singleflight group, and a successful result is never
// invalidated until restart. A failed fetch is not cached, so the next
// request retries.
type Service struct {
	client      *openai.Client
	assistantID string

	mu     sync.RWMutex
	cached *models.AssistantConfig
	group  singleflight.Group

	// fetch is swappable for tests.
	fetch func(ctx context.Context) (*models.AssistantConfig, error)
}

func NewService(apiKey string, provCfg config.ProviderConfig) (*Service, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if provCfg.AssistantID == "" {
		return nil, errors.New("assistant id is required")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if provCfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(provCfg.BaseURL, "/")
	}
	s := &Service{
		client:      openai.NewClientWithConfig(clientCfg),
		assistantID: provCfg.AssistantID,
	}
	s.fetch = func(ctx context.Context) (*models.AssistantConfig, error) {
		return s.retrieve(ctx, provCfg.Model)
	}
	return s, nil
}

// Resolve returns the cached configuration, fetching it on first use.
func (s *Service) Resolve(ctx context.Context) (*models.AssistantConfig, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := s.group.Do("assistant-config", func() (interface{}, error) {
		s.mu.RLock()
		cached := s.cached
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		cfg, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cached = cfg
		s.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AssistantConfig), nil
}

func (s *Service) retrieve(ctx context.Context, fallbackModel string) (*models.AssistantConfig, error) {
	asst, err := s.client.RetrieveAssistant(ctx, s.assistantID)
	if err != nil {
		return nil, fmt.Errorf("retrieve assistant %s: %w", s.assistantID, err)
	}

	cfg := &models.AssistantConfig{Model: asst.Model}
	if cfg.Model == "" {
		cfg.Model = fallbackModel
	}
	if asst.Instructions != nil {
		cfg.Instructions = *asst.Instructions
	}

	var vectorStoreIDs []string
	if asst.ToolResources != nil && asst.ToolResources.FileSearch != nil {
		vectorStoreIDs = asst.ToolResources.FileSearch.VectorStoreIDs
	}
	for _, tool := range asst.Tools {
		decl := models.ToolDecl{Type: string(tool.Type)}
		if decl.Type == models.ToolFileSearch {
			decl.VectorStoreIDs = vectorStoreIDs
		}
		cfg.Tools = append(cfg.Tools, decl)
	}
	return cfg, nil
}
