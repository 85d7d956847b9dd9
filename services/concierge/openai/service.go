package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/pkg/utils"
	"github.com/kaytu-io/ai-concierge/services/concierge/config"
)

const azureAPIVersion = "2024-02-15-preview"

// Service talks to the assistants API with one API key. It is cheap to build and is
// built per request from that request's credential.
type Service struct {
	logger *zap.Logger
	client *openai.Client
}

func New(logger *zap.Logger, cnf config.OpenAI, token string) *Service {
	var clientConfig openai.ClientConfig
	if cnf.IsAzure {
		clientConfig = openai.DefaultAzureConfig(token, cnf.BaseURL)
		clientConfig.APIVersion = azureAPIVersion
	} else {
		clientConfig = openai.DefaultConfig(token)
		clientConfig.OrgID = cnf.OrgID
		if cnf.BaseURL != "" {
			clientConfig.BaseURL = cnf.BaseURL
		}
	}
	if cnf.RequestTimeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cnf.RequestTimeout}
	}

	return &Service{
		logger: logger.Named("openai"),
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// FindAssistant returns the id of the first assistant named name, or "" when none exists.
func (s *Service) FindAssistant(ctx context.Context, name string) (string, error) {
	var after *string
	for {
		assistants, err := s.client.ListAssistants(ctx, utils.GetPointer(100), nil, after, nil)
		if err != nil {
			return "", fmt.Errorf("failed to list assistants due to %w", err)
		}

		for _, as := range assistants.Assistants {
			if as.Name != nil && *as.Name == name {
				return as.ID, nil
			}
		}

		if !assistants.HasMore || assistants.LastID == nil {
			return "", nil
		}
		after = assistants.LastID
	}
}

func (s *Service) CreateAssistant(ctx context.Context, cnf config.Assistant) (string, error) {
	a, err := s.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        cnf.Model,
		Name:         utils.GetPointer(cnf.Name),
		Instructions: utils.GetPointer(cnf.Instructions),
	})
	if err != nil {
		s.logger.Error("failed to create assistant", zap.Error(err), zap.String("assistant_name", cnf.Name))
		return "", fmt.Errorf("failed to create assistant due to %w", err)
	}

	s.logger.Info("created assistant", zap.String("assistant_id", a.ID), zap.String("assistant_name", cnf.Name))
	return a.ID, nil
}

func (s *Service) Client() *openai.Client {
	return s.client
}
