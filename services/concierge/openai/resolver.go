package openai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/services/concierge/config"
	"github.com/kaytu-io/ai-concierge/services/concierge/model"
	"github.com/kaytu-io/ai-concierge/services/concierge/repository"
)

type AssistantAPI interface {
	FindAssistant(ctx context.Context, name string) (string, error)
	CreateAssistant(ctx context.Context, cnf config.Assistant) (string, error)
}

// Resolver hands out the assistant of a tenant, creating it on first use.
type Resolver struct {
	logger *zap.Logger
	store  repository.Assistant
	cnf    config.Assistant
}

func NewResolver(logger *zap.Logger, store repository.Assistant, cnf config.Assistant) *Resolver {
	return &Resolver{
		logger: logger.Named("assistant-resolver"),
		store:  store,
		cnf:    cnf,
	}
}

func (r *Resolver) Resolve(ctx context.Context, api AssistantAPI, tenant string) (string, error) {
	stored, err := r.store.Get(ctx, tenant)
	switch {
	case err == nil:
		return stored.AssistantID, nil
	case !errors.Is(err, repository.ErrAssistantNotFound):
		// the store is an optimisation, the remote lookup below still works
		r.logger.Warn("failed to read assistant store", zap.String("tenant", tenant), zap.Error(err))
	}

	id, err := api.FindAssistant(ctx, r.cnf.Name)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = api.CreateAssistant(ctx, r.cnf)
		if err != nil {
			return "", err
		}
	}

	err = r.store.Save(ctx, model.Assistant{
		Tenant:      tenant,
		AssistantID: id,
		Name:        r.cnf.Name,
		Model:       r.cnf.Model,
	})
	if err != nil {
		r.logger.Warn("failed to save assistant", zap.String("tenant", tenant), zap.String("assistant_id", id), zap.Error(err))
	}

	return id, nil
}

// Forget drops the tenant's stored assistant so the next turn resolves it again.
func (r *Resolver) Forget(ctx context.Context, tenant string) error {
	if err := r.store.Delete(ctx, tenant); err != nil {
		return fmt.Errorf("forget assistant of %s: %w", tenant, err)
	}
	return nil
}
