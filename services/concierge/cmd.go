package concierge

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/pkg/httpserver"
	"github.com/kaytu-io/ai-concierge/pkg/koanf"
	"github.com/kaytu-io/ai-concierge/pkg/postgres"
	"github.com/kaytu-io/ai-concierge/pkg/secrets"
	"github.com/kaytu-io/ai-concierge/services/concierge/api"
	"github.com/kaytu-io/ai-concierge/services/concierge/api/chat"
	"github.com/kaytu-io/ai-concierge/services/concierge/config"
	"github.com/kaytu-io/ai-concierge/services/concierge/db"
	"github.com/kaytu-io/ai-concierge/services/concierge/openai"
	"github.com/kaytu-io/ai-concierge/services/concierge/repository"
	"github.com/kaytu-io/ai-concierge/services/concierge/turn"
)

const envPrefix = "concierge"

func Command() *cobra.Command {
	cnf := koanf.Provide(envPrefix, config.Default())

	cmd := &cobra.Command{
		Use:   "concierge",
		Short: "Serves the AI concierge chat endpoint over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			logger = logger.Named("concierge")
			defer logger.Sync() //nolint:errcheck

			a, err := NewAPI(cmd.Context(), logger, cnf)
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true

			return httpserver.RegisterAndStart(
				cmd.Context(),
				logger,
				cnf.Http.Address,
				a,
				httpserver.WithCORS(cnf.CORS.AllowOrigins, cnf.CORS.MaxAge),
			)
		},
	}

	return cmd
}

// LambdaCommand serves the same routes as API Gateway proxy events.
func LambdaCommand() *cobra.Command {
	cnf := koanf.Provide(envPrefix, config.Default())

	cmd := &cobra.Command{
		Use:   "concierge-lambda",
		Short: "Serves the AI concierge chat endpoint as an AWS Lambda function",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			logger = logger.Named("concierge")

			a, err := NewAPI(cmd.Context(), logger, cnf)
			if err != nil {
				return err
			}

			tp, err := httpserver.InitTracer()
			if err != nil {
				logger.Error("failed to init tracer", zap.Error(err))
			}

			e := httpserver.Register(logger, a, httpserver.WithCORS(cnf.CORS.AllowOrigins, cnf.CORS.MaxAge))

			handler := httpserver.LambdaHandler(e)
			if tp != nil {
				handler = handler.FlushAfter(logger, tp.ForceFlush)
			}

			cmd.SilenceUsage = true
			lambda.Start(handler)
			return nil
		},
	}

	return cmd
}

// NewAPI wires the assistant store, the credential provider and the chat handler.
func NewAPI(ctx context.Context, logger *zap.Logger, cnf config.ConciergeConfig) (*api.API, error) {
	store, err := newStore(logger, cnf)
	if err != nil {
		return nil, err
	}

	provider, err := newSecrets(ctx, logger, cnf)
	if err != nil {
		return nil, err
	}

	connect := func(apiKey string) chat.Client {
		return openai.New(logger, cnf.OpenAI, apiKey)
	}

	return api.New(logger, chat.New(
		logger,
		provider,
		connect,
		openai.NewResolver(logger, store, cnf.Assistant),
		turn.OptionsFromConfig(cnf.Poll),
	)), nil
}

func newStore(logger *zap.Logger, cnf config.ConciergeConfig) (repository.Assistant, error) {
	var store repository.Assistant

	switch cnf.Store.Driver {
	case config.StoreDriverMemory, "":
		store = repository.NewAssistantMemory()
	case config.StoreDriverPostgres:
		orm, err := postgres.NewClient(&postgres.Config{
			Host:    cnf.Postgres.Host,
			Port:    cnf.Postgres.Port,
			User:    cnf.Postgres.Username,
			Passwd:  cnf.Postgres.Password,
			DB:      cnf.Postgres.DB,
			SSLMode: cnf.Postgres.SSLMode,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("new postgres client: %w", err)
		}

		database := db.New(orm)
		if err := database.Initialize(); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		store = repository.NewAssistantSQL(database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cnf.Store.Driver)
	}

	if cnf.Redis.Address != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cnf.Redis.Address},
			Password: cnf.Redis.Password,
			DB:       cnf.Redis.DB,
		})
		store = repository.NewAssistantRedis(logger, client, store, cnf.Redis.TTL)
	}

	return store, nil
}

func newSecrets(ctx context.Context, logger *zap.Logger, cnf config.ConciergeConfig) (secrets.Provider, error) {
	switch cnf.Secret.Source {
	case config.SecretSourceStatic:
		return secrets.NewStatic(cnf.OpenAI.Token), nil
	case config.SecretSourceSecretsManager, "":
		sm, err := secrets.NewSecretsManager(ctx, logger, cnf.Secret.Name, cnf.Secret.Region)
		if err != nil {
			return nil, fmt.Errorf("new secrets manager client: %w", err)
		}
		return sm, nil
	default:
		return nil, fmt.Errorf("unknown secret source %q", cnf.Secret.Source)
	}
}
