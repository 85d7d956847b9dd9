package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	DefaultSecretName = "OpenAI_API_Key"
	DefaultRegion     = "us-east-2"
)

type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager reads the API key from AWS Secrets Manager on every call.
type SecretsManager struct {
	logger     *zap.Logger
	client     secretsManagerAPI
	secretName string
}

func NewSecretsManager(ctx context.Context, logger *zap.Logger, secretName, region string) (*SecretsManager, error) {
	if secretName == "" {
		secretName = DefaultSecretName
	}
	if region == "" {
		region = DefaultRegion
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load SDK configuration: %w", err)
	}

	return &SecretsManager{
		logger:     logger.Named("secrets"),
		client:     secretsmanager.NewFromConfig(cfg),
		secretName: secretName,
	}, nil
}

func (s *SecretsManager) APIKey(ctx context.Context) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretName),
	})
	if err != nil {
		fields := []zap.Field{zap.String("secret_name", s.secretName), zap.Error(err)}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			fields = append(fields, zap.String("error_code", apiErr.ErrorCode()))
		}
		s.logger.Error("failed to get secret value", fields...)
		return "", fmt.Errorf("get secret %s: %w", s.secretName, err)
	}

	return parseSecret(aws.ToString(out.SecretString))
}

// parseSecret accepts either the bare key or a JSON object with an api_key field.
func parseSecret(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptySecret
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var obj struct {
		APIKey string `json:"api_key"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	if obj.APIKey == "" {
		return "", ErrEmptySecret
	}
	return obj.APIKey, nil
}
