package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is the subset of the Parameter Store API used by [ParameterStore].
type SSMClient interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, opts ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SecretsManagerClient is the subset of the Secrets Manager API used by [SecretsManagerStore].
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	PutSecretValue(ctx context.Context, in *secretsmanager.PutSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}

func newSSMClient(cfg aws.Config) SSMClient { return ssm.NewFromConfig(cfg) }

func newSecretsManagerClient(cfg aws.Config) SecretsManagerClient {
	return secretsmanager.NewFromConfig(cfg)
}

// ParameterStore keeps records as SecureString parameters.
type ParameterStore struct {
	client SSMClient
}

func NewParameterStore(client SSMClient) *ParameterStore {
	return &ParameterStore{client: client}
}

func (p *ParameterStore) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var nf *ssmtypes.ParameterNotFound
		if errors.As(err, &nf) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("failed to get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return nil, notFound(name)
	}
	return []byte(*out.Parameter.Value), nil
}

func (p *ParameterStore) Put(ctx context.Context, name string, value []byte) error {
	_, err := p.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(string(value)),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to put parameter %q: %w", name, err)
	}
	return nil
}

func (p *ParameterStore) Close() error { return nil }

// SecretsManagerStore keeps records as Secrets Manager secret strings.
type SecretsManagerStore struct {
	client SecretsManagerClient
}

func NewSecretsManagerStore(client SecretsManagerClient) *SecretsManagerStore {
	return &SecretsManagerStore{client: client}
}

func (s *SecretsManagerStore) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("failed to get secret %q: %w", name, err)
	}

	switch {
	case out.SecretString != nil:
		return []byte(*out.SecretString), nil
	case out.SecretBinary != nil:
		return out.SecretBinary, nil
	}
	return nil, notFound(name)
}

// Put writes a new secret version, creating the secret when it does not exist yet.
func (s *SecretsManagerStore) Put(ctx context.Context, name string, value []byte) error {
	_, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(string(value)),
	})
	if err == nil {
		return nil
	}

	var nf *smtypes.ResourceNotFoundException
	if !errors.As(err, &nf) {
		return fmt.Errorf("failed to put secret %q: %w", name, err)
	}

	if _, err := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(value)),
	}); err != nil {
		return fmt.Errorf("failed to create secret %q: %w", name, err)
	}
	return nil
}

func (s *SecretsManagerStore) Close() error { return nil }
