package database

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	rdsauth "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
	"github.com/jackc/pgx/v5"

	"github.com/stacklok/toolhive-gateway/internal/config"
)

const awsRegionDetect = "detect"

// tokenFunc returns a short-lived password for the configured user
type tokenFunc func(ctx context.Context) (string, error)

// newTokenFunc returns nil when cfg uses a static password
func newTokenFunc(ctx context.Context, cfg *config.DatabaseConfig) (tokenFunc, error) {
	if cfg.DynamicAuth == nil {
		return nil, nil
	}
	if cfg.DynamicAuth.AWSRDSIAM == nil {
		return nil, fmt.Errorf("dynamic auth is configured but no supported method (awsRdsIam) is set")
	}

	region, err := awsRegion(ctx, cfg.DynamicAuth.AWSRDSIAM.Region)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	return func(ctx context.Context) (string, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return "", fmt.Errorf("failed to load AWS config: %w", err)
		}
		token, err := rdsauth.BuildAuthToken(ctx, endpoint, region, cfg.User, awsCfg.Credentials)
		if err != nil {
			return "", fmt.Errorf("failed to build RDS auth token: %w", err)
		}
		return token, nil
	}, nil
}

// awsRegion resolves "detect" through the instance metadata service
func awsRegion(ctx context.Context, region string) (string, error) {
	if region == "" {
		return "", fmt.Errorf("AWS RDS IAM region is not configured")
	}
	if region != awsRegionDetect {
		return region, nil
	}

	client := imds.New(imds.Options{
		HTTPClient: &http.Client{Timeout: 2 * time.Second},
	})
	out, err := client.GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get region from IMDS: %w", err)
	}
	return out.Region, nil
}

// beforeConnect sets a fresh token as the password of every new connection
func (f tokenFunc) beforeConnect(ctx context.Context, connConfig *pgx.ConnConfig) error {
	token, err := f(ctx)
	if err != nil {
		return err
	}
	connConfig.Password = token
	return nil
}

// ConnectionString returns a connection URL for short-lived connections such as
// migrations. With dynamic auth a token is resolved and embedded as password.
func ConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	tokens, err := newTokenFunc(ctx, cfg)
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return cfg.GetConnectionString()
	}
	token, err := tokens(ctx)
	if err != nil {
		return "", err
	}
	return cfg.BuildConnectionString(token), nil
}
