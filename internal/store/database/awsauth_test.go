package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-gateway/internal/config"
)

func rdsConfig(region string) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:     "gateway.cluster.eu-west-1.rds.amazonaws.com",
		Port:     5432,
		User:     "gateway",
		Database: "gateway",
		DynamicAuth: &config.DynamicAuthConfig{
			AWSRDSIAM: &config.AWSRDSIAMConfig{Region: region},
		},
	}
}

// isolateAWSEnv points the SDK at static credentials and away from any local
// profile so token signing never leaves the process
func isolateAWSEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY")
	t.Setenv("AWS_SESSION_TOKEN", "")
}

func TestNewTokenFuncStaticPassword(t *testing.T) {
	t.Parallel()

	f, err := newTokenFunc(context.Background(), &config.DatabaseConfig{Host: "db", Port: 5432})
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestNewTokenFuncErrors(t *testing.T) {
	t.Parallel()

	cfg := rdsConfig("")
	_, err := newTokenFunc(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region is not configured")

	cfg.DynamicAuth.AWSRDSIAM = nil
	_, err = newTokenFunc(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported method")

	_, err = ConnectionString(context.Background(), nil)
	require.Error(t, err)
}

func TestConnectionStringEmbedsRDSToken(t *testing.T) {
	isolateAWSEnv(t)

	conn, err := ConnectionString(context.Background(), rdsConfig("eu-west-1"))
	require.NoError(t, err)
	assert.Contains(t, conn, "postgres://gateway:")
	assert.Contains(t, conn, "Action%3Dconnect")
	assert.Contains(t, conn, "@gateway.cluster.eu-west-1.rds.amazonaws.com:5432/gateway")
}

func TestBeforeConnectSetsFreshToken(t *testing.T) {
	isolateAWSEnv(t)

	f, err := newTokenFunc(context.Background(), rdsConfig("eu-west-1"))
	require.NoError(t, err)
	require.NotNil(t, f)

	connConfig := &pgx.ConnConfig{}
	require.NoError(t, f.beforeConnect(context.Background(), connConfig))
	assert.Contains(t, connConfig.Password, "DBUser=gateway")
	assert.Contains(t, connConfig.Password, "X-Amz-Signature=")
}
