package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		AppName:                "fern",
		Port:                   3000,
		LogLevel:               "info",
		StartupMaxAttempts:     1,
		DatabaseHost:           "localhost",
		DatabaseName:           "fern",
		OTLPProtocol:           "grpc",
		Partitions:             4,
		CredentialRefreshCalls: 100,
		RuleCacheSize:          1000,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.Partitions = 0
	cfg.LogLevel = "loud"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Partitions")
	assert.Contains(t, err.Error(), "LogLevel")

	cfg = validConfig()
	cfg.GradServiceURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.TokenURL = "https://auth.example.com/token"
	assert.ErrorContains(t, cfg.Validate(), "CLIENT_ID")
}

func TestRequireServices(t *testing.T) {
	cfg := validConfig()
	cfg.StudentServiceURL = "http://student"
	cfg.GradServiceURL = "http://grad"
	err := cfg.RequireServices()
	require.Error(t, err)
	assert.Equal(t, "missing service endpoints: HISTORY_SERVICE_URL, PROGRAM_SERVICE_URL, RULE_SERVICE_URL", err.Error())

	cfg.ProgramServiceURL = "http://program"
	cfg.RuleServiceURL = "http://rule"
	cfg.HistoryServiceURL = "http://history"
	assert.NoError(t, cfg.RequireServices())
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PARTITIONS=7\nFERN_TEST_ONLY=1\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("PARTITIONS")
		_ = os.Unsetenv("FERN_TEST_ONLY")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Partitions)
	assert.Equal(t, "fern", cfg.AppName)
	assert.Equal(t, 100, cfg.CredentialRefreshCalls)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
