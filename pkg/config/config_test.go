package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidatesWithCredentials(t *testing.T) {
	cfg := Default()
	cfg.Engine.Username = "admin"
	cfg.Engine.Password = "secret"

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Collection.QueryLimit)
	assert.Equal(t, 100, cfg.Collection.ProfileLimit)
	assert.Equal(t, 100, cfg.Collection.DatasetLimit)
	assert.Equal(t, 3, cfg.Reliability.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.PollInterval)
}

func TestValidateRejectsMissingAuth(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.token or engine.username")
}

func TestValidateCloudRequiresProjectID(t *testing.T) {
	cfg := Default()
	cfg.Engine.URL = "https://api.dremio.cloud"
	cfg.Engine.Token = "pat-token"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")

	cfg.Engine.ProjectID = "proj-1"
	assert.NoError(t, cfg.Validate())
}

func TestIsCloud(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.IsCloud())

	cfg.Engine.URL = "https://app.dremio.cloud"
	assert.True(t, cfg.IsCloud())
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	t.Setenv("QL_TEST_TOKEN", "env-token")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
engine:
  url: https://api.dremio.cloud
  token: ${QL_TEST_TOKEN}
  project_id: proj-1
collection:
  query_limit: 250
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Engine.Token)
	assert.Equal(t, 250, cfg.Collection.QueryLimit)
	// Untouched sections keep defaults
	assert.Equal(t, 100, cfg.Collection.ProfileLimit)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
