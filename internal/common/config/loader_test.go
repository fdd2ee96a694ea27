package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
camunda:
  enabled: false
database:
  driver: memory
  redis:
    address: localhost:6379
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "ambient-pro", cfg.App.Name)
	assert.Equal(t, []TierConfig{{From: 1, To: 10, Rate: 200}, {From: 11, To: 20, Rate: 250}}, cfg.Commission.Tiers)
	assert.Equal(t, 200.0, cfg.Commission.FallbackRate)
	assert.False(t, cfg.Commission.MirrorCreditToCloser)
	assert.Equal(t, 6, cfg.Commission.PTOPaymentDelayDays)
	assert.Equal(t, 168, cfg.Invites.TTLHours)
	assert.Equal(t, "projects", cfg.Search.ProjectIndex)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.True(t, cfg.Notifications.Email.Enabled)
	assert.False(t, cfg.Database.Elasticsearch.Enabled())
}

func TestLoadFromFile_KeepsExplicitZeroCommission(t *testing.T) {
	path := writeConfig(t, `
camunda:
  enabled: false
database:
  driver: memory
  redis:
    address: localhost:6379
commission:
  fallback_rate: 0
  pto_payment_delay_days: 0
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Zero(t, cfg.Commission.FallbackRate)
	assert.Zero(t, cfg.Commission.PTOPaymentDelayDays)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "s3cret")
	path := writeConfig(t, `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: ambient
    user: ambient
    password: ${TEST_PG_PASSWORD}
  redis:
    address: localhost:6379
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
	assert.Contains(t, cfg.Database.Postgres.GetDSN(), "password=s3cret")
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "camunda broker required when enabled",
			body:    "database:\n  driver: memory\n  redis:\n    address: x\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "postgres host required",
			body:    "camunda:\n  enabled: false\ndatabase:\n  redis:\n    address: x\n",
			wantErr: "database.postgres.host",
		},
		{
			name: "overlapping tiers rejected",
			body: `
camunda:
  enabled: false
database:
  driver: memory
  redis:
    address: x
commission:
  tiers:
    - {from: 1, to: 10, rate: 200}
    - {from: 5, to: 20, rate: 250}
`,
			wantErr: "commission.tiers[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"close-set": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "close-set"))
	assert.True(t, IsWorkerEnabled(cfg, "assign-closer"))
	assert.Equal(t, 5, GetWorkerConfig(cfg, "assign-closer").MaxJobsActive)
	assert.Equal(t, 2, GetWorkerConfig(cfg, "close-set").MaxJobsActive)
}
