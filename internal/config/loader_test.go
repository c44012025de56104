package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/fieldlog/internal/db"
)

const sampleConfig = `
database:
  host: db.internal
  port: 6432
  dbname: tracking

server:
  address: ":9090"
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
  export:
    maxRows: 500

fieldlog:
  failSilently: false
  callbacks: [audit.notify]
  extraData:
    source: config
  groups:
    - name: inventory
      entityTypes:
        - name: Asset
          fields: ALL
          excludeFields: [notes]
          relatedFields: [site.name]
          callbacks: [kafka.publish]
        - name: Site
          enabled: false
          fields: [name, code]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	return dir
}

func TestLoadDBConfig(t *testing.T) {
	dir := writeConfig(t, sampleConfig)
	t.Setenv("DB_PASSWORD", "from-env")

	cfg, err := LoadDBConfig(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, "tracking", cfg.DBName)
	assert.Equal(t, "from-env", cfg.Password)
	assert.Equal(t, db.DefaultConfig().User, cfg.User)
}

func TestLoadDBConfigWithoutFile(t *testing.T) {
	cfg, err := LoadDBConfig(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, db.DefaultConfig(), cfg)
}

func TestLoadTrackingSettings(t *testing.T) {
	settings, err := LoadTrackingSettings(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	assert.Nil(t, settings.Enabled)
	require.NotNil(t, settings.FailSilently)
	assert.False(t, *settings.FailSilently)
	assert.Equal(t, []string{"audit.notify"}, settings.Callbacks)
	assert.Equal(t, map[string]any{"source": "config"}, settings.ExtraData)

	require.Len(t, settings.Groups, 1)
	group := settings.Groups[0]
	assert.Equal(t, "inventory", group.Name)
	require.Len(t, group.EntityTypes, 2)

	asset := group.EntityTypes[0]
	assert.Equal(t, "Asset", asset.Name)
	assert.Equal(t, []string{"ALL"}, asset.Fields)
	assert.Equal(t, []string{"notes"}, asset.ExcludeFields)
	assert.Equal(t, []string{"site.name"}, asset.RelatedFields)
	assert.Equal(t, []string{"kafka.publish"}, asset.Callbacks)

	site := group.EntityTypes[1]
	require.NotNil(t, site.Enabled)
	assert.False(t, *site.Enabled)
	assert.Equal(t, []string{"name", "code"}, site.Fields)
}

func TestLoadTrackingSettingsEnvOverride(t *testing.T) {
	t.Setenv("FIELDLOG_ENABLED", "false")

	settings, err := LoadTrackingSettings(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)
	require.NotNil(t, settings.Enabled)
	assert.False(t, *settings.Enabled)
}

func TestLoadServerConfig(t *testing.T) {
	cfg, err := LoadServerConfig(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "field-logs", cfg.Kafka.Topic)
	assert.Equal(t, 500, cfg.Export.MaxRows)
	assert.Equal(t, DefaultServerConfig().AllowedOrigins, cfg.AllowedOrigins)
}

func TestLoadServerConfigEnvOverride(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("SERVER_ADDRESS", ":7070")

	cfg, err := LoadServerConfig(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Address)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}
