package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "datasethub", cfg.App.Name)
	require.Equal(t, "0.0.0.0:5000", cfg.HTTPAddr())
	require.Equal(t, "dataset.events", cfg.RabbitMQ.EventQueue)
	require.Equal(t, 60, cfg.Redis.RecordTTLSeconds)
	require.Equal(t, 100, cfg.Upload.MaxFileSizeMB)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("MONGO_DATABASE", "datasets_test")
	t.Setenv("S3_BUCKET", "test-bucket")
	t.Setenv("UPLOAD_MAX_FILE_SIZE_MB", "5")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.App.Port)
	require.Equal(t, "datasets_test", cfg.Mongo.Database)
	require.Equal(t, "test-bucket", cfg.S3.Bucket)
	require.Equal(t, 5, cfg.Upload.MaxFileSizeMB)
}

func TestMySQLDSN(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t,
		"root:@tcp(127.0.0.1:3306)/datasethub_audit?parseTime=true&loc=Local&charset=utf8mb4",
		cfg.MySQLDSN())
}
