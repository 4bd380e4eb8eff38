package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoad_LocalDefaults(t *testing.T) {
	t.Setenv("REMIND_BUILD_TARGET", "local")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "local", cfg.BlobDriver)
	assert.Equal(t, "remind.db", cfg.SQLitePath)
	assert.Equal(t, 3, cfg.MaxImages)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxImageSizeBytes)
	assert.Equal(t, 3, cfg.UploadMaxRetries)
	assert.Equal(t, time.Second, cfg.UploadBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.ImageTimeout)
	assert.Equal(t, 60*time.Second, cfg.AudioTimeout)
	assert.Equal(t, 10*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, "remind_avatars", cfg.UploadFolder)
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	t.Setenv("REMIND_BUILD_TARGET", "local")
	t.Setenv("REMIND_MAX_IMAGES", "5")
	t.Setenv("REMIND_UPLOAD_BASE_DELAY", "250ms")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxImages)
	assert.Equal(t, 250*time.Millisecond, cfg.UploadBaseDelay)
}

func TestResolveDefaults_CloudRequiresCredentials(t *testing.T) {
	cfg := NewForTesting()
	cfg.BuildTarget = "cloud"
	cfg.DBDriver = "auto"
	cfg.BlobDriver = "auto"

	err := cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")

	cfg.PostgresDSN = "postgres://localhost/remind"
	err = cfg.ResolveDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLOUDINARY_CLOUD_NAME")

	cfg.CloudinaryCloudName = "demo"
	require.NoError(t, cfg.ResolveDefaults())
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "cloudinary", cfg.BlobDriver)
}

func TestResolveDefaults_RejectsUnknownTarget(t *testing.T) {
	cfg := NewForTesting()
	cfg.BuildTarget = "moon"
	assert.Error(t, cfg.ResolveDefaults())
}
