package factory

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryosuke1832/remind/internal/config"
)

func TestNewStore_SQLite(t *testing.T) {
	cfg := config.NewForTesting()
	st, db, err := NewStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, st.HealthPing(context.Background()))
}

func TestNewStore_UnknownDriver(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.DBDriver = "mongo"
	_, _, err := NewStore(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewBlobStore(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.LocalBlobDir = t.TempDir()
	bs, dir, err := NewBlobStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", bs.Provider())
	assert.Equal(t, cfg.LocalBlobDir, dir)

	cfg.BlobDriver = "cloudinary"
	cfg.CloudinaryCloudName = "demo"
	bs, dir, err = NewBlobStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, "cloudinary", bs.Provider())
	assert.Empty(t, dir)

	cfg.BlobDriver = "s3"
	_, _, err = NewBlobStore(cfg)
	assert.Error(t, err)
}
