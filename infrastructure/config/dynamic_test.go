package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDynamic_DefaultsWithoutFile(t *testing.T) {
	d := NewDynamic("", zap.NewNop())
	v := d.Values()
	assert.Equal(t, DefaultMaxEntities, v.MaxEntities)
	assert.Equal(t, DefaultConflictTTL, v.ConflictTTL)
}

func TestDynamic_LoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynamic.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_entities": 50, "conflict_ttl": "90s"}`), 0o644))

	d := NewDynamic(path, zap.NewNop())
	v := d.Values()
	assert.Equal(t, 50, v.MaxEntities)
	assert.Equal(t, 90*time.Second, v.ConflictTTL)
	assert.Equal(t, DefaultMaxRelationships, v.MaxRelationships, "unspecified values fall back")
}

func TestDynamic_IgnoresInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dynamic.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_entities": -3, "conflict_ttl": "soon"}`), 0o644))

	d := NewDynamic(path, zap.NewNop())
	v := d.Values()
	assert.Equal(t, DefaultMaxEntities, v.MaxEntities)
	assert.Equal(t, DefaultConflictTTL, v.ConflictTTL)
}

func TestLoad_DefaultPort(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "super-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
