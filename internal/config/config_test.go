package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(flags(t))
	require.NoError(t, err)
	assert.Empty(t, cfg.PIIFields)
	cfg.PIIFields = nil
	assert.Equal(t, Default(), cfg)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9000\"\nstore: /var/arbor\nidle-ttl: 5m\nlog-level: warn\n"), 0o644))
	t.Setenv("ARBOR_STORE", "redis://localhost:6379")
	t.Setenv("ARBOR_LOCK_TTL", "10s")

	cfg, err := Load(flags(t, "--config", path, "--log-level", "debug", "--pii-fields", "email,phone"))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr, "file")
	assert.Equal(t, "redis://localhost:6379", cfg.Store, "env beats file")
	assert.Equal(t, "debug", cfg.LogLevel, "flag beats file")
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 5*time.Minute, cfg.IdleTTL)
	assert.Equal(t, []string{"email", "phone"}, cfg.PIIFields)
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0o644))

	_, err := Load(flags(t, "--config", path))
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	key, err := Config{}.Key()
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = Config{EncryptionKey: "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="}.Key()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = Config{EncryptionKey: "c2hvcnQ="}.Key()
	assert.Error(t, err)
}
