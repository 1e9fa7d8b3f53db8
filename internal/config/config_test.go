package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"INSTALL_INTERNAL_SKILLS",
		"SKILLSMD_INCLUDE_INTERNAL",
		"SKILLSMD_FETCH_TIMEOUT",
		"SKILLSMD_FETCH_ATTEMPTS",
		"SKILLSMD_SEARCH_URL",
		"SKILLSMD_LOG_LEVEL",
		"SKILLSMD_COPY",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewManagerWithDir(t.TempDir()).Load()
	require.NoError(t, err)

	assert.False(t, cfg.IncludeInternal)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, uint(3), cfg.FetchAttempts)
	assert.Equal(t, "https://skills.sh", cfg.SearchURL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "fmt", cfg.LogFormat)
	assert.False(t, cfg.Copy)
}

func TestLoad_InternalToggle(t *testing.T) {
	tests := []struct {
		env   string
		value string
		want  bool
	}{
		{"INSTALL_INTERNAL_SKILLS", "1", true},
		{"INSTALL_INTERNAL_SKILLS", "true", true},
		{"INSTALL_INTERNAL_SKILLS", "0", false},
		{"SKILLSMD_INCLUDE_INTERNAL", "true", true},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)

			cfg, err := NewManagerWithDir(t.TempDir()).Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.IncludeInternal)
		})
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
fetch_timeout: 2m
fetch_attempts: 5
search_url: https://search.example.com
copy: true
`), 0o644))

	cfg, err := NewManagerWithDir(dir).Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.FetchTimeout)
	assert.Equal(t, uint(5), cfg.FetchAttempts)
	assert.Equal(t, "https://search.example.com", cfg.SearchURL)
	assert.True(t, cfg.Copy)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("fetch_attempts: 5\n"), 0o644))
	t.Setenv("SKILLSMD_FETCH_ATTEMPTS", "7")

	cfg, err := NewManagerWithDir(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, uint(7), cfg.FetchAttempts)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("fetch_attempts: [\n"), 0o644))

	_, err := NewManagerWithDir(dir).Load()
	assert.Error(t, err)
}

func TestLoad_ZeroAttemptsMeansOne(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKILLSMD_FETCH_ATTEMPTS", "0")

	cfg, err := NewManagerWithDir(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, uint(1), cfg.FetchAttempts)
}
