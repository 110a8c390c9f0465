// ABOUTME: Tests for configuration layering and reload
// ABOUTME: Covers defaults, file, environment, flags and the file watcher
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loader(t *testing.T, args ...string) *Loader {
	t.Helper()
	fs := Flags("test")
	require.NoError(t, fs.Parse(args))
	l, err := NewLoader(fs)
	require.NoError(t, err)
	return l
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := loader(t).Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Discover)
	assert.Equal(t, 3*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, "tcp", cfg.Transport)
	assert.Equal(t, 15*time.Second, cfg.CommandTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Hosts)
}

func TestLayering(t *testing.T) {
	file := filepath.Join(t.TempDir(), "heos.toml")
	writeFile(t, file, `
hosts = ["192.168.1.41", "192.168.1.42"]
log-level = "warn"
heartbeat = "30s"
transport = "websocket"
`)

	tests := []struct {
		name  string
		env   map[string]string
		args  []string
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "file",
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, []string{"192.168.1.41", "192.168.1.42"}, cfg.Hosts)
				assert.Equal(t, "warn", cfg.LogLevel)
				assert.Equal(t, 30*time.Second, cfg.Heartbeat)
				assert.Equal(t, "websocket", cfg.Transport)
			},
		},
		{
			name: "environment beats file",
			env:  map[string]string{"HEOS_LOG_LEVEL": "debug", "HEOS_DIAL_TIMEOUT": "2s"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, 2*time.Second, cfg.DialTimeout)
			},
		},
		{
			name: "flags beat environment",
			env:  map[string]string{"HEOS_LOG_LEVEL": "debug"},
			args: []string{"--log-level=error", "--hosts=10.0.0.9", "--no-tui"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "error", cfg.LogLevel)
				assert.Equal(t, []string{"10.0.0.9"}, cfg.Hosts)
				assert.True(t, cfg.NoTUI)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := loader(t, tt.args...).Load(file)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	_, err := loader(t).Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, `transport = "carrier-pigeon"`)
	_, err = loader(t).Load(bad)
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestWatchReloads(t *testing.T) {
	file := filepath.Join(t.TempDir(), "heos.toml")
	writeFile(t, file, `log-level = "info"`)

	l := loader(t)
	_, err := l.Load(file)
	require.NoError(t, err)
	assert.Equal(t, file, l.File())

	reloaded := make(chan Config, 4)
	l.Watch(func(cfg Config) { reloaded <- cfg })

	writeFile(t, file, `log-level = "debug"`)
	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "debug", l.Current().LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after file change")
	}
}
