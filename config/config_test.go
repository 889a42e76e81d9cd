package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/dgram/interfaces"
	"github.com/opd-ai/dgram/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
stack: sim
timeout: 250ms
bind: 127.0.0.1:9000
log_level: debug
hosts:
  peer.test: 192.0.2.7
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.Stack)
	assert.Equal(t, "250ms", cfg.Timeout)
	assert.Equal(t, "127.0.0.1:9000", cfg.Bind)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, limits.DefaultQueueDepth, cfg.QueueDepth)
	assert.Equal(t, map[string]string{"peer.test": "192.0.2.7"}, cfg.Hosts)

	sc, err := cfg.ToStackConfig()
	require.NoError(t, err)
	assert.Equal(t, interfaces.StackSimulated, sc.Kind)
	assert.Equal(t, 250*time.Millisecond, sc.Timeout)
	assert.Equal(t, "127.0.0.1:9000", sc.BindAddress)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "stack: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", interfaces.ForeverTimeout, false},
		{"forever", interfaces.ForeverTimeout, false},
		{"-1", interfaces.ForeverTimeout, false},
		{"0", 0, false},
		{"nonblocking", 0, false},
		{"1500ms", 1500 * time.Millisecond, false},
		{"-2s", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeout(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrInvalidTimeout)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToStackConfigRejectsUnknownStack(t *testing.T) {
	cfg := Default()
	cfg.Stack = "carrier-pigeon"

	_, err := cfg.ToStackConfig()
	assert.ErrorIs(t, err, interfaces.ErrUnknownStack)
}

func TestToStackConfigCopiesHosts(t *testing.T) {
	cfg := Default()
	cfg.Hosts["a.test"] = "192.0.2.1"

	sc, err := cfg.ToStackConfig()
	require.NoError(t, err)
	cfg.Hosts["b.test"] = "192.0.2.2"
	assert.Len(t, sc.Hosts, 1)
}
