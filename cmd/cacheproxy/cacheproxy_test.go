package main

import (
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminschubert/cacheproxy/internal/config"
)

func TestCanGetVersion(t *testing.T) {
	t.Parallel()

	require.Equal(t, "(devel)", getVersion())
}

func TestCanLoadSpecifiedConfig(t *testing.T) {
	t.Parallel()

	conf := t.TempDir() + "/cacheproxy.yml"
	fp, err := os.Create(conf) //nolint:gosec
	require.NoError(t, err)

	_, err = fp.WriteString("origin: 10.0.0.1:80\nlog:\n  level: debug")
	require.NoError(t, err)
	require.NoError(t, fp.Close())

	c, configNotExist, err := loadConfig(func(s string) (string, bool) {
		switch s {
		case "CACHEPROXY_CONFIG_PATH":
			return conf, true
		default:
			return "", false
		}
	})

	require.NoError(t, err)
	assert.False(t, configNotExist)
	assert.Equal(t, "10.0.0.1:80", c.Origin)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestFailsIfSpecifiedConfigDoesNotExist(t *testing.T) {
	t.Parallel()

	_, _, err := loadConfig(func(s string) (string, bool) {
		switch s {
		case "CACHEPROXY_CONFIG_PATH":
			return t.TempDir() + "/cacheproxy.yml", true
		default:
			return "", false
		}
	})
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFailsIfSpecifiedConfigIsInvalid(t *testing.T) {
	t.Parallel()

	conf := t.TempDir() + "/cacheproxy.yml"
	require.NoError(t, os.WriteFile(conf, []byte("upstream:\n  attempts: 0\n"), 0o600))

	_, _, err := loadConfig(func(s string) (string, bool) {
		if s == "CACHEPROXY_CONFIG_PATH" {
			return conf, true
		}
		return "", false
	})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
