package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.InstallRate)
	assert.False(t, cfg.Server.Profiling)
	assert.Equal(t, "/", cfg.Server.BaseURL)
	assert.Empty(t, cfg.Server.TokenSecret)
	assert.Equal(t, "json", cfg.Transport.Codec)
	assert.Equal(t, "bower", cfg.Widgets.Bower)
	assert.Equal(t, DefaultWidgetsDir(), cfg.Widgets.Dir)
	assert.Equal(t, "sqlite3", cfg.Install.DBDriver)
	assert.Equal(t, filepath.Join(cfg.Widgets.Dir, "installs.db"), cfg.Install.DBDSN)
	assert.Equal(t, 100, cfg.Serialize.Limit)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "declwidgets:", cfg.Store.Prefix)
	assert.False(t, cfg.Channels.ReplayOnConnect)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "localhost:8888", cfg.Address())

	assert.Equal(t, cfg, Defaults())
}

func TestLoadConfigFile(t *testing.T) {
	chdir(t, t.TempDir())

	content := `
server:
  port: 9000
  base_url: /user/ada/
  token_secret: s3cret
transport:
  codec: msgpack
widgets:
  dir: /srv/widgets
store:
  backend: redis
  redis_addr: redis:6379
  redis_db: 2
channels:
  replay_on_connect: true
log:
  level: debug
  development: true
`
	require.NoError(t, os.WriteFile("declwidgets.yaml", []byte(content), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/user/ada/", cfg.Server.BaseURL)
	assert.Equal(t, "s3cret", cfg.Server.TokenSecret)
	assert.Equal(t, "msgpack", cfg.Transport.Codec)
	assert.Equal(t, "/srv/widgets/installs.db", cfg.Install.DBDSN)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.True(t, cfg.Channels.ReplayOnConnect)
	assert.True(t, cfg.Log.Development)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("serialize:\n  limit: 25\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Serialize.Limit)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DECLWIDGETS_SERVER_PORT", "7777")
	t.Setenv("DECLWIDGETS_STORE_BACKEND", "redis")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Backend)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"port", "server:\n  port: 70000\n", "server.port"},
		{"base url", "server:\n  base_url: nb\n", "server.base_url"},
		{"install rate", "server:\n  install_rate: -1\n", "server.install_rate"},
		{"codec", "transport:\n  codec: xml\n", "transport.codec"},
		{"backend", "store:\n  backend: etcd\n", "store.backend"},
		{"driver", "install:\n  db_driver: mysql\n", "install.db_driver"},
		{"limit", "serialize:\n  limit: 0\n", "serialize.limit"},
		{"log level", "log:\n  level: chatty\n", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			require.NoError(t, os.WriteFile("declwidgets.yaml", []byte(tt.content), 0o644))

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "declwidgets.yaml")

	cfg := Defaults()
	cfg.Server.Port = 8000
	cfg.Transport.Codec = "msgpack"
	cfg.Channels.ReplayOnConnect = true
	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, loaded.Server.Port)
	assert.Equal(t, "msgpack", loaded.Transport.Codec)
	assert.True(t, loaded.Channels.ReplayOnConnect)
	assert.Equal(t, cfg.Widgets.Dir, loaded.Widgets.Dir)
}
