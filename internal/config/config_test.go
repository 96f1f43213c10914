package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "digitwin.db", cfg.DatabasePath)
	assert.Equal(t, 2*time.Second, cfg.AutosaveDelay)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Empty(t, cfg.SMTP.Host)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
addr: ":9999"
database_path: /tmp/test.db
admin_email: boss@example.com
autosave_delay: 5s
smtp:
  host: mail.example.com
  port: 2525
  from: noreply@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "/tmp/test.db", cfg.DatabasePath)
	assert.Equal(t, "boss@example.com", cfg.AdminEmail)
	assert.Equal(t, 5*time.Second, cfg.AutosaveDelay)
	assert.Equal(t, "mail.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":9999\"\n"), 0o600))

	t.Setenv("DIGITWIN_ADDR", ":7777")
	t.Setenv("DIGITWIN_ADMIN_EMAIL", "env-admin@example.com")
	t.Setenv("DIGITWIN_AUTOSAVE_DELAY", "750ms")
	t.Setenv("DIGITWIN_SMTP_PORT", "465")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.Addr)
	assert.Equal(t, "env-admin@example.com", cfg.AdminEmail)
	assert.Equal(t, 750*time.Millisecond, cfg.AutosaveDelay)
	assert.Equal(t, 465, cfg.SMTP.Port)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("autosave_delay: -3s\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
