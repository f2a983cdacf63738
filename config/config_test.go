package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig("")
	assert.Equal(t, "wagate", cfg.System.Appid)
	assert.Equal(t, 1816, cfg.Web.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "bolt", cfg.Credential.Backend)
	assert.Equal(t, "62", cfg.WhatsApp.CountryCode)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.MinDelay)
	assert.Equal(t, 5*time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, filepath.Join(cfg.System.Workdir, "credentials.db"), cfg.Credential.BoltFile)
}

func TestLoadConfigMissingFileFallsBack(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Equal(t, DefaultAppConfig.Web.Port, cfg.Web.Port)
}

func TestLoadConfigYamlOverride(t *testing.T) {
	dir := t.TempDir()
	cfile := filepath.Join(dir, "wagate.yml")
	body := `
system:
  workdir: ` + dir + `
web:
  port: 9090
  secret: topsecret
whatsapp:
  country_code: "49"
credential:
  backend: database
`
	require.NoError(t, os.WriteFile(cfile, []byte(body), 0o644))

	cfg := LoadConfig(cfile)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.Equal(t, "topsecret", cfg.Web.Secret)
	assert.Equal(t, "49", cfg.WhatsApp.CountryCode)
	assert.Equal(t, "database", cfg.Credential.Backend)
	assert.Equal(t, dir, cfg.System.Workdir)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WAGATE_WEB_PORT", "2020")
	t.Setenv("WAGATE_DB_TYPE", "postgres")
	t.Setenv("WAGATE_WHATSAPP_DEVICE_NAME", "gateway-7")
	t.Setenv("WAGATE_SYSTEM_DEBUG", "false")

	cfg := LoadConfig("")
	assert.Equal(t, 2020, cfg.Web.Port)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "gateway-7", cfg.WhatsApp.DeviceName)
	assert.False(t, cfg.System.Debug)
}

func TestLoadConfigAbsoluteBoltFileKept(t *testing.T) {
	t.Setenv("WAGATE_CREDENTIAL_BOLT_FILE", "/data/creds.db")
	cfg := LoadConfig("")
	assert.Equal(t, "/data/creds.db", cfg.Credential.BoltFile)
}
