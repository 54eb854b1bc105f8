package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posixadm.conf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dc=example,dc=com", cfg.LDAP.BaseDN)
	assert.Equal(t, 30*time.Second, cfg.LDAP.Timeout)
	assert.Equal(t, "/home", cfg.Users.Home)
	assert.Equal(t, "/bin/bash", cfg.Users.Shell)
	assert.Equal(t, 1050, cfg.Users.MinUID)
	assert.Equal(t, 10000, cfg.Users.MaxUID)
	assert.Equal(t, 150, cfg.Groups.MinGID)
	assert.Equal(t, 10000, cfg.Groups.MaxGID)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[ldap]
uri = ldaps://ds1.example.com ldaps://ds2.example.com
base_dn = dc=corp,dc=net
bind_dn = cn=admin,dc=corp,dc=net
bind_pass = hunter2
timeout = 5s

[users]
home = /export/home
shell = /bin/zsh
min_uid = 2000
max_uid = 3000

[groups]
min_gid = 500
max_gid = 600
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dc=corp,dc=net", cfg.LDAP.BaseDN)
	assert.Equal(t, "/export/home", cfg.Users.Home)
	assert.Equal(t, 2000, cfg.Users.MinUID)

	conn := cfg.ConnectionConfig()
	assert.Equal(t, []string{"ldaps://ds1.example.com", "ldaps://ds2.example.com"}, conn.URLs)
	assert.Equal(t, "cn=admin,dc=corp,dc=net", conn.BindDN)
	assert.Equal(t, 5*time.Second, conn.Timeout)

	settings := cfg.Settings()
	assert.Equal(t, 2000, settings.UIDRange.Min)
	assert.Equal(t, 3000, settings.UIDRange.Max)
	assert.Equal(t, 500, settings.GIDRange.Min)
	assert.Equal(t, "/bin/zsh", settings.DefaultShell)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	assert.Error(t, err)
}

func TestLoadRejectsEmptyRanges(t *testing.T) {
	path := writeConfig(t, `
[users]
min_uid = 5000
max_uid = 5000
`)
	_, err := Load(path)
	assert.Error(t, err)
}
