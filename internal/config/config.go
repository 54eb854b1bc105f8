// Package config loads the site configuration: directory endpoint,
// credentials, and the POSIX policy (id ranges, home base, default shell).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/ini.v1"

	"github.com/isometry/posixadm/internal/directory"
	"github.com/isometry/posixadm/internal/ldap"
)

// DefaultPath is consulted when no configuration file is given explicitly.
const DefaultPath = "/etc/posixadm.conf"

// Config is the full site configuration, mapped from an INI file.
type Config struct {
	LDAP   LDAPConfig   `ini:"ldap"`
	Users  UsersConfig  `ini:"users"`
	Groups GroupsConfig `ini:"groups"`
}

// LDAPConfig describes how to reach and authenticate against the directory.
type LDAPConfig struct {
	// URI holds one or more space-separated LDAP URLs. When empty, servers
	// are discovered through DNS SRV records for Domain.
	URI    string `ini:"uri"`
	Domain string `ini:"domain"`
	BaseDN string `ini:"base_dn" default:"dc=example,dc=com"`

	BindDN       string `ini:"bind_dn"`
	BindPassword string `ini:"bind_pass"`

	KerberosRealm  string `ini:"krb5_realm"`
	KerberosKeytab string `ini:"krb5_keytab"`
	KerberosCCache string `ini:"krb5_ccache"`

	StartTLS bool          `ini:"starttls"`
	Timeout  time.Duration `ini:"timeout" default:"30s"`
}

// UsersConfig is the policy applied to user records.
type UsersConfig struct {
	Home       string `ini:"home" default:"/home"`
	Shell      string `ini:"shell" default:"/bin/bash"`
	MinUID     int    `ini:"min_uid" default:"1050"`
	MaxUID     int    `ini:"max_uid" default:"10000"`
	CreateHome bool   `ini:"create_home"`
}

// GroupsConfig is the policy applied to group records.
type GroupsConfig struct {
	MinGID int `ini:"min_gid" default:"150"`
	MaxGID int `ini:"max_gid" default:"10000"`
}

// Load reads the configuration at path, falling back to built-in defaults
// for every key the file leaves out. An empty path means DefaultPath, and a
// missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply configuration defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, cfg.validate()
		}
		return nil, fmt.Errorf("cannot read configuration %s: %w", path, err)
	}

	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration %s: %w", path, err)
	}
	if err := file.MapTo(cfg); err != nil {
		return nil, fmt.Errorf("failed to map configuration %s: %w", path, err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.LDAP.BaseDN == "" {
		return fmt.Errorf("ldap base_dn must be set")
	}
	if c.Users.MinUID >= c.Users.MaxUID {
		return fmt.Errorf("users id range [%d, %d) is empty", c.Users.MinUID, c.Users.MaxUID)
	}
	if c.Groups.MinGID >= c.Groups.MaxGID {
		return fmt.Errorf("groups id range [%d, %d) is empty", c.Groups.MinGID, c.Groups.MaxGID)
	}
	return nil
}

// ConnectionConfig translates the [ldap] section into client settings.
func (c *Config) ConnectionConfig() *ldap.ConnectionConfig {
	conn := ldap.DefaultConfig()
	conn.URLs = strings.Fields(c.LDAP.URI)
	conn.Domain = c.LDAP.Domain
	conn.BindDN = c.LDAP.BindDN
	conn.BindPassword = c.LDAP.BindPassword
	conn.KerberosRealm = c.LDAP.KerberosRealm
	conn.KerberosKeytab = c.LDAP.KerberosKeytab
	conn.KerberosCCache = c.LDAP.KerberosCCache
	conn.UseTLS = c.LDAP.StartTLS
	if c.LDAP.Timeout > 0 {
		conn.Timeout = c.LDAP.Timeout
	}
	return conn
}

// Settings translates the policy sections into engine settings.
func (c *Config) Settings() directory.Settings {
	return directory.Settings{
		UIDRange:     directory.IDRange{Min: c.Users.MinUID, Max: c.Users.MaxUID},
		GIDRange:     directory.IDRange{Min: c.Groups.MinGID, Max: c.Groups.MaxGID},
		HomeBase:     c.Users.Home,
		DefaultShell: c.Users.Shell,
	}
}
