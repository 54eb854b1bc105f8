package ldap

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// performKerberosAuth performs GSSAPI/Kerberos authentication on an LDAP
// connection.
func performKerberosAuth(conn *ldap.Conn, cfg *ConnectionConfig, serverInfo *ServerInfo) error {
	if err := prepareKerberosConfig(cfg); err != nil {
		return fmt.Errorf("kerberos configuration error: %w", err)
	}

	gssapiClient, err := createGSSAPIClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = gssapiClient.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, serverInfo)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(gssapiClient, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient creates a GSSAPI client based on the configuration.
// Priority order: credential cache, keytab, password.
func createGSSAPIClient(cfg *ConnectionConfig) (ldap.GSSAPIClient, error) {
	krb5confPath := cfg.KerberosConfig
	if krb5confPath == "" {
		krb5confPath = "/etc/krb5.conf"
	}

	if !fileExists(krb5confPath) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s", krb5confPath)
	}

	principal := kerberosPrincipal(cfg)

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if defaultCCache := getDefaultCCachePath(); fileExists(defaultCCache) {
		return gssapi.NewClientFromCCache(defaultCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab) {
		return gssapi.NewClientWithKeytab(principal, cfg.KerberosRealm, cfg.KerberosKeytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if principal != "" && cfg.BindPassword != "" {
		return gssapi.NewClientWithPassword(principal, cfg.KerberosRealm, cfg.BindPassword, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// kerberosPrincipal derives the Kerberos principal from the bind identity.
func kerberosPrincipal(cfg *ConnectionConfig) string {
	principal := cfg.BindDN
	if idx := strings.Index(principal, "@"); idx >= 0 {
		principal = principal[:idx]
	}
	return principal
}

// buildServicePrincipal constructs the LDAP service principal name from
// server info. An explicit KerberosSPN overrides the derived value.
func buildServicePrincipal(cfg *ConnectionConfig, serverInfo *ServerInfo) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("configuration is required for service principal")
	}
	if cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}
	if serverInfo == nil || serverInfo.Host == "" {
		return "", fmt.Errorf("server host is required for service principal")
	}

	hostname := serverInfo.Host
	if colonPos := strings.Index(hostname, ":"); colonPos != -1 {
		hostname = hostname[:colonPos]
	}

	return fmt.Sprintf("ldap/%s", hostname), nil
}

// prepareKerberosConfig validates and prepares Kerberos configuration.
func prepareKerberosConfig(cfg *ConnectionConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if cfg.KerberosConfig == "" {
		cfg.KerberosConfig = "/etc/krb5.conf"
	}

	// Extract realm from a user@REALM bind identity if not set explicitly.
	if cfg.KerberosRealm == "" && strings.Contains(cfg.BindDN, "@") {
		parts := strings.SplitN(cfg.BindDN, "@", 2)
		cfg.KerberosRealm = parts[1]
	}

	if cfg.KerberosRealm == "" {
		return fmt.Errorf("kerberos realm is required")
	}

	hasCCache := (cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache)) || fileExists(getDefaultCCachePath())
	hasKeytab := cfg.KerberosKeytab != "" && fileExists(cfg.KerberosKeytab)
	hasPassword := cfg.BindPassword != ""

	if !hasCCache && !hasKeytab && !hasPassword {
		return fmt.Errorf("no suitable Kerberos credentials found: provide a credential cache, keytab, or password")
	}

	return nil
}

// getDefaultCCachePath returns the default credential cache location.
func getDefaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}
