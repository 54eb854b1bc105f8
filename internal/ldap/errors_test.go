package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ldapErr(code uint16) error {
	return &ldap.Error{ResultCode: code, Err: fmt.Errorf("result code %d", code)}
}

func TestWrapErrorCategorizesResultCodes(t *testing.T) {
	tests := []struct {
		code     uint16
		category ErrorCategory
	}{
		{ldap.LDAPResultNoSuchObject, ErrorCategoryNotFound},
		{ldap.LDAPResultEntryAlreadyExists, ErrorCategoryConflict},
		{ldap.LDAPResultAttributeOrValueExists, ErrorCategoryConflict},
		{ldap.LDAPResultInvalidCredentials, ErrorCategoryAuthentication},
		{ldap.LDAPResultInsufficientAccessRights, ErrorCategoryPermission},
		{ldap.LDAPResultConstraintViolation, ErrorCategoryValidation},
		{ldap.LDAPResultBusy, ErrorCategoryServer},
		{ldap.LDAPResultProtocolError, ErrorCategoryConnection},
	}

	for _, tt := range tests {
		err := WrapError("test", ldapErr(tt.code))
		wrapped := &Error{}
		require.ErrorAs(t, err, &wrapped)
		assert.Equal(t, tt.category, wrapped.Category, "code %d", tt.code)
		assert.Equal(t, tt.code, wrapped.Code)
	}
}

func TestWrapErrorNil(t *testing.T) {
	assert.NoError(t, WrapError("test", nil))
}

func TestWrapErrorPreservesExistingWrap(t *testing.T) {
	inner := WrapError("first", ldapErr(ldap.LDAPResultBusy))
	outer := WrapError("second", inner)

	wrapped := &Error{}
	require.ErrorAs(t, outer, &wrapped)
	assert.Equal(t, "first", wrapped.Operation)
}

func TestRetryableClassification(t *testing.T) {
	busy := WrapError("op", ldapErr(ldap.LDAPResultBusy))
	wrapped := &Error{}
	require.ErrorAs(t, busy, &wrapped)
	assert.True(t, wrapped.IsRetryable())

	exists := WrapError("op", ldapErr(ldap.LDAPResultEntryAlreadyExists))
	require.ErrorAs(t, exists, &wrapped)
	assert.False(t, wrapped.IsRetryable())

	generic := WrapError("op", errors.New("connection reset by peer"))
	require.ErrorAs(t, generic, &wrapped)
	assert.True(t, wrapped.IsRetryable())
}

func TestIsNotFoundAndIsAlreadyExists(t *testing.T) {
	assert.True(t, IsNotFound(ldapErr(ldap.LDAPResultNoSuchObject)))
	assert.False(t, IsNotFound(ldapErr(ldap.LDAPResultBusy)))

	assert.True(t, IsAlreadyExists(ldapErr(ldap.LDAPResultEntryAlreadyExists)))
	assert.False(t, IsAlreadyExists(ldapErr(ldap.LDAPResultNoSuchObject)))

	assert.True(t, IsAttributeExists(ldapErr(ldap.LDAPResultAttributeOrValueExists)))
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := NewConnectionError("pool exhausted", true, cause)

	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "pool exhausted")
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, validateConfig(cfg))

	bad := DefaultConfig()
	bad.MaxConnections = 0
	assert.Error(t, validateConfig(bad))

	bad = DefaultConfig()
	bad.MaxConnections = MaxConnectionPoolLimit + 1
	assert.Error(t, validateConfig(bad))

	bad = DefaultConfig()
	bad.BackoffFactor = 1.0
	assert.Error(t, validateConfig(bad))
}

func TestGetAuthMethod(t *testing.T) {
	cfg := &ConnectionConfig{BindDN: "cn=admin,dc=example,dc=com", BindPassword: "secret"}
	assert.Equal(t, AuthMethodSimpleBind, cfg.GetAuthMethod())
	assert.True(t, cfg.HasAuthentication())

	cfg = &ConnectionConfig{KerberosRealm: "EXAMPLE.COM", KerberosKeytab: "/etc/krb5.keytab"}
	assert.Equal(t, AuthMethodKerberos, cfg.GetAuthMethod())
	assert.True(t, cfg.HasAuthentication())

	cfg = &ConnectionConfig{}
	assert.False(t, cfg.HasAuthentication())
}
