package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// Error provides categorized error information for LDAP operations.
type Error struct {
	Operation string
	Category  ErrorCategory
	Code      uint16
	DN        string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	var parts []string

	if e.Code > 0 {
		parts = append(parts, fmt.Sprintf("LDAP %s failed (code %d)", e.Operation, e.Code))
	} else {
		parts = append(parts, fmt.Sprintf("LDAP %s failed", e.Operation))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	return strings.Join(parts, " - ")
}

func (e *Error) IsRetryable() bool {
	return e.Retryable
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WrapError wraps an error with operation context and a category derived
// from the LDAP result code.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if wrapped, ok := err.(*Error); ok {
		if wrapped.Operation == "" {
			wrapped.Operation = operation
		}
		return wrapped
	}

	wrapped := &Error{
		Operation: operation,
		Cause:     err,
	}

	if resultErr, ok := err.(*ldap.Error); ok {
		wrapped.Code = resultErr.ResultCode
		wrapped.Category = categorizeCode(resultErr.ResultCode)
		wrapped.Retryable = isCodeRetryable(resultErr.ResultCode)
	} else {
		wrapped.Category = categorizeGenericError(err)
		wrapped.Retryable = isGenericErrorRetryable(err)
	}

	return wrapped
}

// categorizeCode categorizes an error based on LDAP result code.
func categorizeCode(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute:
		return ErrorCategoryNotFound

	case ldap.LDAPResultEntryAlreadyExists,
		ldap.LDAPResultAttributeOrValueExists,
		ldap.LDAPResultNotAllowedOnNonLeaf:
		return ErrorCategoryConflict

	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultObjectClassViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultNamingViolation:
		return ErrorCategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded:
		return ErrorCategoryServer

	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// categorizeGenericError categorizes non-LDAP errors by message.
func categorizeGenericError(err error) ErrorCategory {
	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "broken pipe") {
		return ErrorCategoryConnection
	}
	if strings.Contains(errStr, "credentials") ||
		strings.Contains(errStr, "authentication") {
		return ErrorCategoryAuthentication
	}
	if strings.Contains(errStr, "access") ||
		strings.Contains(errStr, "denied") {
		return ErrorCategoryPermission
	}

	return ErrorCategoryUnknown
}

// isCodeRetryable determines if an LDAP result code indicates a retryable
// condition.
func isCodeRetryable(code uint16) bool {
	switch code {
	case ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultServerDown,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultConnectError:
		return true
	default:
		return false
	}
}

// isGenericErrorRetryable determines if a generic error is retryable.
func isGenericErrorRetryable(err error) bool {
	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"connection",
		"timeout",
		"network",
		"broken pipe",
		"connection reset",
		"temporary failure",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	if wrapped, ok := err.(*Error); ok {
		return wrapped.Category
	}
	if resultErr, ok := err.(*ldap.Error); ok {
		return categorizeCode(resultErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsNotFound checks if an error indicates a missing entry.
func IsNotFound(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) ||
		GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsAlreadyExists checks if an error indicates a duplicate entry.
func IsAlreadyExists(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultEntryAlreadyExists)
}

// IsAttributeExists checks if an error indicates a duplicate attribute
// value, e.g. adding a member that is already present.
func IsAttributeExists(err error) bool {
	return ldap.IsErrorWithCode(err, ldap.LDAPResultAttributeOrValueExists)
}
