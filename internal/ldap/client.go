package ldap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"
)

// client implements the Client interface on top of a connection pool.
type client struct {
	pool   ConnectionPool
	config *ConnectionConfig
	log    *logrus.Entry
}

// NewClient creates a new LDAP client with connection pooling. The caller
// owns the handle and must Close it when done.
func NewClient(config *ConnectionConfig, log *logrus.Logger) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	entry := log.WithField("component", "ldap")

	entry.WithFields(logrus.Fields{
		"urls":        config.URLs,
		"domain":      config.Domain,
		"auth_method": config.GetAuthMethod().String(),
	}).Debug("creating LDAP client")

	pool, err := NewConnectionPool(config, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &client{
		pool:   pool,
		config: config,
		log:    entry,
	}, nil
}

// Close closes the client and all its connections.
func (c *client) Close() error {
	return c.pool.Close()
}

// Bind authenticates with the LDAP server using the supplied credentials.
func (c *client) Bind(ctx context.Context, bindDN, password string) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	return c.withRetry(ctx, "bind", func() error {
		return conn.Conn().Bind(bindDN, password)
	})
}

// Search performs an LDAP search.
func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req == nil {
		return nil, fmt.Errorf("search request cannot be nil")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	timeLimit := req.TimeLimit
	if timeLimit == 0 {
		timeLimit = c.config.Timeout
	}

	ldapReq := ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		ldap.NeverDerefAliases,
		req.SizeLimit,
		int(timeLimit.Seconds()),
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	start := time.Now()
	var result *ldap.SearchResult
	err = c.withRetry(ctx, "search", func() error {
		var searchErr error
		result, searchErr = conn.Conn().Search(ldapReq)
		return searchErr
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"base_dn":     req.BaseDN,
		"filter":      req.Filter,
		"entries":     len(result.Entries),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("search completed")

	return &SearchResult{Entries: result.Entries}, nil
}

// Add creates a new LDAP entry.
func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req == nil {
		return fmt.Errorf("add request cannot be nil")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewAddRequest(req.DN, nil)
	for attr, values := range req.Attributes {
		ldapReq.Attribute(attr, values)
	}

	return c.withRetry(ctx, "add", func() error {
		return conn.Conn().Add(ldapReq)
	})
}

// Modify modifies an existing LDAP entry.
func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req == nil {
		return fmt.Errorf("modify request cannot be nil")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewModifyRequest(req.DN, nil)
	for attr, values := range req.AddAttributes {
		ldapReq.Add(attr, values)
	}
	for attr, values := range req.ReplaceAttributes {
		ldapReq.Replace(attr, values)
	}
	for attr, values := range req.DeleteAttributes {
		ldapReq.Delete(attr, values)
	}

	return c.withRetry(ctx, "modify", func() error {
		return conn.Conn().Modify(ldapReq)
	})
}

// ModifyDN moves or renames an LDAP entry.
func (c *client) ModifyDN(ctx context.Context, req *ModifyDNRequest) error {
	if req == nil {
		return fmt.Errorf("modify DN request cannot be nil")
	}
	if req.DN == "" {
		return fmt.Errorf("DN cannot be empty")
	}
	if req.NewRDN == "" {
		return fmt.Errorf("new RDN cannot be empty")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewModifyDNRequest(req.DN, req.NewRDN, req.DeleteOldRDN, req.NewSuperior)

	return c.withRetry(ctx, "modify_dn", func() error {
		return conn.Conn().ModifyDN(ldapReq)
	})
}

// Delete removes an LDAP entry.
func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("DN cannot be empty")
	}

	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	ldapReq := ldap.NewDelRequest(dn, nil)

	return c.withRetry(ctx, "delete", func() error {
		return conn.Conn().Del(ldapReq)
	})
}

// Ping tests connectivity to the LDAP server via a root DSE search.
func (c *client) Ping(ctx context.Context) error {
	conn, err := c.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	searchReq := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 5, false,
		"(objectClass=*)",
		[]string{"namingContexts"},
		nil,
	)

	_, err = conn.Conn().Search(searchReq)
	return err
}

// Stats returns pool statistics.
func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// withRetry executes an operation with retry logic and exponential backoff.
func (c *client) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				c.log.WithFields(logrus.Fields{
					"operation": operation,
					"attempts":  attempt + 1,
				}).Info("operation succeeded after retries")
			}
			return nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			return WrapError(operation, err)
		}

		if attempt == c.config.MaxRetries {
			break
		}

		c.log.WithFields(logrus.Fields{
			"operation":  operation,
			"attempt":    attempt + 1,
			"backoff_ms": backoff.Milliseconds(),
			"error":      err.Error(),
		}).Debug("retrying operation")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}
	}

	return NewConnectionError(fmt.Sprintf("%s failed after retries", operation), false, lastErr)
}

// isRetryableError determines if an error should be retried.
func (c *client) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if retryable, ok := err.(RetryableError); ok {
		return retryable.IsRetryable()
	}

	if ldap.IsErrorWithCode(err, ldap.LDAPResultBusy) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultUnavailable) ||
		ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") {
		return true
	}

	return false
}
