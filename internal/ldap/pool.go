package ldap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"
)

// MaxConnectionPoolLimit caps the pool size to protect the directory
// server from connection exhaustion.
const MaxConnectionPoolLimit = 100

// connectionPool implements ConnectionPool.
type connectionPool struct {
	config      *ConnectionConfig
	log         *logrus.Entry
	servers     []*ServerInfo
	connections chan *PooledConnection
	mu          sync.RWMutex
	closed      bool

	activeConns  int64
	totalCreated int64
	totalErrors  int64
	startTime    time.Time
}

// NewConnectionPool creates a new connection pool. Servers are taken from
// the configured URLs, or discovered via DNS SRV when only a domain is set.
func NewConnectionPool(config *ConnectionConfig, log *logrus.Entry) (ConnectionPool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool := &connectionPool{
		config:      config,
		log:         log,
		connections: make(chan *PooledConnection, config.MaxConnections),
		startTime:   time.Now(),
	}

	if err := pool.discoverServers(); err != nil {
		return nil, fmt.Errorf("server discovery failed: %w", err)
	}

	return pool, nil
}

// discoverServers resolves the set of candidate servers.
func (p *connectionPool) discoverServers() error {
	var servers []*ServerInfo

	switch {
	case len(p.config.URLs) > 0:
		for _, url := range p.config.URLs {
			server, err := ParseLDAPURL(url)
			if err != nil {
				return fmt.Errorf("invalid LDAP URL %s: %w", url, err)
			}
			servers = append(servers, server)
		}
	case p.config.Domain != "":
		ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
		defer cancel()

		discovered, err := NewSRVDiscovery(p.log).DiscoverServers(ctx, p.config.Domain)
		if err != nil {
			return fmt.Errorf("SRV discovery failed: %w", err)
		}
		servers = discovered
	default:
		return errors.New("either LDAP URLs or a domain must be specified")
	}

	if len(servers) == 0 {
		return errors.New("no servers discovered")
	}

	p.mu.Lock()
	p.servers = servers
	p.mu.Unlock()

	p.log.WithField("server_count", len(servers)).Debug("server discovery completed")
	return nil
}

// Get retrieves a connection from the pool, creating one if none is idle.
func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, errors.New("connection pool is closed")
	}
	p.mu.RUnlock()

	select {
	case conn := <-p.connections:
		if p.isConnectionHealthy(conn) {
			conn.lastUsed = time.Now()
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		}
		p.closeConnection(conn)
	default:
	}

	return p.createConnection(ctx)
}

// createConnection creates a new connection with retry logic across servers.
func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		for _, server := range p.servers {
			conn, err := p.createSingleConnection(server)
			if err != nil {
				lastErr = err
				atomic.AddInt64(&p.totalErrors, 1)
				continue
			}

			atomic.AddInt64(&p.totalCreated, 1)
			atomic.AddInt64(&p.activeConns, 1)
			return conn, nil
		}

		if attempt < p.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
			}
		}
	}

	return nil, NewConnectionError("failed to create connection after retries", true, lastErr)
}

// createSingleConnection connects and authenticates against one server.
func (p *connectionPool) createSingleConnection(server *ServerInfo) (*PooledConnection, error) {
	url := ServerInfoToURL(server)

	var conn *ldap.Conn
	var err error

	if server.UseTLS {
		conn, err = ldap.DialURL(url, ldap.DialWithTLSConfig(p.config.TLSConfig))
	} else {
		conn, err = ldap.DialURL(url)
		if err == nil && p.config.UseTLS && !p.config.SkipTLS {
			err = conn.StartTLS(p.config.TLSConfig)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	conn.SetTimeout(p.config.Timeout)

	pooledConn := &PooledConnection{
		conn:         conn,
		lastUsed:     time.Now(),
		healthy:      true,
		serverInfo:   server,
		returnToPool: p.returnConnection,
	}

	if p.config.HasAuthentication() {
		if err := p.authenticateConnection(pooledConn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to authenticate connection to %s: %w", url, err)
		}
	}

	return pooledConn, nil
}

// authenticateConnection binds a pooled connection using the configured method.
func (p *connectionPool) authenticateConnection(pooledConn *PooledConnection) error {
	if pooledConn == nil || pooledConn.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	var err error
	switch p.config.GetAuthMethod() {
	case AuthMethodSimpleBind:
		if p.config.BindDN == "" {
			return fmt.Errorf("bind DN is required for simple bind authentication")
		}
		err = pooledConn.conn.Bind(p.config.BindDN, p.config.BindPassword)
	case AuthMethodKerberos:
		err = performKerberosAuth(pooledConn.conn, p.config, pooledConn.serverInfo)
	case AuthMethodExternal:
		err = pooledConn.conn.Bind("", "")
	default:
		return fmt.Errorf("unsupported authentication method")
	}

	if err != nil {
		pooledConn.authenticated = false
		return err
	}

	pooledConn.authenticated = true
	return nil
}

// returnConnection returns a connection to the pool.
func (p *connectionPool) returnConnection(conn *PooledConnection) {
	if conn == nil {
		return
	}

	atomic.AddInt64(&p.activeConns, -1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.closeConnection(conn)
		return
	}

	if p.isConnectionHealthy(conn) && time.Since(conn.lastUsed) < p.config.MaxIdleTime {
		select {
		case p.connections <- conn:
		default:
			p.closeConnection(conn)
		}
	} else {
		p.closeConnection(conn)
	}
}

// isConnectionHealthy checks if a connection is usable.
func (p *connectionPool) isConnectionHealthy(conn *PooledConnection) bool {
	if conn == nil || conn.conn == nil || !conn.healthy {
		return false
	}
	if time.Since(conn.lastUsed) > p.config.MaxIdleTime {
		return false
	}
	if p.config.HasAuthentication() && !conn.authenticated {
		return false
	}
	return true
}

// closeConnection closes a pooled connection.
func (p *connectionPool) closeConnection(conn *PooledConnection) {
	if conn != nil && conn.conn != nil {
		conn.conn.Close()
		conn.healthy = false
		conn.authenticated = false
	}
}

// Close closes all connections and shuts down the pool.
func (p *connectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.connections)
	for conn := range p.connections {
		p.closeConnection(conn)
	}

	return nil
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Idle:    len(p.connections),
		Active:  atomic.LoadInt64(&p.activeConns),
		Created: atomic.LoadInt64(&p.totalCreated),
		Errors:  atomic.LoadInt64(&p.totalErrors),
		Uptime:  time.Since(p.startTime),
	}
}

// validateConfig validates the connection configuration.
func validateConfig(config *ConnectionConfig) error {
	if config.MaxConnections <= 0 {
		return errors.New("MaxConnections must be positive")
	}
	if config.MaxConnections > MaxConnectionPoolLimit {
		return fmt.Errorf("MaxConnections too high (max %d)", MaxConnectionPoolLimit)
	}
	if config.MaxIdleTime <= 0 {
		return errors.New("MaxIdleTime must be positive")
	}
	if config.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if config.MaxRetries < 0 {
		return errors.New("MaxRetries cannot be negative")
	}
	if config.BackoffFactor <= 1.0 {
		return errors.New("BackoffFactor must be greater than 1.0")
	}
	return nil
}

// Methods for PooledConnection.

// Close returns the connection to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

func (pc *PooledConnection) Conn() *ldap.Conn {
	return pc.conn
}

func (pc *PooledConnection) ServerInfo() *ServerInfo {
	return pc.serverInfo
}
