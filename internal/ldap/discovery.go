package ldap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// SRVDiscovery handles DNS SRV record discovery for directory servers.
type SRVDiscovery struct {
	log      *logrus.Entry
	resolver *net.Resolver
}

// NewSRVDiscovery creates a new SRV discovery instance.
func NewSRVDiscovery(log *logrus.Entry) *SRVDiscovery {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SRVDiscovery{
		log:      log,
		resolver: net.DefaultResolver,
	}
}

// DiscoverServers discovers LDAP servers for a domain using SRV records.
// _ldaps._tcp is preferred over _ldap._tcp; when neither resolves, the
// domain itself on the standard ports is used as a fallback.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}

	var allServers []*ServerInfo

	srvRecords := []struct {
		service string
		useTLS  bool
	}{
		{"_ldaps._tcp." + domain, true},
		{"_ldap._tcp." + domain, false},
	}

	for _, record := range srvRecords {
		servers, err := d.lookupSRV(ctx, record.service, record.useTLS)
		if err != nil {
			d.log.WithFields(logrus.Fields{
				"service": record.service,
				"error":   err.Error(),
			}).Debug("SRV lookup failed, continuing")
			continue
		}
		allServers = append(allServers, servers...)

		// Prefer LDAPS when available.
		if record.useTLS && len(servers) > 0 {
			break
		}
	}

	if len(allServers) == 0 {
		d.log.WithField("domain", domain).Debug("no SRV records found, using fallback servers")
		return d.createFallbackServers(domain), nil
	}

	d.sortServersByPriority(allServers)

	d.log.WithFields(logrus.Fields{
		"domain":       domain,
		"server_count": len(allServers),
	}).Debug("server discovery completed")

	return allServers, nil
}

// lookupSRV performs SRV record lookup for a specific service.
func (d *SRVDiscovery) lookupSRV(ctx context.Context, service string, useTLS bool) ([]*ServerInfo, error) {
	_, srvRecords, err := d.resolver.LookupSRV(ctx, "", "", service)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup failed for %s: %w", service, err)
	}
	if len(srvRecords) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", service)
	}

	var servers []*ServerInfo
	for _, srv := range srvRecords {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(srv.Target, "."),
			Port:     int(srv.Port),
			UseTLS:   useTLS,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   "srv",
		})
	}

	return servers, nil
}

// createFallbackServers creates fallback servers when SRV discovery fails.
func (d *SRVDiscovery) createFallbackServers(domain string) []*ServerInfo {
	return []*ServerInfo{
		{Host: domain, Port: 636, UseTLS: true, Priority: 0, Weight: 100, Source: "fallback"},
		{Host: domain, Port: 389, UseTLS: false, Priority: 1, Weight: 100, Source: "fallback"},
	}
}

// sortServersByPriority sorts servers per RFC 2782: ascending priority,
// descending weight within equal priority.
func (d *SRVDiscovery) sortServersByPriority(servers []*ServerInfo) {
	sort.Slice(servers, func(i, j int) bool {
		if servers[i].Priority != servers[j].Priority {
			return servers[i].Priority < servers[j].Priority
		}
		return servers[i].Weight > servers[j].Weight
	})
}

// ValidateServerInfo validates server information.
func ValidateServerInfo(server *ServerInfo) error {
	if server == nil {
		return fmt.Errorf("server info cannot be nil")
	}
	if server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", server.Port)
	}
	return nil
}

// ServerInfoToURL converts ServerInfo to an LDAP URL.
func ServerInfoToURL(server *ServerInfo) string {
	scheme := "ldap"
	if server.UseTLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, server.Host, server.Port)
}

// ParseLDAPURL parses an LDAP URL into ServerInfo.
func ParseLDAPURL(url string) (*ServerInfo, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	var useTLS bool
	switch {
	case strings.HasPrefix(url, "ldaps://"):
		useTLS = true
		url = strings.TrimPrefix(url, "ldaps://")
	case strings.HasPrefix(url, "ldap://"):
		url = strings.TrimPrefix(url, "ldap://")
	default:
		return nil, fmt.Errorf("unsupported scheme, must be ldap:// or ldaps://")
	}

	host := url
	if idx := strings.Index(host, "/"); idx >= 0 {
		host = host[:idx]
	}

	port := 389
	if useTLS {
		port = 636
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		portStr := host[idx+1:]
		host = host[:idx]
		parsed, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port number: %s", portStr)
		}
		port = parsed
	}

	server := &ServerInfo{
		Host:     host,
		Port:     port,
		UseTLS:   useTLS,
		Priority: 0,
		Weight:   100,
		Source:   "config",
	}

	return server, ValidateServerInfo(server)
}
