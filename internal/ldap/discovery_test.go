package ldap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLDAPURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    *ServerInfo
		wantErr bool
	}{
		{
			name: "ldap with explicit port",
			url:  "ldap://directory.example.com:3389",
			want: &ServerInfo{Host: "directory.example.com", Port: 3389, UseTLS: false},
		},
		{
			name: "ldap default port",
			url:  "ldap://directory.example.com",
			want: &ServerInfo{Host: "directory.example.com", Port: 389, UseTLS: false},
		},
		{
			name: "ldaps default port",
			url:  "ldaps://directory.example.com",
			want: &ServerInfo{Host: "directory.example.com", Port: 636, UseTLS: true},
		},
		{
			name: "trailing path ignored",
			url:  "ldap://directory.example.com/dc=example,dc=com",
			want: &ServerInfo{Host: "directory.example.com", Port: 389, UseTLS: false},
		},
		{
			name:    "unsupported scheme",
			url:     "http://directory.example.com",
			wantErr: true,
		},
		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
		},
		{
			name:    "invalid port",
			url:     "ldap://directory.example.com:not-a-port",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLDAPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Host, got.Host)
			assert.Equal(t, tt.want.Port, got.Port)
			assert.Equal(t, tt.want.UseTLS, got.UseTLS)
			assert.Equal(t, "config", got.Source)
		})
	}
}

func TestServerInfoToURL(t *testing.T) {
	assert.Equal(t, "ldap://host:389", ServerInfoToURL(&ServerInfo{Host: "host", Port: 389}))
	assert.Equal(t, "ldaps://host:636", ServerInfoToURL(&ServerInfo{Host: "host", Port: 636, UseTLS: true}))
}

func TestSortServersByPriority(t *testing.T) {
	d := NewSRVDiscovery(nil)
	servers := []*ServerInfo{
		{Host: "c", Priority: 10, Weight: 50},
		{Host: "a", Priority: 0, Weight: 10},
		{Host: "b", Priority: 0, Weight: 90},
	}

	d.sortServersByPriority(servers)

	assert.Equal(t, "b", servers[0].Host) // same priority, higher weight first
	assert.Equal(t, "a", servers[1].Host)
	assert.Equal(t, "c", servers[2].Host)
}

func TestCreateFallbackServers(t *testing.T) {
	d := NewSRVDiscovery(nil)
	servers := d.createFallbackServers("example.com")

	require.Len(t, servers, 2)
	assert.True(t, servers[0].UseTLS)
	assert.Equal(t, 636, servers[0].Port)
	assert.Equal(t, 389, servers[1].Port)
	assert.Equal(t, "fallback", servers[0].Source)
}

func TestValidateServerInfo(t *testing.T) {
	assert.Error(t, ValidateServerInfo(nil))
	assert.Error(t, ValidateServerInfo(&ServerInfo{Host: "", Port: 389}))
	assert.Error(t, ValidateServerInfo(&ServerInfo{Host: "h", Port: 0}))
	assert.Error(t, ValidateServerInfo(&ServerInfo{Host: "h", Port: 70000}))
	assert.NoError(t, ValidateServerInfo(&ServerInfo{Host: "h", Port: 389}))
}
