package directory

import (
	"context"
	"errors"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	"github.com/isometry/posixadm/internal/ldap"
)

// fakeClient is an in-memory ldap.Client good enough for the search shapes
// and writes the repository issues.
type fakeClient struct {
	entries map[string]map[string][]string
	order   []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{entries: make(map[string]map[string][]string)}
}

func (c *fakeClient) putEntry(dn string, attrs map[string][]string) {
	copied := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		copied[k] = append([]string(nil), v...)
	}
	if _, ok := c.entries[dn]; !ok {
		c.order = append(c.order, dn)
	}
	c.entries[dn] = copied
}

func (c *fakeClient) has(dn string) bool {
	_, ok := c.entries[dn]
	return ok
}

func (c *fakeClient) attr(dn, name string) []string {
	if attrs, ok := c.entries[dn]; ok {
		return attrs[name]
	}
	return nil
}

func (c *fakeClient) Search(_ context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	result := &ldap.SearchResult{}
	for _, dn := range c.order {
		attrs, ok := c.entries[dn]
		if !ok {
			continue
		}
		if dn != req.BaseDN && !strings.HasSuffix(dn, ","+req.BaseDN) {
			continue
		}
		if !matchFilter(attrs, req.Filter) {
			continue
		}
		result.Entries = append(result.Entries, goldap.NewEntry(dn, attrs))
	}
	return result, nil
}

func matchFilter(attrs map[string][]string, filter string) bool {
	if strings.HasPrefix(filter, "(&") {
		for _, clause := range splitClauses(filter[2 : len(filter)-1]) {
			if !matchFilter(attrs, clause) {
				return false
			}
		}
		return true
	}

	body := strings.TrimSuffix(strings.TrimPrefix(filter, "("), ")")
	idx := strings.Index(body, "=")
	if idx < 0 {
		return false
	}
	attr, want := body[:idx], body[idx+1:]
	for name, values := range attrs {
		if !strings.EqualFold(name, attr) {
			continue
		}
		for _, v := range values {
			if strings.EqualFold(v, want) {
				return true
			}
		}
	}
	return false
}

// splitClauses splits "(a=b)(c=d)" into its top-level parenthesized parts.
func splitClauses(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				out = append(out, s[start:i+1])
			}
		}
	}
	return out
}

func (c *fakeClient) Add(_ context.Context, req *ldap.AddRequest) error {
	if c.has(req.DN) {
		return &goldap.Error{ResultCode: goldap.LDAPResultEntryAlreadyExists, Err: errors.New("entry already exists")}
	}
	c.putEntry(req.DN, req.Attributes)
	return nil
}

func (c *fakeClient) Modify(_ context.Context, req *ldap.ModifyRequest) error {
	attrs, ok := c.entries[req.DN]
	if !ok {
		return &goldap.Error{ResultCode: goldap.LDAPResultNoSuchObject, Err: errors.New("no such object")}
	}

	for attr, values := range req.ReplaceAttributes {
		attrs[attr] = append([]string(nil), values...)
	}
	for attr, values := range req.AddAttributes {
		for _, v := range values {
			if indexOf(attrs[attr], v) >= 0 {
				return &goldap.Error{ResultCode: goldap.LDAPResultAttributeOrValueExists, Err: errors.New("value exists")}
			}
			attrs[attr] = append(attrs[attr], v)
		}
	}
	for attr, values := range req.DeleteAttributes {
		if len(values) == 0 {
			delete(attrs, attr)
			continue
		}
		for _, v := range values {
			idx := indexOf(attrs[attr], v)
			if idx < 0 {
				return &goldap.Error{ResultCode: goldap.LDAPResultNoSuchAttribute, Err: errors.New("no such value")}
			}
			attrs[attr] = append(attrs[attr][:idx], attrs[attr][idx+1:]...)
		}
	}
	return nil
}

func (c *fakeClient) ModifyDN(_ context.Context, req *ldap.ModifyDNRequest) error {
	attrs, ok := c.entries[req.DN]
	if !ok {
		return &goldap.Error{ResultCode: goldap.LDAPResultNoSuchObject, Err: errors.New("no such object")}
	}

	parent := req.DN[strings.Index(req.DN, ",")+1:]
	newDN := req.NewRDN + "," + parent
	if c.has(newDN) {
		return &goldap.Error{ResultCode: goldap.LDAPResultEntryAlreadyExists, Err: errors.New("entry already exists")}
	}

	eq := strings.Index(req.NewRDN, "=")
	attrs[req.NewRDN[:eq]] = []string{req.NewRDN[eq+1:]}

	delete(c.entries, req.DN)
	c.entries[newDN] = attrs
	for i, dn := range c.order {
		if dn == req.DN {
			c.order[i] = newDN
		}
	}
	return nil
}

func (c *fakeClient) Delete(_ context.Context, dn string) error {
	if !c.has(dn) {
		return &goldap.Error{ResultCode: goldap.LDAPResultNoSuchObject, Err: errors.New("no such object")}
	}
	delete(c.entries, dn)
	for i, d := range c.order {
		if d == dn {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (c *fakeClient) Bind(context.Context, string, string) error { return nil }
func (c *fakeClient) Ping(context.Context) error                 { return nil }
func (c *fakeClient) Stats() ldap.PoolStats                      { return ldap.PoolStats{} }
func (c *fakeClient) Close() error                               { return nil }

func indexOf(values []string, want string) int {
	for i, v := range values {
		if v == want {
			return i
		}
	}
	return -1
}
