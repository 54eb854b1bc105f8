package directory

import (
	"context"
	"fmt"
	"sort"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"

	"github.com/isometry/posixadm/internal/ldap"
)

const (
	userObjectFilter  = "(objectClass=posixAccount)"
	groupObjectFilter = "(objectClass=posixGroup)"
)

// ChangeOp is the kind of modification applied to a single attribute.
type ChangeOp int

const (
	OpReplace ChangeOp = iota
	OpAdd
	OpDelete
)

// AttributeChange is one attribute modification. Values are logical; the
// repository encodes them through the schema codec before writing.
type AttributeChange struct {
	Op     ChangeOp
	Attr   string
	Values []string
}

// Repository performs the primitive entry operations against the directory.
// Each method is a single read or a single write; consistency rules live in
// the Engine above it.
type Repository struct {
	client ldap.Client
	schema *Schema
	log    *logrus.Entry
}

// NewRepository creates a repository over client for the tree described by
// schema.
func NewRepository(client ldap.Client, schema *Schema, log *logrus.Logger) *Repository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Repository{
		client: client,
		schema: schema,
		log:    log.WithField("component", "repository"),
	}
}

// Schema exposes the schema the repository was built with.
func (r *Repository) Schema() *Schema { return r.schema }

// ListUsers returns every user entry, sorted by username. Entries that fail
// to decode are skipped with a warning rather than failing the listing.
func (r *Repository) ListUsers(ctx context.Context) ([]*User, error) {
	result, err := r.client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     r.schema.UsersDN(),
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     userObjectFilter,
		Attributes: userAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*User, 0, len(result.Entries))
	for _, entry := range result.Entries {
		u, err := r.schema.UserFromEntry(entry)
		if err != nil {
			r.log.WithError(err).WithField("dn", entry.DN).Warn("skipping undecodable user entry")
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })

	return users, nil
}

// ListGroups returns every group entry, sorted by name.
func (r *Repository) ListGroups(ctx context.Context) ([]*Group, error) {
	result, err := r.client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     r.schema.GroupsDN(),
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     groupObjectFilter,
		Attributes: groupAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	groups := make([]*Group, 0, len(result.Entries))
	for _, entry := range result.Entries {
		g, err := r.schema.GroupFromEntry(entry)
		if err != nil {
			r.log.WithError(err).WithField("dn", entry.DN).Warn("skipping undecodable group entry")
			continue
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	return groups, nil
}

// GetUser returns the user named username together with its secondary group
// memberships, resolved by a reverse member search.
func (r *Repository) GetUser(ctx context.Context, username string) (*User, error) {
	filter := fmt.Sprintf("(&%s(%s=%s))", userObjectFilter, attrUID, goldap.EscapeFilter(username))
	result, err := r.client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     r.schema.UsersDN(),
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: userAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	if len(result.Entries) == 0 {
		return nil, &NotFoundError{Kind: "user", Name: username}
	}
	if len(result.Entries) > 1 {
		r.log.WithField("username", username).Warn("multiple entries share one uid, using the first")
	}

	u, err := r.schema.UserFromEntry(result.Entries[0])
	if err != nil {
		return nil, err
	}
	if u.Groups, err = r.userMemberships(ctx, username); err != nil {
		return nil, err
	}

	return u, nil
}

// userMemberships returns the names of every group carrying an explicit
// member reference to username, sorted.
func (r *Repository) userMemberships(ctx context.Context, username string) ([]string, error) {
	memberDN := r.schema.UserDN(username)
	filter := fmt.Sprintf("(&%s(%s=%s))", groupObjectFilter, attrMember, goldap.EscapeFilter(memberDN))
	result, err := r.client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     r.schema.GroupsDN(),
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: []string{attrCN},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve memberships of %q: %w", username, err)
	}

	names := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		if name := entry.GetAttributeValue(attrCN); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	return names, nil
}

// GetGroup returns the group named name.
func (r *Repository) GetGroup(ctx context.Context, name string) (*Group, error) {
	filter := fmt.Sprintf("(&%s(%s=%s))", groupObjectFilter, attrCN, goldap.EscapeFilter(name))
	result, err := r.client.Search(ctx, &ldap.SearchRequest{
		BaseDN:     r.schema.GroupsDN(),
		Scope:      ldap.ScopeWholeSubtree,
		Filter:     filter,
		Attributes: groupAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up group %q: %w", name, err)
	}
	if len(result.Entries) == 0 {
		return nil, &NotFoundError{Kind: "group", Name: name}
	}
	if len(result.Entries) > 1 {
		r.log.WithField("group", name).Warn("multiple entries share one cn, using the first")
	}

	return r.schema.GroupFromEntry(result.Entries[0])
}

// AddUser creates the entry for u.
func (r *Repository) AddUser(ctx context.Context, u *User) error {
	err := r.client.Add(ctx, &ldap.AddRequest{
		DN:         r.schema.UserDN(u.Username),
		Attributes: r.schema.UserEntryAttributes(u),
	})
	if ldap.IsAlreadyExists(err) {
		return &AlreadyExistsError{Kind: "user", Name: u.Username}
	}
	if err != nil {
		return fmt.Errorf("failed to add user %q: %w", u.Username, err)
	}
	return nil
}

// AddGroup creates the entry for g.
func (r *Repository) AddGroup(ctx context.Context, g *Group) error {
	err := r.client.Add(ctx, &ldap.AddRequest{
		DN:         r.schema.GroupDN(g.Name),
		Attributes: r.schema.GroupEntryAttributes(g),
	})
	if ldap.IsAlreadyExists(err) {
		return &AlreadyExistsError{Kind: "group", Name: g.Name}
	}
	if err != nil {
		return fmt.Errorf("failed to add group %q: %w", g.Name, err)
	}
	return nil
}

// ModifyUser applies changes to the entry of username in a single write.
func (r *Repository) ModifyUser(ctx context.Context, username string, changes []AttributeChange) error {
	if len(changes) == 0 {
		return nil
	}
	req := r.buildModifyRequest(r.schema.UserDN(username), changes)
	err := r.client.Modify(ctx, req)
	if ldap.IsNotFound(err) {
		return &NotFoundError{Kind: "user", Name: username}
	}
	if err != nil {
		return fmt.Errorf("failed to modify user %q: %w", username, err)
	}
	return nil
}

// ModifyGroup applies changes to the entry of name in a single write.
func (r *Repository) ModifyGroup(ctx context.Context, name string, changes []AttributeChange) error {
	if len(changes) == 0 {
		return nil
	}
	req := r.buildModifyRequest(r.schema.GroupDN(name), changes)
	err := r.client.Modify(ctx, req)
	if ldap.IsNotFound(err) {
		return &NotFoundError{Kind: "group", Name: name}
	}
	if err != nil {
		return fmt.Errorf("failed to modify group %q: %w", name, err)
	}
	return nil
}

func (r *Repository) buildModifyRequest(dn string, changes []AttributeChange) *ldap.ModifyRequest {
	req := &ldap.ModifyRequest{DN: dn}
	for _, c := range changes {
		values := r.schema.Encode(c.Attr, c.Values)
		switch c.Op {
		case OpAdd:
			if req.AddAttributes == nil {
				req.AddAttributes = make(map[string][]string)
			}
			req.AddAttributes[c.Attr] = append(req.AddAttributes[c.Attr], values...)
		case OpDelete:
			if req.DeleteAttributes == nil {
				req.DeleteAttributes = make(map[string][]string)
			}
			req.DeleteAttributes[c.Attr] = append(req.DeleteAttributes[c.Attr], values...)
		default:
			if req.ReplaceAttributes == nil {
				req.ReplaceAttributes = make(map[string][]string)
			}
			req.ReplaceAttributes[c.Attr] = values
		}
	}
	return req
}

// DeleteUser removes the entry of username.
func (r *Repository) DeleteUser(ctx context.Context, username string) error {
	err := r.client.Delete(ctx, r.schema.UserDN(username))
	if ldap.IsNotFound(err) {
		return &NotFoundError{Kind: "user", Name: username}
	}
	if err != nil {
		return fmt.Errorf("failed to delete user %q: %w", username, err)
	}
	return nil
}

// DeleteGroup removes the entry of name.
func (r *Repository) DeleteGroup(ctx context.Context, name string) error {
	err := r.client.Delete(ctx, r.schema.GroupDN(name))
	if ldap.IsNotFound(err) {
		return &NotFoundError{Kind: "group", Name: name}
	}
	if err != nil {
		return fmt.Errorf("failed to delete group %q: %w", name, err)
	}
	return nil
}

// RenameGroup renames the entry of oldName to newName, replacing the RDN
// and discarding the old value. The gid and member list ride along
// untouched.
func (r *Repository) RenameGroup(ctx context.Context, oldName, newName string) error {
	err := r.client.ModifyDN(ctx, &ldap.ModifyDNRequest{
		DN:           r.schema.GroupDN(oldName),
		NewRDN:       fmt.Sprintf("%s=%s", attrCN, goldap.EscapeDN(newName)),
		DeleteOldRDN: true,
	})
	if ldap.IsNotFound(err) {
		return &NotFoundError{Kind: "group", Name: oldName}
	}
	if ldap.IsAlreadyExists(err) {
		return &AlreadyExistsError{Kind: "group", Name: newName}
	}
	if err != nil {
		return fmt.Errorf("failed to rename group %q to %q: %w", oldName, newName, err)
	}
	return nil
}
