package directory

import (
	"fmt"
	"strconv"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
)

// Directory attribute names used by the RFC 2307 schema.
const (
	attrUID         = "uid"
	attrCN          = "cn"
	attrSN          = "sn"
	attrGivenName   = "givenName"
	attrUIDNumber   = "uidNumber"
	attrGIDNumber   = "gidNumber"
	attrHomeDir     = "homeDirectory"
	attrLoginShell  = "loginShell"
	attrMail        = "mail"
	attrPhone       = "telephoneNumber"
	attrPassword    = "userPassword"
	attrExpire      = "shadowExpire"
	attrLastChange  = "shadowLastChange"
	attrMin         = "shadowMin"
	attrMax         = "shadowMax"
	attrWarning     = "shadowWarning"
	attrMember      = "member"
	attrObjectClass = "objectClass"
)

// Shadow policy defaults applied to every new account.
const (
	shadowMinDefault     = "0"
	shadowMaxDefault     = "99999"
	shadowWarningDefault = "7"
)

var (
	userObjectClasses = []string{
		"top",
		"person",
		"organizationalPerson",
		"inetOrgPerson",
		"posixAccount",
		"shadowAccount",
	}
	groupObjectClasses = []string{
		"top",
		"groupOfMembers",
		"posixGroup",
	}

	userAttributes = []string{
		attrUID, attrCN, attrSN, attrGivenName,
		attrUIDNumber, attrGIDNumber, attrHomeDir, attrLoginShell,
		attrMail, attrPhone, attrPassword, attrExpire, attrLastChange,
	}
	groupAttributes = []string{attrCN, attrGIDNumber, attrMember}
)

// AttributeCodec converts attribute values between their raw directory form
// and the logical form the rest of the engine works with.
type AttributeCodec interface {
	Decode(raw []string) []string
	Encode(logical []string) []string
}

// passthroughCodec leaves values untouched. It is the fallback for every
// attribute without a registered codec.
type passthroughCodec struct{}

func (passthroughCodec) Decode(raw []string) []string     { return raw }
func (passthroughCodec) Encode(logical []string) []string { return logical }

// rdnCodec maps between full member DNs and the bare value of their leading
// RDN, so the engine only ever sees usernames.
type rdnCodec struct {
	attr   string // RDN attribute of the referenced entries
	parent string // parent DN appended when encoding
}

func (c rdnCodec) Decode(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, dn := range raw {
		out = append(out, firstRDNValue(dn))
	}
	return out
}

func (c rdnCodec) Encode(logical []string) []string {
	if len(logical) == 0 {
		return nil
	}
	out := make([]string, 0, len(logical))
	for _, name := range logical {
		out = append(out, fmt.Sprintf("%s=%s,%s", c.attr, goldap.EscapeDN(name), c.parent))
	}
	return out
}

// firstRDNValue extracts the value of the leading RDN from a DN. Malformed
// values fall back to a plain string split so a single odd entry cannot
// break a whole listing.
func firstRDNValue(dn string) string {
	parsed, err := goldap.ParseDN(dn)
	if err == nil && len(parsed.RDNs) > 0 && len(parsed.RDNs[0].Attributes) > 0 {
		return parsed.RDNs[0].Attributes[0].Value
	}
	head := strings.SplitN(dn, ",", 2)[0]
	if idx := strings.Index(head, "="); idx >= 0 {
		return head[idx+1:]
	}
	return head
}

// Schema owns the DN layout of the tree and the per-attribute codec
// registry. All attribute translation between directory form and engine
// form goes through it.
type Schema struct {
	usersDN  string
	groupsDN string
	codecs   map[string]AttributeCodec
	fallback AttributeCodec
}

// NewSchema builds a schema rooted at baseDN, with users under ou=People
// and groups under ou=Group.
func NewSchema(baseDN string) *Schema {
	s := &Schema{
		usersDN:  "ou=People," + baseDN,
		groupsDN: "ou=Group," + baseDN,
		fallback: passthroughCodec{},
	}
	s.codecs = map[string]AttributeCodec{
		attrMember: rdnCodec{attr: attrUID, parent: s.usersDN},
	}
	return s
}

// UsersDN returns the container DN for user entries.
func (s *Schema) UsersDN() string { return s.usersDN }

// GroupsDN returns the container DN for group entries.
func (s *Schema) GroupsDN() string { return s.groupsDN }

// UserDN returns the DN of the user entry for username.
func (s *Schema) UserDN(username string) string {
	return fmt.Sprintf("%s=%s,%s", attrUID, goldap.EscapeDN(username), s.usersDN)
}

// GroupDN returns the DN of the group entry for name.
func (s *Schema) GroupDN(name string) string {
	return fmt.Sprintf("%s=%s,%s", attrCN, goldap.EscapeDN(name), s.groupsDN)
}

// Codec returns the codec registered for attr, or the passthrough fallback.
func (s *Schema) Codec(attr string) AttributeCodec {
	if c, ok := s.codecs[attr]; ok {
		return c
	}
	return s.fallback
}

// Decode translates raw directory values of attr into logical values.
func (s *Schema) Decode(attr string, raw []string) []string {
	return s.Codec(attr).Decode(raw)
}

// Encode translates logical values of attr into raw directory values.
func (s *Schema) Encode(attr string, logical []string) []string {
	return s.Codec(attr).Encode(logical)
}

// UserFromEntry decodes a directory entry into a User.
func (s *Schema) UserFromEntry(e *goldap.Entry) (*User, error) {
	u := &User{
		Username:   e.GetAttributeValue(attrUID),
		CommonName: e.GetAttributeValue(attrCN),
		Surname:    e.GetAttributeValue(attrSN),
		GivenName:  e.GetAttributeValue(attrGivenName),
		HomeDir:    e.GetAttributeValue(attrHomeDir),
		Shell:      e.GetAttributeValue(attrLoginShell),
		Mail:       e.GetAttributeValue(attrMail),
		Phone:      e.GetAttributeValue(attrPhone),
		Password:   e.GetAttributeValue(attrPassword),
		Expire:     ExpireNever,
	}
	if u.Username == "" {
		return nil, fmt.Errorf("entry %s has no uid attribute", e.DN)
	}

	var err error
	if u.UID, err = entryInt(e, attrUIDNumber); err != nil {
		return nil, err
	}
	if u.GID, err = entryInt(e, attrGIDNumber); err != nil {
		return nil, err
	}
	if v := e.GetAttributeValue(attrExpire); v != "" {
		if u.Expire, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("entry %s has malformed %s: %w", e.DN, attrExpire, err)
		}
	}
	if v := e.GetAttributeValue(attrLastChange); v != "" {
		if u.LastChange, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("entry %s has malformed %s: %w", e.DN, attrLastChange, err)
		}
	}

	return u, nil
}

// GroupFromEntry decodes a directory entry into a Group, translating member
// DNs to usernames.
func (s *Schema) GroupFromEntry(e *goldap.Entry) (*Group, error) {
	g := &Group{
		Name:    e.GetAttributeValue(attrCN),
		Members: s.Decode(attrMember, e.GetAttributeValues(attrMember)),
	}
	if g.Name == "" {
		return nil, fmt.Errorf("entry %s has no cn attribute", e.DN)
	}

	var err error
	if g.GID, err = entryInt(e, attrGIDNumber); err != nil {
		return nil, err
	}

	return g, nil
}

// UserEntryAttributes builds the full attribute set for a new user entry,
// including object classes and shadow policy defaults.
func (s *Schema) UserEntryAttributes(u *User) map[string][]string {
	attrs := map[string][]string{
		attrObjectClass: append([]string(nil), userObjectClasses...),
		attrUID:         {u.Username},
		attrCN:          {u.CommonName},
		attrSN:          {u.Surname},
		attrUIDNumber:   {strconv.Itoa(u.UID)},
		attrGIDNumber:   {strconv.Itoa(u.GID)},
		attrHomeDir:     {u.HomeDir},
		attrLoginShell:  {u.Shell},
		attrExpire:      {strconv.FormatInt(u.Expire, 10)},
		attrLastChange:  {strconv.FormatInt(u.LastChange, 10)},
		attrMin:         {shadowMinDefault},
		attrMax:         {shadowMaxDefault},
		attrWarning:     {shadowWarningDefault},
	}
	if u.GivenName != "" {
		attrs[attrGivenName] = []string{u.GivenName}
	}
	if u.Mail != "" {
		attrs[attrMail] = []string{u.Mail}
	}
	if u.Phone != "" {
		attrs[attrPhone] = []string{u.Phone}
	}
	if u.Password != "" {
		attrs[attrPassword] = []string{u.Password}
	}
	return attrs
}

// GroupEntryAttributes builds the full attribute set for a new group entry.
// Members are encoded to full DNs.
func (s *Schema) GroupEntryAttributes(g *Group) map[string][]string {
	attrs := map[string][]string{
		attrObjectClass: append([]string(nil), groupObjectClasses...),
		attrCN:          {g.Name},
		attrGIDNumber:   {strconv.Itoa(g.GID)},
	}
	if members := s.Encode(attrMember, g.Members); len(members) > 0 {
		attrs[attrMember] = members
	}
	return attrs
}

func entryInt(e *goldap.Entry, attr string) (int, error) {
	v := e.GetAttributeValue(attr)
	if v == "" {
		return 0, fmt.Errorf("entry %s has no %s attribute", e.DN, attr)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("entry %s has malformed %s: %w", e.DN, attr, err)
	}
	return n, nil
}
