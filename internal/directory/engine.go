package directory

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Settings carries the site policy the engine enforces.
type Settings struct {
	UIDRange     IDRange
	GIDRange     IDRange
	HomeBase     string
	DefaultShell string
}

// Engine enforces the consistency rules over the repository primitives:
// name and id uniqueness, primary-group linkage, default-group lifecycle
// and membership synchronization.
type Engine struct {
	repo     *Repository
	settings Settings
	log      *logrus.Entry
	now      func() time.Time
	homeDirs bool
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithClock overrides the time source used for shadow bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHomeDirs enables creation of home directories on user add.
func WithHomeDirs(enabled bool) Option {
	return func(e *Engine) { e.homeDirs = enabled }
}

// NewEngine creates an engine over repo applying settings.
func NewEngine(repo *Repository, settings Settings, log *logrus.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Engine{
		repo:     repo,
		settings: settings,
		log:      log.WithField("component", "engine"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// opLog tags every log line of one operation with a shared id, so the
// read-validate-write sequence can be traced as a unit.
func (e *Engine) opLog(op string) *logrus.Entry {
	return e.log.WithFields(logrus.Fields{"op": op, "op_id": uuid.NewString()})
}

func epochDays(t time.Time) int64 {
	return t.Unix() / 86400
}

// ListUsers returns every user record.
func (e *Engine) ListUsers(ctx context.Context) ([]*User, error) {
	return e.repo.ListUsers(ctx)
}

// ListGroups returns every group record.
func (e *Engine) ListGroups(ctx context.Context) ([]*Group, error) {
	return e.repo.ListGroups(ctx)
}

// ShowUser returns one user with memberships resolved.
func (e *Engine) ShowUser(ctx context.Context, username string) (*User, error) {
	return e.repo.GetUser(ctx, username)
}

// ShowGroup returns one group.
func (e *Engine) ShowGroup(ctx context.Context, name string) (*Group, error) {
	return e.repo.GetGroup(ctx, name)
}

// AddUserParams describes a user creation request. Nil pointer fields mean
// "not specified" and fall back to site policy.
type AddUserParams struct {
	Username   string
	Password   string
	CommonName string
	Surname    string
	GivenName  string
	Mail       string
	Phone      string
	Shell      string
	HomeDir    string
	UID        *int
	GID        *int
	GroupName  string
	Groups     []string
	Expire     *int64 // days from today; ExpireNever disables expiry
}

// AddUser creates a user record, resolving its primary group per the
// request shape:
//
//   - group name given: the group must exist, its gid becomes the primary.
//   - gid given: a group with that gid must exist.
//   - both given: they must agree.
//   - neither: a group named after the user is reused when present,
//     otherwise created with a freshly allocated gid and no members.
//
// The primary group's member list is never touched; only groups listed in
// Groups receive an explicit membership.
func (e *Engine) AddUser(ctx context.Context, p *AddUserParams) (*User, error) {
	log := e.opLog("user_add").WithField("username", p.Username)

	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Username == p.Username {
			return nil, &AlreadyExistsError{Kind: "user", Name: p.Username}
		}
	}
	uids := usedUIDs(users)

	uid := 0
	if p.UID != nil {
		if uids[*p.UID] {
			return nil, &AlreadyExistsError{Kind: "uid", Name: strconv.Itoa(*p.UID)}
		}
		uid = *p.UID
	} else if uid, err = NextID("uid", uids, e.settings.UIDRange); err != nil {
		return nil, err
	}

	groups, err := e.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	gid, createDefault, err := e.resolvePrimaryGroup(p, groups)
	if err != nil {
		return nil, err
	}

	byName := groupsByName(groups)
	var missing []string
	for _, name := range p.Groups {
		if _, ok := byName[name]; ok {
			continue
		}
		if createDefault && name == p.Username {
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Kind: "group", Missing: missing}
	}

	user := &User{
		Username:   p.Username,
		UID:        uid,
		GID:        gid,
		CommonName: p.CommonName,
		Surname:    p.Surname,
		GivenName:  p.GivenName,
		HomeDir:    p.HomeDir,
		Shell:      p.Shell,
		Mail:       p.Mail,
		Phone:      p.Phone,
		Expire:     ExpireNever,
		LastChange: epochDays(e.now()),
	}
	if user.CommonName == "" {
		user.CommonName = p.Username
	}
	if user.Surname == "" {
		user.Surname = p.Username
	}
	if user.HomeDir == "" {
		user.HomeDir = path.Join(e.settings.HomeBase, p.Username)
	}
	if user.Shell == "" {
		user.Shell = e.settings.DefaultShell
	}
	if p.Expire != nil && *p.Expire != ExpireNever {
		user.Expire = epochDays(e.now()) + *p.Expire
	}
	if p.Password != "" {
		if user.Password, err = EncodeSecret(p.Password); err != nil {
			return nil, err
		}
	}

	if err := e.repo.AddUser(ctx, user); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"uid": uid, "gid": gid}).Info("user created")

	if createDefault {
		if err := e.repo.AddGroup(ctx, &Group{Name: p.Username, GID: gid}); err != nil {
			return nil, err
		}
		log.WithField("gid", gid).Info("default group created")
	}

	for _, name := range p.Groups {
		if err := e.AddMembers(ctx, name, []string{p.Username}); err != nil {
			return nil, err
		}
	}

	if e.homeDirs {
		e.ensureHomeDir(user, log)
	}

	return user, nil
}

// resolvePrimaryGroup maps the three linkage shapes of an add request onto
// a gid, reporting whether a default group must be created.
func (e *Engine) resolvePrimaryGroup(p *AddUserParams, groups []*Group) (gid int, createDefault bool, err error) {
	byName := groupsByName(groups)

	switch {
	case p.GroupName != "" && p.GID != nil:
		g, ok := byName[p.GroupName]
		if !ok {
			return 0, false, &NotFoundError{Kind: "group", Name: p.GroupName}
		}
		if g.GID != *p.GID {
			return 0, false, &ConflictError{
				Key:      "group " + p.GroupName,
				Expected: "gid " + strconv.Itoa(*p.GID),
				Actual:   "gid " + strconv.Itoa(g.GID),
			}
		}
		return g.GID, false, nil

	case p.GroupName != "":
		g, ok := byName[p.GroupName]
		if !ok {
			return 0, false, &NotFoundError{Kind: "group", Name: p.GroupName}
		}
		return g.GID, false, nil

	case p.GID != nil:
		for _, g := range groups {
			if g.GID == *p.GID {
				return g.GID, false, nil
			}
		}
		return 0, false, &NotFoundError{Kind: "gid", Name: strconv.Itoa(*p.GID)}

	default:
		if g, ok := byName[p.Username]; ok {
			return g.GID, false, nil
		}
		gid, err := NextID("gid", usedGIDs(groups), e.settings.GIDRange)
		if err != nil {
			return 0, false, err
		}
		return gid, true, nil
	}
}

// ModifyUserParams describes a user modification. Nil fields are left
// untouched.
type ModifyUserParams struct {
	CommonName *string
	Surname    *string
	GivenName  *string
	Password   *string
	Mail       *string
	Phone      *string
	Shell      *string
	HomeDir    *string
	UID        *int
	GID        *int
	GroupName  *string
	Groups     *[]string
	Expire     *int64
}

// ModifyUser applies p to the user named username. Attribute replacements
// land first in a single write; a primary-group change then leaves the old
// group and joins the new one; finally the explicit membership list is
// reconciled against Groups, with the primary group never implicitly added
// or removed by that diff.
func (e *Engine) ModifyUser(ctx context.Context, username string, p *ModifyUserParams) error {
	log := e.opLog("user_modify").WithField("username", username)

	user, err := e.repo.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if p.UID != nil && *p.UID != user.UID {
		return &UnsupportedError{Field: "uidNumber", Reason: "the uid is the stable key of an account"}
	}
	// A set-but-empty group name must never reach resolvePrimaryGroup: its
	// default branch synthesizes a fresh gid, which only an add may do.
	if p.GroupName != nil && *p.GroupName == "" {
		return &ValidationError{Kind: "group", Missing: []string{""}}
	}

	var groups []*Group
	if p.GID != nil || p.GroupName != nil || p.Groups != nil {
		if groups, err = e.repo.ListGroups(ctx); err != nil {
			return err
		}
	}

	var changes []AttributeChange
	replace := func(attr, value string) {
		changes = append(changes, AttributeChange{Op: OpReplace, Attr: attr, Values: []string{value}})
	}
	if p.CommonName != nil {
		replace(attrCN, *p.CommonName)
	}
	if p.Surname != nil {
		replace(attrSN, *p.Surname)
	}
	if p.GivenName != nil {
		replace(attrGivenName, *p.GivenName)
	}
	if p.Mail != nil {
		replace(attrMail, *p.Mail)
	}
	if p.Phone != nil {
		replace(attrPhone, *p.Phone)
	}
	if p.Shell != nil {
		replace(attrLoginShell, *p.Shell)
	}
	if p.HomeDir != nil {
		replace(attrHomeDir, *p.HomeDir)
	}
	if p.Password != nil {
		secret, err := EncodeSecret(*p.Password)
		if err != nil {
			return err
		}
		replace(attrPassword, secret)
	}
	if p.Expire != nil {
		expire := ExpireNever
		if *p.Expire != ExpireNever {
			expire = epochDays(e.now()) + *p.Expire
		}
		replace(attrExpire, strconv.FormatInt(expire, 10))
	}

	newGID := user.GID
	if p.GID != nil || p.GroupName != nil {
		linkage := &AddUserParams{Username: username, GID: p.GID}
		if p.GroupName != nil {
			linkage.GroupName = *p.GroupName
		}
		if newGID, _, err = e.resolvePrimaryGroup(linkage, groups); err != nil {
			return err
		}
		if newGID != user.GID {
			replace(attrGIDNumber, strconv.Itoa(newGID))
		}
	}

	if err := e.repo.ModifyUser(ctx, username, changes); err != nil {
		return err
	}

	if newGID != user.GID {
		if old := groupNameByGID(groups, user.GID); old != "" {
			if err := e.RemoveMembers(ctx, old, []string{username}, false); err != nil {
				return err
			}
		}
		if next := groupNameByGID(groups, newGID); next != "" {
			if err := e.AddMembers(ctx, next, []string{username}); err != nil {
				return err
			}
		}
		log.WithFields(logrus.Fields{"old_gid": user.GID, "new_gid": newGID}).Info("primary group changed")
	}

	if p.Groups != nil {
		desired := *p.Groups
		byName := groupsByName(groups)
		var missing []string
		for _, name := range desired {
			if _, ok := byName[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return &ValidationError{Kind: "group", Missing: missing}
		}

		primary := groupNameByGID(groups, newGID)
		toAdd := stringSetDiff(desired, user.Groups)
		toDel := stringSetDiff(user.Groups, desired)
		for _, name := range toAdd {
			if name == primary {
				continue
			}
			if err := e.AddMembers(ctx, name, []string{username}); err != nil {
				return err
			}
		}
		for _, name := range toDel {
			if name == primary {
				continue
			}
			if err := e.RemoveMembers(ctx, name, []string{username}, false); err != nil {
				return err
			}
		}
	}

	log.Info("user modified")
	return nil
}

// DeleteUser removes a user record after revoking its explicit
// memberships, so no group is left naming an account that is gone. A group
// named after the user is removed as well when it has no members and no
// remaining user keeps it as primary group.
func (e *Engine) DeleteUser(ctx context.Context, username string) error {
	log := e.opLog("user_delete").WithField("username", username)

	user, err := e.repo.GetUser(ctx, username)
	if err != nil {
		return err
	}
	for _, name := range user.Groups {
		if err := e.RemoveMembers(ctx, name, []string{username}, false); err != nil {
			return err
		}
	}
	if err := e.repo.DeleteUser(ctx, username); err != nil {
		return err
	}
	log.Info("user deleted")

	group, err := e.repo.GetGroup(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	if len(group.Members) > 0 {
		return nil
	}

	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if u.GID == group.GID {
			return nil
		}
	}

	if err := e.repo.DeleteGroup(ctx, username); err != nil {
		return err
	}
	log.WithField("gid", group.GID).Info("default group deleted")

	return nil
}

// AddGroupParams describes a group creation request.
type AddGroupParams struct {
	Name    string
	GID     *int
	Members []string
}

// AddGroup creates a group. Every requested member must name an existing
// user; unknown names are reported together in one error before anything
// is written.
func (e *Engine) AddGroup(ctx context.Context, p *AddGroupParams) (*Group, error) {
	log := e.opLog("group_add").WithField("group", p.Name)

	groups, err := e.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	gids := make(map[int]bool, len(groups))
	for _, g := range groups {
		if g.Name == p.Name {
			return nil, &AlreadyExistsError{Kind: "group", Name: p.Name}
		}
		gids[g.GID] = true
	}

	gid := 0
	if p.GID != nil {
		if gids[*p.GID] {
			return nil, &AlreadyExistsError{Kind: "gid", Name: strconv.Itoa(*p.GID)}
		}
		gid = *p.GID
	} else if gid, err = NextID("gid", gids, e.settings.GIDRange); err != nil {
		return nil, err
	}

	if len(p.Members) > 0 {
		users, err := e.repo.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		if missing := missingUsers(p.Members, users); len(missing) > 0 {
			return nil, &ValidationError{Kind: "user", Missing: missing}
		}
	}

	group := &Group{Name: p.Name, GID: gid, Members: p.Members}
	if err := e.repo.AddGroup(ctx, group); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"gid": gid, "members": len(p.Members)}).Info("group created")

	return group, nil
}

// ModifyGroupParams describes a group modification. Nil fields are left
// untouched.
type ModifyGroupParams struct {
	GID     *int
	Members *[]string
}

// ModifyGroup applies p to the group named name. A gid change is refused:
// every member's primary-group reference would silently dangle. A Members
// list replaces the explicit membership as a set.
func (e *Engine) ModifyGroup(ctx context.Context, name string, p *ModifyGroupParams) error {
	log := e.opLog("group_modify").WithField("group", name)

	group, err := e.repo.GetGroup(ctx, name)
	if err != nil {
		return err
	}

	if p.GID != nil && *p.GID != group.GID {
		return &UnsupportedError{Field: "gidNumber", Reason: "primary-group references would dangle"}
	}

	if p.Members != nil {
		desired := *p.Members
		users, err := e.repo.ListUsers(ctx)
		if err != nil {
			return err
		}
		if missing := missingUsers(desired, users); len(missing) > 0 {
			return &ValidationError{Kind: "user", Missing: missing}
		}

		toAdd := stringSetDiff(desired, group.Members)
		toDel := stringSetDiff(group.Members, desired)
		if err := e.AddMembers(ctx, name, toAdd); err != nil {
			return err
		}
		if err := e.RemoveMembers(ctx, name, toDel, true); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"added": len(toAdd), "removed": len(toDel)}).Info("membership reconciled")
	}

	return nil
}

// DeleteGroup removes a group. Groups that still have members, or that any
// user still uses as primary group, are refused.
func (e *Engine) DeleteGroup(ctx context.Context, name string) error {
	log := e.opLog("group_delete").WithField("group", name)

	group, err := e.repo.GetGroup(ctx, name)
	if err != nil {
		return err
	}
	if n := len(group.Members); n > 0 {
		return &ConflictError{
			Key:      "group " + name,
			Expected: "no members",
			Actual:   fmt.Sprintf("%d member(s)", n),
		}
	}

	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	var primaries []string
	for _, u := range users {
		if u.GID == group.GID {
			primaries = append(primaries, u.Username)
		}
	}
	if len(primaries) > 0 {
		return &ConflictError{
			Key:      "group " + name,
			Expected: "no primary-group references",
			Actual:   fmt.Sprintf("primary group of %d user(s)", len(primaries)),
		}
	}

	if err := e.repo.DeleteGroup(ctx, name); err != nil {
		return err
	}
	log.WithField("gid", group.GID).Info("group deleted")

	return nil
}

// RenameGroup renames a group, keeping gid and membership intact. Primary
// linkage is numeric and survives; only the entry name changes.
func (e *Engine) RenameGroup(ctx context.Context, oldName, newName string) error {
	log := e.opLog("group_rename").WithFields(logrus.Fields{"from": oldName, "to": newName})

	if _, err := e.repo.GetGroup(ctx, oldName); err != nil {
		return err
	}
	if _, err := e.repo.GetGroup(ctx, newName); err == nil {
		return &AlreadyExistsError{Kind: "group", Name: newName}
	} else if !IsNotFound(err) {
		return err
	}

	if err := e.repo.RenameGroup(ctx, oldName, newName); err != nil {
		return err
	}
	log.Info("group renamed")

	return nil
}

// ensureHomeDir creates the user's home directory and hands it over to the
// new account. Filesystem trouble is logged but never fails the operation:
// the directory record is already in place.
func (e *Engine) ensureHomeDir(u *User, log *logrus.Entry) {
	info, err := os.Stat(u.HomeDir)
	if err == nil {
		if st, ok := info.Sys().(*syscall.Stat_t); ok && (int(st.Uid) != u.UID || int(st.Gid) != u.GID) {
			log.WithFields(logrus.Fields{
				"home":  u.HomeDir,
				"owner": st.Uid,
			}).Warn("home directory exists with different owner")
		}
		return
	}
	if !os.IsNotExist(err) {
		log.WithError(err).WithField("home", u.HomeDir).Warn("cannot inspect home directory")
		return
	}

	if err := os.MkdirAll(u.HomeDir, 0o700); err != nil {
		log.WithError(err).WithField("home", u.HomeDir).Warn("failed to create home directory")
		return
	}
	if err := os.Chown(u.HomeDir, u.UID, u.GID); err != nil {
		log.WithError(err).WithField("home", u.HomeDir).Warn("failed to chown home directory")
	}
}

func groupsByName(groups []*Group) map[string]*Group {
	byName := make(map[string]*Group, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}
	return byName
}

func groupNameByGID(groups []*Group, gid int) string {
	for _, g := range groups {
		if g.GID == gid {
			return g.Name
		}
	}
	return ""
}

func missingUsers(names []string, users []*User) []string {
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.Username] = true
	}
	var missing []string
	for _, name := range names {
		if !known[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
