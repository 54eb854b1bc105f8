package directory

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/isometry/posixadm/internal/ldap"
)

// AddMembers grants usernames explicit membership of groupName. Users that
// are already members are skipped, so repeating a call is a no-op. Unknown
// usernames among the newcomers are reported together in one error before
// anything is written.
func (e *Engine) AddMembers(ctx context.Context, groupName string, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}
	log := e.opLog("group_addusers").WithField("group", groupName)

	group, err := e.repo.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}

	var newcomers []string
	for _, name := range usernames {
		if !group.HasMember(name) {
			newcomers = append(newcomers, name)
		}
	}
	if len(newcomers) == 0 {
		log.Debug("all requested users are already members")
		return nil
	}

	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if missing := missingUsers(newcomers, users); len(missing) > 0 {
		return &ValidationError{Kind: "user", Missing: missing}
	}

	for _, name := range newcomers {
		err := e.repo.ModifyGroup(ctx, groupName, []AttributeChange{
			{Op: OpAdd, Attr: attrMember, Values: []string{name}},
		})
		// A concurrent writer may have added the same member; that still
		// satisfies the request.
		if err != nil && !ldap.IsAttributeExists(err) {
			return err
		}
		log.WithField("username", name).Info("member added")
	}

	return nil
}

// RemoveMembers revokes the explicit membership of usernames in groupName.
// Non-members are skipped, so repeating a call is a no-op. Unknown usernames
// are reported together in one error before anything is written. With
// warnOnPrimary set, removing a user whose primary group this is logs a
// warning but proceeds: the numeric linkage stays intact.
func (e *Engine) RemoveMembers(ctx context.Context, groupName string, usernames []string, warnOnPrimary bool) error {
	if len(usernames) == 0 {
		return nil
	}
	log := e.opLog("group_delusers").WithField("group", groupName)

	group, err := e.repo.GetGroup(ctx, groupName)
	if err != nil {
		return err
	}

	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	if missing := missingUsers(usernames, users); len(missing) > 0 {
		return &ValidationError{Kind: "user", Missing: missing}
	}
	byName := make(map[string]*User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}

	for _, name := range usernames {
		if !group.HasMember(name) {
			continue
		}
		if warnOnPrimary {
			if u := byName[name]; u != nil && u.GID == group.GID {
				log.WithFields(logrus.Fields{
					"username": name,
					"gid":      group.GID,
				}).Warn("removing user from its primary group; numeric linkage remains")
			}
		}
		if err := e.repo.ModifyGroup(ctx, groupName, []AttributeChange{
			{Op: OpDelete, Attr: attrMember, Values: []string{name}},
		}); err != nil {
			return err
		}
		log.WithField("username", name).Info("member removed")
	}

	return nil
}

// stringSetDiff returns the elements of a that do not appear in b, in the
// order they appear in a.
func stringSetDiff(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if !inB[s] {
			out = append(out, s)
		}
	}
	return out
}
