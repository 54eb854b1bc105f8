package directory

import (
	"context"
	"errors"
	"fmt"
)

// Snapshot is a portable dump of the directory contents. Password hashes
// and shadow timestamps are carried verbatim, so a round trip through
// Export and Import reproduces the records field for field.
type Snapshot struct {
	Users  []*User  `json:"users"`
	Groups []*Group `json:"groups"`
}

// ImportError records one entity that could not be restored.
type ImportError struct {
	Kind string `json:"kind"` // "user", "group", "membership"
	Name string `json:"name"`
	Err  error  `json:"-"`
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// ImportReport summarizes a restore: what landed, and every entity that
// failed. A partial restore is not rolled back; rerunning the import is
// safe because existing entities are skipped.
type ImportReport struct {
	UsersAdded  int
	GroupsAdded int
	Skipped     int
	Errors      []*ImportError
}

// Failed reports whether any entity could not be restored.
func (r *ImportReport) Failed() bool { return len(r.Errors) > 0 }

// Export captures every user and group. Membership lists on the user side
// are derived from the group member lists, so the snapshot has a single
// source of truth for membership.
func (e *Engine) Export(ctx context.Context) (*Snapshot, error) {
	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := e.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}

	memberships := make(map[string][]string)
	for _, g := range groups {
		for _, m := range g.Members {
			memberships[m] = append(memberships[m], g.Name)
		}
	}
	for _, u := range users {
		u.Groups = memberships[u.Username]
	}

	return &Snapshot{Users: users, Groups: groups}, nil
}

// Import restores a snapshot: groups first so primary links resolve, then
// users, then explicit memberships. Records are written through the
// repository untouched, keeping password hashes and shadow timestamps
// exactly as exported. Entities that already exist are skipped; failures
// are collected per entity and never abort the rest of the restore.
func (e *Engine) Import(ctx context.Context, snap *Snapshot) (*ImportReport, error) {
	log := e.opLog("backup_import")
	report := &ImportReport{}

	for _, g := range snap.Groups {
		err := e.repo.AddGroup(ctx, &Group{Name: g.Name, GID: g.GID})
		switch {
		case err == nil:
			report.GroupsAdded++
		case IsAlreadyExists(err):
			report.Skipped++
		default:
			report.Errors = append(report.Errors, &ImportError{Kind: "group", Name: g.Name, Err: err})
		}
	}

	for _, u := range snap.Users {
		record := *u
		record.Groups = nil
		err := e.repo.AddUser(ctx, &record)
		switch {
		case err == nil:
			report.UsersAdded++
		case IsAlreadyExists(err):
			report.Skipped++
		default:
			report.Errors = append(report.Errors, &ImportError{Kind: "user", Name: u.Username, Err: err})
		}
	}

	for _, g := range snap.Groups {
		if len(g.Members) == 0 {
			continue
		}
		if err := e.AddMembers(ctx, g.Name, g.Members); err != nil {
			report.Errors = append(report.Errors, &ImportError{Kind: "membership", Name: g.Name, Err: err})
		}
	}

	log.WithField("users", report.UsersAdded).
		WithField("groups", report.GroupsAdded).
		WithField("skipped", report.Skipped).
		WithField("errors", len(report.Errors)).
		Info("import finished")

	return report, nil
}

// Erase removes every user and group through the repository primitives,
// bypassing the default-group and non-empty-group safeguards. Failures are
// collected so one stubborn entry cannot strand the rest.
func (e *Engine) Erase(ctx context.Context) error {
	log := e.opLog("backup_erase")

	users, err := e.repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	groups, err := e.repo.ListGroups(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, u := range users {
		if err := e.repo.DeleteUser(ctx, u.Username); err != nil {
			errs = append(errs, err)
		}
	}
	for _, g := range groups {
		if err := e.repo.DeleteGroup(ctx, g.Name); err != nil {
			errs = append(errs, err)
		}
	}

	log.WithField("users", len(users)).WithField("groups", len(groups)).Info("directory erased")

	return errors.Join(errs...)
}
