// Package render formats engine records for the terminal, as aligned
// tables or JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/isometry/posixadm/internal/directory"
)

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// UsersTable writes one row per user.
func UsersTable(w io.Writer, users []*directory.User) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tUID\tGID\tCN\tHOME\tSHELL")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			u.Username, u.UID, u.GID, u.CommonName, u.HomeDir, u.Shell)
	}
	return tw.Flush()
}

// GroupsTable writes one row per group.
func GroupsTable(w io.Writer, groups []*directory.Group) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tGID\tMEMBERS")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", g.Name, g.GID, strings.Join(g.Members, ","))
	}
	return tw.Flush()
}

// UserDetail writes every field of one user, one per line.
func UserDetail(w io.Writer, u *directory.User) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	rows := [][2]string{
		{"username", u.Username},
		{"uid", strconv.Itoa(u.UID)},
		{"gid", strconv.Itoa(u.GID)},
		{"cn", u.CommonName},
		{"sn", u.Surname},
		{"givenName", u.GivenName},
		{"home", u.HomeDir},
		{"shell", u.Shell},
		{"mail", u.Mail},
		{"phone", u.Phone},
		{"expire", formatExpire(u.Expire)},
		{"groups", strings.Join(u.Groups, ",")},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1])
	}
	return tw.Flush()
}

// GroupDetail writes every field of one group, one per line.
func GroupDetail(w io.Writer, g *directory.Group) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "name:\t%s\n", g.Name)
	fmt.Fprintf(tw, "gid:\t%d\n", g.GID)
	fmt.Fprintf(tw, "members:\t%s\n", strings.Join(g.Members, ","))
	return tw.Flush()
}

func formatExpire(days int64) string {
	if days == directory.ExpireNever {
		return "never"
	}
	return strconv.FormatInt(days, 10)
}
