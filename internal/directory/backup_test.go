package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDirectory(t *testing.T, engine *Engine) {
	t.Helper()
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		_, err := engine.AddUser(ctx, &AddUserParams{
			Username: name,
			Password: "secret-" + name,
			Expire:   int64Ptr(90),
		})
		require.NoError(t, err)
	}
	_, err := engine.AddGroup(ctx, &AddGroupParams{Name: "dev", Members: []string{"alice", "bob"}})
	require.NoError(t, err)
	_, err = engine.AddGroup(ctx, &AddGroupParams{Name: "ops", Members: []string{"bob"}})
	require.NoError(t, err)
}

func TestExportDerivesMemberships(t *testing.T) {
	engine, _ := newTestEngine(t)
	seedDirectory(t, engine)

	snap, err := engine.Export(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Users, 2)
	require.Len(t, snap.Groups, 4) // two personal groups plus dev and ops

	byName := make(map[string]*User)
	for _, u := range snap.Users {
		byName[u.Username] = u
	}
	assert.Equal(t, []string{"dev"}, byName["alice"].Groups)
	assert.ElementsMatch(t, []string{"dev", "ops"}, byName["bob"].Groups)
}

func TestRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedDirectory(t, engine)

	before, err := engine.Export(ctx)
	require.NoError(t, err)

	require.NoError(t, engine.Erase(ctx))
	empty, err := engine.Export(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Users)
	assert.Empty(t, empty.Groups)

	report, err := engine.Import(ctx, before)
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.Equal(t, 2, report.UsersAdded)
	assert.Equal(t, 4, report.GroupsAdded)

	after, err := engine.Export(ctx)
	require.NoError(t, err)

	// Field-for-field identical, password hashes and shadow timestamps
	// included.
	assert.Equal(t, before, after)
}

func TestImportSkipsExisting(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedDirectory(t, engine)

	snap, err := engine.Export(ctx)
	require.NoError(t, err)

	report, err := engine.Import(ctx, snap)
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.Zero(t, report.UsersAdded)
	assert.Zero(t, report.GroupsAdded)
	assert.Equal(t, 6, report.Skipped)

	// Membership replay is idempotent too.
	after, err := engine.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, after)
}

func TestImportReportsPerEntityFailures(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	snap := &Snapshot{
		Users: []*User{
			{Username: "alice", UID: 1050, GID: 150, CommonName: "alice", Surname: "alice",
				HomeDir: "/home/alice", Shell: "/bin/bash", Expire: ExpireNever},
		},
		Groups: []*Group{
			{Name: "alice", GID: 150},
			{Name: "dev", GID: 200, Members: []string{"ghost"}},
		},
	}

	report, err := engine.Import(ctx, snap)
	require.NoError(t, err)
	require.True(t, report.Failed())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "membership", report.Errors[0].Kind)
	assert.Equal(t, "dev", report.Errors[0].Name)

	// The rest of the batch still landed.
	assert.Equal(t, 1, report.UsersAdded)
	assert.Equal(t, 2, report.GroupsAdded)
}

func TestEraseEmptiesDirectory(t *testing.T) {
	engine, fc := newTestEngine(t)
	ctx := context.Background()
	seedDirectory(t, engine)

	require.NoError(t, engine.Erase(ctx))

	assert.False(t, fc.has("uid=alice,ou=People,dc=example,dc=com"))
	assert.False(t, fc.has("cn=dev,ou=Group,dc=example,dc=com"))
}
