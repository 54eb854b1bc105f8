package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMembersIdempotent(t *testing.T) {
	engine, fc := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddUser(ctx, &AddUserParams{Username: "alice"})
	require.NoError(t, err)
	_, err = engine.AddGroup(ctx, &AddGroupParams{Name: "dev"})
	require.NoError(t, err)

	require.NoError(t, engine.AddMembers(ctx, "dev", []string{"alice"}))
	require.NoError(t, engine.AddMembers(ctx, "dev", []string{"alice"}))

	assert.Equal(t,
		[]string{"uid=alice,ou=People,dc=example,dc=com"},
		fc.attr("cn=dev,ou=Group,dc=example,dc=com", "member"))
}

func TestAddMembersMixedNewAndExisting(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		_, err := engine.AddUser(ctx, &AddUserParams{Username: name})
		require.NoError(t, err)
	}
	_, err := engine.AddGroup(ctx, &AddGroupParams{Name: "dev", Members: []string{"alice"}})
	require.NoError(t, err)

	require.NoError(t, engine.AddMembers(ctx, "dev", []string{"alice", "bob"}))

	group, err := engine.ShowGroup(ctx, "dev")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, group.Members)
}

func TestAddMembersUnknownUsersBatched(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddGroup(ctx, &AddGroupParams{Name: "dev"})
	require.NoError(t, err)

	err = engine.AddMembers(ctx, "dev", []string{"ghost", "phantom"})
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"ghost", "phantom"}, validation.Missing)

	group, err := engine.ShowGroup(ctx, "dev")
	require.NoError(t, err)
	assert.Empty(t, group.Members)
}

func TestAddMembersGroupNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	assert.True(t, IsNotFound(engine.AddMembers(context.Background(), "nosuch", []string{"alice"})))
}

func TestRemoveMembersNonMemberIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		_, err := engine.AddUser(ctx, &AddUserParams{Username: name})
		require.NoError(t, err)
	}
	_, err := engine.AddGroup(ctx, &AddGroupParams{Name: "dev", Members: []string{"alice"}})
	require.NoError(t, err)

	// bob exists but is not a member; alice is removed, bob is skipped.
	require.NoError(t, engine.RemoveMembers(ctx, "dev", []string{"alice", "bob"}, false))

	group, err := engine.ShowGroup(ctx, "dev")
	require.NoError(t, err)
	assert.Empty(t, group.Members)

	// Repeating the call stays a no-op.
	require.NoError(t, engine.RemoveMembers(ctx, "dev", []string{"alice"}, false))
}

func TestRemoveMembersUnknownUsersBatched(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.AddGroup(ctx, &AddGroupParams{Name: "dev"})
	require.NoError(t, err)

	err = engine.RemoveMembers(ctx, "dev", []string{"ghost", "phantom"}, false)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, []string{"ghost", "phantom"}, validation.Missing)
}

func TestRemoveMembersFromPrimaryGroupProceeds(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// alice's primary group is her personal group; make her an explicit
	// member of it as well.
	alice, err := engine.AddUser(ctx, &AddUserParams{Username: "alice"})
	require.NoError(t, err)
	require.NoError(t, engine.AddMembers(ctx, "alice", []string{"alice"}))

	// Removal warns but proceeds; the numeric linkage stays.
	require.NoError(t, engine.RemoveMembers(ctx, "alice", []string{"alice"}, true))

	group, err := engine.ShowGroup(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, group.Members)

	refetched, err := engine.ShowUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.GID, refetched.GID)
}

func TestStringSetDiff(t *testing.T) {
	assert.Equal(t, []string{"c"}, stringSetDiff([]string{"a", "c"}, []string{"a", "b"}))
	assert.Empty(t, stringSetDiff([]string{"a"}, []string{"a"}))
	assert.Equal(t, []string{"a", "b"}, stringSetDiff([]string{"a", "b"}, nil))
	assert.Empty(t, stringSetDiff(nil, []string{"a"}))
}
