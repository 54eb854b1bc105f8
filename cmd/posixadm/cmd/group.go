package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/isometry/posixadm/internal/directory"
	"github.com/isometry/posixadm/internal/render"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage group records",
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(
		newGroupListCmd(),
		newGroupShowCmd(),
		newGroupAddCmd(),
		newGroupModifyCmd(),
		newGroupRenameCmd(),
		newGroupAddUsersCmd(),
		newGroupDelUsersCmd(),
		newGroupDeleteCmd(),
	)
}

func newGroupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			groups, err := rt.engine.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return render.JSON(os.Stdout, groups)
			}
			return render.GroupsTable(os.Stdout, groups)
		},
	}
}

func newGroupShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <group>",
		Short: "Show one group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			group, err := rt.engine.ShowGroup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return render.JSON(os.Stdout, group)
			}
			return render.GroupDetail(os.Stdout, group)
		},
	}
}

func newGroupAddCmd() *cobra.Command {
	var (
		gid     int
		members []string
	)
	cmd := &cobra.Command{
		Use:   "add <group>",
		Short: "Add a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			params := &directory.AddGroupParams{Name: args[0], Members: members}
			if cmd.Flags().Changed("gid") {
				params.GID = &gid
			}

			group, err := rt.engine.AddGroup(cmd.Context(), params)
			if err != nil {
				return err
			}
			if jsonOut {
				return render.JSON(os.Stdout, group)
			}
			fmt.Printf("group %s created (gid %d)\n", group.Name, group.GID)
			return nil
		},
	}
	cmd.Flags().IntVar(&gid, "gid", 0, "numeric group id (allocated when omitted)")
	cmd.Flags().StringSliceVar(&members, "users", nil, "initial member usernames")
	return cmd
}

func newGroupModifyCmd() *cobra.Command {
	var (
		gid     int
		members []string
	)
	cmd := &cobra.Command{
		Use:   "modify <group>",
		Short: "Modify a group; --users replaces the member list as a set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			params := &directory.ModifyGroupParams{}
			if cmd.Flags().Changed("gid") {
				params.GID = &gid
			}
			if cmd.Flags().Changed("users") {
				params.Members = &members
			}

			return rt.engine.ModifyGroup(cmd.Context(), args[0], params)
		},
	}
	cmd.Flags().IntVar(&gid, "gid", 0, "numeric group id (immutable; rejected when different)")
	cmd.Flags().StringSliceVar(&members, "users", nil, "desired member usernames")
	return cmd
}

func newGroupRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <group> <new-name>",
		Short: "Rename a group, keeping gid and members",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.engine.RenameGroup(cmd.Context(), args[0], args[1])
		},
	}
}

func newGroupAddUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "addusers <group> <username>...",
		Short: "Add users to a group's member list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.engine.AddMembers(cmd.Context(), args[0], args[1:])
		},
	}
}

func newGroupDelUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delusers <group> <username>...",
		Short: "Remove users from a group's member list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.engine.RemoveMembers(cmd.Context(), args[0], args[1:], true)
		},
	}
}

func newGroupDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <group>",
		Short: "Delete a group (refused while it has members)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.engine.DeleteGroup(cmd.Context(), args[0])
		},
	}
}
