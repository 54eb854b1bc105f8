package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/isometry/posixadm/internal/directory"
	"github.com/isometry/posixadm/internal/render"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user records",
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(
		newUserListCmd(),
		newUserShowCmd(),
		newUserAddCmd(),
		newUserModifyCmd(),
		newUserDeleteCmd(),
	)
}

func newUserListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			users, err := rt.engine.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return render.JSON(os.Stdout, users)
			}
			return render.UsersTable(os.Stdout, users)
		},
	}
}

func newUserShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <username>",
		Short: "Show one user, memberships included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			user, err := rt.engine.ShowUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return render.JSON(os.Stdout, user)
			}
			return render.UserDetail(os.Stdout, user)
		},
	}
}

// userFlags collects the optional record fields shared by add and modify.
type userFlags struct {
	password    string
	askPassword bool
	cn          string
	sn          string
	givenName   string
	mail        string
	phone       string
	shell       string
	home        string
	uid         int
	gid         int
	groupName   string
	groups      []string
	expire      int64
}

func (f *userFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.password, "password", "p", "", "password (plaintext or pre-hashed {SSHA} value)")
	flags.BoolVar(&f.askPassword, "password-prompt", false, "prompt for the password on the terminal")
	flags.StringVar(&f.cn, "cn", "", "common name (defaults to the username)")
	flags.StringVar(&f.sn, "sn", "", "surname (defaults to the username)")
	flags.StringVar(&f.givenName, "given-name", "", "given name")
	flags.StringVar(&f.mail, "mail", "", "mail address")
	flags.StringVar(&f.phone, "phone", "", "telephone number")
	flags.StringVar(&f.shell, "shell", "", "login shell")
	flags.StringVar(&f.home, "home", "", "home directory")
	flags.IntVar(&f.uid, "uid", 0, "numeric user id (allocated when omitted)")
	flags.IntVar(&f.gid, "gid", 0, "numeric id of the primary group")
	flags.StringVarP(&f.groupName, "group", "g", "", "name of the primary group")
	flags.StringSliceVar(&f.groups, "groups", nil, "secondary groups the user is a member of")
	flags.Int64Var(&f.expire, "expire", directory.ExpireNever, "days until the account expires (-1 for never)")
}

func (f *userFlags) resolvePassword() (string, error) {
	if !f.askPassword {
		return f.password, nil
	}
	return promptPassword("Password: ")
}

func newUserAddCmd() *cobra.Command {
	var flags userFlags
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			params := &directory.AddUserParams{
				Username:   args[0],
				CommonName: flags.cn,
				Surname:    flags.sn,
				GivenName:  flags.givenName,
				Mail:       flags.mail,
				Phone:      flags.phone,
				Shell:      flags.shell,
				HomeDir:    flags.home,
				GroupName:  flags.groupName,
				Groups:     flags.groups,
			}
			if cmd.Flags().Changed("uid") {
				params.UID = &flags.uid
			}
			if cmd.Flags().Changed("gid") {
				params.GID = &flags.gid
			}
			if cmd.Flags().Changed("expire") {
				params.Expire = &flags.expire
			}
			if params.Password, err = flags.resolvePassword(); err != nil {
				return err
			}

			user, err := rt.engine.AddUser(cmd.Context(), params)
			if err != nil {
				return err
			}
			if jsonOut {
				return render.JSON(os.Stdout, user)
			}
			fmt.Printf("user %s created (uid %d, gid %d)\n", user.Username, user.UID, user.GID)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newUserModifyCmd() *cobra.Command {
	var flags userFlags
	cmd := &cobra.Command{
		Use:   "modify <username>",
		Short: "Modify a user; only supplied flags change the record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			params := &directory.ModifyUserParams{}
			set := cmd.Flags().Changed
			if set("cn") {
				params.CommonName = &flags.cn
			}
			if set("sn") {
				params.Surname = &flags.sn
			}
			if set("given-name") {
				params.GivenName = &flags.givenName
			}
			if set("mail") {
				params.Mail = &flags.mail
			}
			if set("phone") {
				params.Phone = &flags.phone
			}
			if set("shell") {
				params.Shell = &flags.shell
			}
			if set("home") {
				params.HomeDir = &flags.home
			}
			if set("uid") {
				params.UID = &flags.uid
			}
			if set("gid") {
				params.GID = &flags.gid
			}
			if set("group") {
				params.GroupName = &flags.groupName
			}
			if set("groups") {
				params.Groups = &flags.groups
			}
			if set("expire") {
				params.Expire = &flags.expire
			}
			if set("password") || flags.askPassword {
				password, err := flags.resolvePassword()
				if err != nil {
					return err
				}
				params.Password = &password
			}

			return rt.engine.ModifyUser(cmd.Context(), args[0], params)
		},
	}
	flags.register(cmd)
	return cmd
}

func newUserDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user (and its empty default group)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.engine.DeleteUser(cmd.Context(), args[0])
		},
	}
}
