package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isometry/posixadm/internal/directory"
	"github.com/isometry/posixadm/internal/render"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export, import or erase the whole directory tree",
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(
		newBackupExportCmd(),
		newBackupImportCmd(),
		newBackupEraseCmd(),
	)
}

func newBackupExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every user and group as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.engine.Export(cmd.Context())
			if err != nil {
				return err
			}

			out := os.Stdout
			if output != "" && output != "-" {
				f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
				if err != nil {
					return fmt.Errorf("cannot write %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}
			return render.JSON(out, snap)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newBackupImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Restore a JSON dump; existing entities are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", args[0], err)
			}
			snap := &directory.Snapshot{}
			if err := json.Unmarshal(data, snap); err != nil {
				return fmt.Errorf("cannot parse %s: %w", args[0], err)
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.engine.Import(cmd.Context(), snap)
			if err != nil {
				return err
			}

			fmt.Printf("imported %d user(s), %d group(s); %d skipped\n",
				report.UsersAdded, report.GroupsAdded, report.Skipped)
			for _, ie := range report.Errors {
				fmt.Fprintf(os.Stderr, "[ImportError] %v\n", ie)
			}
			if report.Failed() {
				return fmt.Errorf("%d entit(ies) failed to import", len(report.Errors))
			}
			return nil
		},
	}
}

func newBackupEraseCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Delete every user and group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force && !confirm("This deletes EVERY user and group. Type 'yes' to continue: ") {
				return fmt.Errorf("aborted")
			}

			rt, err := setup()
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.engine.Erase(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}
