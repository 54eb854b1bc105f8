// Package cmd implements the posixadm command tree.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/isometry/posixadm/internal/config"
	"github.com/isometry/posixadm/internal/directory"
	"github.com/isometry/posixadm/internal/ldap"
)

var (
	cfgFile  string
	jsonOut  bool
	verbose  bool
	host     string
	bindDN   string
	bindPass string
	baseDN   string
)

var rootCmd = &cobra.Command{
	Use:           "posixadm",
	Short:         "Manage POSIX users and groups in an LDAP directory",
	Long: `posixadm maintains posixAccount and posixGroup records in an LDAP
directory: users, groups, numeric id allocation, primary-group linkage and
explicit membership, plus JSON backup and restore of the whole tree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("POSIXADM_CONFIG"),
		"configuration file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "render output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "LDAP URL(s), overriding the configuration file")
	rootCmd.PersistentFlags().StringVar(&bindDN, "bind-dn", "", "bind DN, overriding the configuration file")
	rootCmd.PersistentFlags().StringVar(&bindPass, "bind-pass", "", "bind password, overriding the configuration file")
	rootCmd.PersistentFlags().StringVar(&baseDN, "base-dn", "", "directory base DN, overriding the configuration file")
}

// Execute runs the command tree and maps failures onto a tagged stderr
// line and a non-zero exit.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[%s] %v\n", errorKind(err), err)
		os.Exit(1)
	}
}

// runtime bundles the wired-up collaborators one command invocation needs.
type runtime struct {
	engine *directory.Engine
	client ldap.Client
	log    *logrus.Logger
}

func (r *runtime) Close() {
	_ = r.client.Close()
}

func setup() (*runtime, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if host != "" {
		cfg.LDAP.URI = host
	}
	if bindDN != "" {
		cfg.LDAP.BindDN = bindDN
	}
	if bindPass != "" {
		cfg.LDAP.BindPassword = bindPass
	}
	if baseDN != "" {
		cfg.LDAP.BaseDN = baseDN
	}

	client, err := ldap.NewClient(cfg.ConnectionConfig(), log)
	if err != nil {
		return nil, err
	}

	repo := directory.NewRepository(client, directory.NewSchema(cfg.LDAP.BaseDN), log)
	engine := directory.NewEngine(repo, cfg.Settings(), log,
		directory.WithHomeDirs(cfg.Users.CreateHome))

	return &runtime{engine: engine, client: client, log: log}, nil
}

func errorKind(err error) string {
	var (
		notFound  *directory.NotFoundError
		exists    *directory.AlreadyExistsError
		conflict  *directory.ConflictError
		invalid   *directory.ValidationError
		exhausted *directory.RangeExhaustedError
		unsup     *directory.UnsupportedError
	)
	switch {
	case errors.As(err, &notFound):
		return "NotFound"
	case errors.As(err, &exists):
		return "AlreadyExists"
	case errors.As(err, &conflict):
		return "Conflict"
	case errors.As(err, &invalid):
		return "ValidationError"
	case errors.As(err, &exhausted):
		return "RangeExhausted"
	case errors.As(err, &unsup):
		return "Unsupported"
	default:
		return "Error"
	}
}

// promptPassword reads a secret from the terminal without echo.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}
