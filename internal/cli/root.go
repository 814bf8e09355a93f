// Package cli implements the budgetkeeper command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/atinyakov/BudgetKeeper/internal/config"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string
	BuildDate string
}

// RootOptions holds the resolved configuration shared by all commands.
type RootOptions struct {
	Build BuildInfo
	Opts  *config.Options
}

// NewRootCommand creates the root command.
func NewRootCommand(build BuildInfo) *cobra.Command {
	root := &RootOptions{Build: build}

	cmd := &cobra.Command{
		Use:   "budgetkeeper",
		Short: "Offline-first budget with cloud sync",
		Long: `BudgetKeeper keeps the budget in a local database and synchronizes it
through a snapshot file stored on Dropbox, a WebDAV server or an S3 bucket.
Merges are last-writer-wins per record and never delete anything.`,
		Version:       versionString(build),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			root.Opts = opts
			return nil
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewSyncCommand(root))
	cmd.AddCommand(NewEnableCommand(root))
	cmd.AddCommand(NewDisableCommand(root))
	cmd.AddCommand(NewStatusCommand(root))
	cmd.AddCommand(NewImportCommand(root))
	cmd.AddCommand(NewExportCommand(root))
	cmd.AddCommand(NewMergeCommand(root))
	cmd.AddCommand(NewServeCommand(root))

	return cmd
}

func versionString(b BuildInfo) string {
	v, d := b.Version, b.BuildDate
	if v == "" {
		v = "N/A"
	}
	if d == "" {
		d = "N/A"
	}
	return v + " (built " + d + ")"
}
