package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/BudgetKeeper/internal/cloudsync"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/dropbox"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/s3"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/webdav"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the configured cloud provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				r := a.cloudSync.Sync(cmd.Context())
				if err := r.Error(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sync complete")
				return nil
			})
		},
	}
}

// prompted are the keys asked for interactively per mode, in order.
var prompted = map[cloudsync.SyncMode][]string{
	cloudsync.ModeWebDav: {webdav.KeyServer, webdav.KeyUsername, webdav.KeyPassword},
	cloudsync.ModeS3:     {s3.KeyBucket, s3.KeyAccessKey, s3.KeySecretKey},
}

// NewEnableCommand creates the enable command.
func NewEnableCommand(root *RootOptions) *cobra.Command {
	var (
		input       map[string]string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "enable <dropbox|webdav|s3>",
		Short: "Connect a cloud provider and turn sync on",
		Long: `Connect a cloud provider and turn sync on.

Credentials are passed with --set key=value. Missing required values are
asked for interactively unless --interactive=false. For Dropbox either
pass access_token, or app_key and app_secret and paste the authorization
code shown by the printed URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := cloudsync.ParseMode(args[0])
			if err != nil {
				return err
			}
			if input == nil {
				input = map[string]string{}
			}
			return withApp(cmd.Context(), root, func(a *app) error {
				if interactive {
					p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
					if mode == cloudsync.ModeDropbox {
						promptDropbox(p, a.cloudSync, input)
					} else {
						p.Fill(input, prompted[mode]...)
					}
				}
				r := a.cloudSync.EnableCloudSync(cmd.Context(), mode, input)
				if err := r.Error(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cloud sync enabled: %s\n", mode)
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVar(&input, "set", nil, "provider credential key=value (repeatable)")
	cmd.Flags().BoolVar(&interactive, "interactive", true, "prompt for missing credentials")
	return cmd
}

func promptDropbox(p *prompter, cs *cloudsync.CloudSync, input map[string]string) {
	if input[dropbox.KeyAccessToken] != "" || input[cloudsync.InputAuthorizationCode] != "" {
		return
	}
	p.Fill(input, dropbox.KeyAppKey, dropbox.KeyAppSecret)
	if input[dropbox.KeyAppKey] == "" {
		return
	}
	fmt.Fprintf(p.out, "Open this URL, allow access and paste the code:\n%s\n", cs.AuthorizationURL(input[dropbox.KeyAppKey]))
	p.Fill(input, cloudsync.InputAuthorizationCode)
}

// NewDisableCommand creates the disable command.
func NewDisableCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn cloud sync off, keeping stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				if err := a.cloudSync.DisableCloudSync(cmd.Context()).Error(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cloud sync disabled")
				return nil
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(root *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync mode and last successful sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				st, err := a.cloudSync.Status(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}
				fmt.Fprintf(out, "Mode: %s\n", st.Mode)
				if st.LastSync == nil {
					fmt.Fprintln(out, "Last sync: never")
				} else {
					fmt.Fprintf(out, "Last sync: %s\n", st.LastSync.Local().Format(time.RFC1123))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
