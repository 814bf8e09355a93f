package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/BudgetKeeper/internal/dataset/sqldb"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/local"
	"github.com/atinyakov/BudgetKeeper/internal/result"
	"github.com/atinyakov/BudgetKeeper/internal/staging"
	"github.com/atinyakov/BudgetKeeper/internal/syncer"
	"github.com/atinyakov/BudgetKeeper/internal/transport"
)

// snapshotFile splits a local snapshot path into its directory provider,
// the snapshot name and whether it is gzipped.
func snapshotFile(path string) (*local.FS, string, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", false, err
	}
	fsys, err := local.New(filepath.Dir(abs))
	if err != nil {
		return nil, "", false, err
	}
	name := filepath.Base(abs)
	if strings.HasSuffix(name, transport.CompressedSuffix) {
		return fsys, strings.TrimSuffix(name, transport.CompressedSuffix), true, nil
	}
	return fsys, name, false, nil
}

// locked runs fn holding the sync lock, so transfers never overlap a sync.
func (a *app) locked(ctx context.Context, fn func() result.Result) error {
	if err := a.lock.Lock(ctx); err != nil {
		return fmt.Errorf("wait for running sync: %w", err)
	}
	defer a.lock.Unlock()
	return fn().Error()
}

func (a *app) stage() (*staging.Area, func(), error) {
	area, err := staging.Open(a.opts.StagingDir())
	if err != nil {
		return nil, nil, err
	}
	return area, func() {
		if err := area.Discard(); err != nil {
			a.log.Warn("discard staging database", zap.String("path", area.Path()), zap.Error(err))
		}
	}, nil
}

// NewImportCommand creates the import command.
func NewImportCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot>",
		Short: "Merge a snapshot file into the app database",
		Long: `Merge a snapshot file into the app database.

Records newer in the snapshot replace local ones, records missing locally
are added, and nothing is deleted. A .gz snapshot is decompressed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, name, gz, err := snapshotFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), root, func(a *app) error {
				area, discard, err := a.stage()
				if err != nil {
					return err
				}
				defer discard()

				err = a.locked(cmd.Context(), func() result.Result {
					return a.engine.FileBasedImport(cmd.Context(), transport.ImportRequest{
						ImportFS:    src,
						ImportFile:  name,
						Compression: gz,
						TempFS:      area.FS,
						TempFile:    area.File,
						TempDataset: area.Dataset,
						AppDataset:  a.dataset,
					})
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", args[0])
				return nil
			})
		},
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <snapshot>",
		Short: "Write the app database to a snapshot file",
		Long: `Write the app database to a snapshot file.

An existing snapshot is merged with, not replaced. A name ending in .gz
is written gzipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, name, gz, err := snapshotFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), root, func(a *app) error {
				area, discard, err := a.stage()
				if err != nil {
					return err
				}
				defer discard()

				err = a.locked(cmd.Context(), func() result.Result {
					// Seed the staging database with the existing snapshot so
					// records only it holds survive the export.
					exists, err := dst.FileExists(cmd.Context(), snapshotName(name, gz))
					if err != nil {
						return result.FromError("export", err)
					}
					if exists {
						r := a.engine.FileBasedImport(cmd.Context(), transport.ImportRequest{
							ImportFS:    dst,
							ImportFile:  name,
							Compression: gz,
							TempFS:      area.FS,
							TempFile:    area.File,
							TempDataset: area.Dataset,
							AppDataset:  area.Dataset,
						})
						if !r.Success {
							return r
						}
					}
					return a.engine.FileBasedExport(cmd.Context(), transport.ExportRequest{
						AppDataset:  a.dataset,
						TempDataset: area.Dataset,
						TempFS:      area.FS,
						TempFile:    area.File,
						Compression: gz,
						ExportFile:  name,
						ExportFS:    dst,
					})
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %s\n", args[0])
				return nil
			})
		},
	}
}

func snapshotName(name string, gz bool) string {
	if gz {
		return transport.CompressedName(name)
	}
	return name
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(root *RootOptions) *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "merge <database>",
		Short: "Merge another BudgetKeeper SQLite database with the app database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), root, func(a *app) error {
				other := sqldb.NewSQLite(args[0])
				defer other.Close()

				s := syncer.New(a.lock, a.log, a.metrics)
				var r result.Result
				switch direction {
				case "pull":
					r = s.Pull(cmd.Context(), other, a.dataset)
				case "push":
					r = s.Push(cmd.Context(), other, a.dataset)
				case "both":
					r = s.FullSync(cmd.Context(), other, a.dataset)
				default:
					return fmt.Errorf("invalid direction %q: must be pull, push or both", direction)
				}
				if err := r.Error(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "merged %s (%s)\n", args[0], direction)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "both", "pull (into app), push (into database) or both")
	return cmd
}
