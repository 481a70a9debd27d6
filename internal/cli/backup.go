package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func (a *app) newBackupCmd() *cobra.Command {
	var (
		dir       string
		retention int
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot of the notes database",
		Long: `Backup copies the notes database to notes.db_<epoch-millis> in the backup
directory and removes the oldest snapshots beyond the retention count.

The directory comes from --dir or backup_directory in config.json. When
neither is set the backup is skipped with a warning.

Example:
  cidian backup
  cidian backup --dir /mnt/usb/cidian --retention 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.BackupDirectory
			}
			if !cmd.Flags().Changed("retention") {
				retention = a.cfg.Retention()
			}
			if dir == "" {
				a.logger.Warn("backup skipped: no backup directory configured")
				if !a.flags.jsonMode {
					fmt.Fprintln(cmd.OutOrStdout(), "No backup directory configured; set backup_directory or pass --dir")
				}
				return nil
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			path, err := store.Snapshots().Snapshot(cmd.Context(), dir, retention)
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			a.logger.Debug("backup complete", slog.String("path", path))

			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]string{"path": path})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Snapshot written:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (default: backup_directory from config)")
	cmd.Flags().IntVar(&retention, "retention", 0, "snapshots to keep (default: backup_retention from config)")
	return cmd
}
