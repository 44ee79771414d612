package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsync"
	"github.com/hupe1980/vecsync/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, list, restore and prune remote backups",
}

var backupMode string

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a backup (full or sparse)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *vecsync.Engine) error {
			mode := e.BackupManager().Mode()
			if backupMode != "" {
				m, err := backup.ParseMode(backupMode)
				if err != nil {
					return err
				}
				mode = m
			}
			info, err := e.Backup(cmd.Context(), mode)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), info)
			}
			if info.ID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Store is empty, nothing uploaded")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s (%s)\n", info.Name, info.ID)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *vecsync.Engine) error {
			list, err := e.ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMODE\tCREATED\tSIZE\tID")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", b.Name, b.Mode, b.CreatedAt.Format(time.RFC3339), b.Size, b.ID)
			}
			return tw.Flush()
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ID|NAME",
	Short: "Replace the local store with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *vecsync.Engine) error {
			info, err := e.Restore(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", info.Name)
			return nil
		})
	},
}

var pruneKeep int

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *vecsync.Engine) error {
			n, err := e.PruneBackups(cmd.Context(), pruneKeep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d backups\n", n)
			return nil
		})
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupMode, "mode", "", "full or sparse (default: backup.mode from config)")
	backupPruneCmd.Flags().IntVar(&pruneKeep, "keep", -1, "backups to keep (default: backup.keep from config)")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupPruneCmd)
}
