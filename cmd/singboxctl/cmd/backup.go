package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/internal/configstore"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "List, create, and restore sing-box configuration backups",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups taken so far, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		backups, err := a.backups.List()
		if err != nil {
			return err
		}
		return printJSON(cmd, backups)
	},
}

var backupCreateReason string

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the active configuration as a new backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		doc, err := a.configs.Get(ctx)
		if err != nil {
			return err
		}
		content, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal active config: %w", err)
		}

		b, err := a.backups.Create(ctx, content, backupCreateReason)
		if err != nil {
			return err
		}
		return printJSON(cmd, b)
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <backup-id>",
	Short: "Replace the active configuration with a prior backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		content, ok := a.backups.GetContent(args[0])
		if !ok {
			return apperr.Newf(apperr.NotFound, "backup %s not found", args[0])
		}

		var doc configstore.Document
		if err := json.Unmarshal(content, &doc); err != nil {
			return fmt.Errorf("decode backup %s: %w", args[0], err)
		}

		result, err := a.configs.Set(ctx, doc, fmt.Sprintf("restored from backup %s", args[0]))
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <backup-id>",
	Short: "Remove a backup permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		if !a.backups.Delete(ctx, args[0]) {
			return apperr.Newf(apperr.NotFound, "backup %s not found", args[0])
		}
		return nil
	},
}

func init() {
	backupCreateCmd.Flags().StringVar(&backupCreateReason, "reason", "manual", "reason recorded with this backup")
	backupCmd.AddCommand(backupListCmd, backupCreateCmd, backupRestoreCmd, backupDeleteCmd)
}
