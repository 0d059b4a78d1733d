package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/singbox-orbit/node-agent/internal/configstore"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and mutate the active sing-box configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the active configuration document",
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
		return printJSON(cmd, doc)
	},
}

var configSetReason string

var configSetCmd = &cobra.Command{
	Use:   "set <file.json>",
	Short: "Replace the active configuration wholesale",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		result, err := a.configs.Set(ctx, doc, configSetReason)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var configPatchReason string

var configPatchCmd = &cobra.Command{
	Use:   "patch <patch.json>",
	Short: "Merge a partial document into the active configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := readDocument(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		result, err := a.configs.Patch(ctx, patch, configPatchReason)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var (
	importReason       string
	importSkipValidate bool
	importNoBackup     bool
)

var configImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import a full configuration document, validating it first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readDocument(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		opts := configstore.ImportOptions{
			Validate:     !importSkipValidate,
			CreateBackup: !importNoBackup,
		}

		result, err := a.configs.Import(ctx, doc, importReason, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var configInvalidateCacheCmd = &cobra.Command{
	Use:   "invalidate-cache",
	Short: "Force the next read to reload the configuration from disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		a.configs.InvalidateCache()
		return nil
	},
}

func init() {
	configSetCmd.Flags().StringVar(&configSetReason, "reason", "", "reason recorded with the backup this change triggers")
	configPatchCmd.Flags().StringVar(&configPatchReason, "reason", "", "reason recorded with the backup this change triggers")

	configImportCmd.Flags().StringVar(&importReason, "reason", "imported", "reason recorded with the backup this import triggers")
	configImportCmd.Flags().BoolVar(&importSkipValidate, "skip-validate", false, "skip sing-box validation before import")
	configImportCmd.Flags().BoolVar(&importNoBackup, "no-backup", false, "do not take a backup before importing")

	configCmd.AddCommand(configGetCmd, configSetCmd, configPatchCmd, configImportCmd, configInvalidateCacheCmd)
}

func readDocument(path string) (configstore.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc configstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
