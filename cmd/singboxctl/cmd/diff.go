package cmd

import (
	"github.com/spf13/cobra"

	"github.com/singbox-orbit/node-agent/internal/diffengine"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare configuration documents, and export or import the active one",
}

var diffAgainstCmd = &cobra.Command{
	Use:   "against <old.json> <new.json>",
	Short: "Print the field-level changes between two documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldDoc, err := readDocument(args[0])
		if err != nil {
			return err
		}
		newDoc, err := readDocument(args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, diffengine.Diff(oldDoc, newDoc))
	},
}

var diffExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the active configuration with version metadata attached",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		result, err := a.diff.Export(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var diffImportReason string

var diffImportCmd = &cobra.Command{
	Use:   "import <export.json>",
	Short: "Import a previously exported configuration document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payloadDoc, err := readDocument(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		payload := diffengine.ImportPayload{Config: payloadDoc}
		result, err := a.diff.Import(ctx, payload, diffengine.DefaultImportOptions())
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func init() {
	diffCmd.AddCommand(diffAgainstCmd, diffExportCmd, diffImportCmd)
}
