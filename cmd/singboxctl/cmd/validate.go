package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var validateAdvisory bool

var validateCmd = &cobra.Command{
	Use:   "validate <file.json>",
	Short: "Run sing-box's own config check against a document, without applying it",
	Long: `validate runs the same "sing-box check" validation the Config Store
applies before every write, against a file on disk. It never touches the
active configuration or the running sing-box process.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		var result interface{}
		if validateAdvisory {
			result, err = a.validator.ValidateAdvisory(ctx, content)
		} else {
			result, err = a.validator.Validate(ctx, content)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateAdvisory, "advisory", false, "validate through the advisory path, which consults and populates the result cache")
}
