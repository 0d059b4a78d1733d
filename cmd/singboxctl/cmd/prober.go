package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var proberCmd = &cobra.Command{
	Use:   "prober",
	Short: "Probe outbound connectivity through a configured outbound tag",
}

var (
	proberURL     string
	proberTimeout time.Duration
	proberSamples int
)

var proberTestCmd = &cobra.Command{
	Use:   "test <outbound-tag>",
	Short: "Issue a single connectivity probe through an outbound tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		result, err := a.prober.Test(ctx, args[0], proberURL, proberTimeout)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var proberLatencyCmd = &cobra.Command{
	Use:   "latency <outbound-tag>",
	Short: "Sample round-trip latency through an outbound tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		result, err := a.prober.Latency(ctx, args[0], proberURL, proberTimeout, proberSamples)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func init() {
	for _, c := range []*cobra.Command{proberTestCmd, proberLatencyCmd} {
		c.Flags().StringVar(&proberURL, "url", "", "URL to probe (defaults to the prober's built-in target)")
		c.Flags().DurationVar(&proberTimeout, "timeout", 5*time.Second, "per-attempt timeout")
	}
	proberLatencyCmd.Flags().IntVar(&proberSamples, "samples", 0, "number of samples to take (defaults to the prober's built-in sample count)")

	proberCmd.AddCommand(proberTestCmd, proberLatencyCmd)
}
