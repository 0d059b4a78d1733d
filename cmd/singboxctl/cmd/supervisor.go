package cmd

import (
	"github.com/spf13/cobra"
)

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Control the supervised sing-box process",
}

var supervisorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start sing-box if it is not already running",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return a.supervisor.Start(ctx)
	},
}

var supervisorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sing-box process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return a.supervisor.Stop(ctx)
	},
}

var supervisorReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Validate the current configuration and reload sing-box (SIGHUP)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		result, err := a.supervisor.ReloadWithResult(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var supervisorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether sing-box is running, its uptime, and restart history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return printJSON(cmd, a.supervisor.GetStatus(ctx))
	},
}

var supervisorResetStatsCmd = &cobra.Command{
	Use:   "reset-restart-stats",
	Short: "Clear the recorded restart count and crash-loop window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		return a.supervisor.ResetRestartStats()
	},
}

func init() {
	supervisorCmd.AddCommand(
		supervisorStartCmd,
		supervisorStopCmd,
		supervisorReloadCmd,
		supervisorStatusCmd,
		supervisorResetStatsCmd,
	)
}
