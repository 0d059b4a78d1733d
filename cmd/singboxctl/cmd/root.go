// Package cmd is the admin CLI for the per-node sing-box control-plane
// agent: a cobra command tree wrapping the Config Store, Process
// Supervisor, Backup & Diff Engine, and Outbound Prober for operators and
// automation scripts that would otherwise have to script the HTTP API.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/singbox-orbit/node-agent/internal/apperr"
	"github.com/singbox-orbit/node-agent/pkg/logger"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "singboxctl",
	Short: "Control a node-agent-managed sing-box instance",
	Long: `singboxctl administers the sing-box control-plane agent running on
this node: the active configuration document, the supervised sing-box
process, its backup history, and its outbound connectivity probes.

Examples:
  # Show the active configuration
  singboxctl config get

  # Apply a patch and reload a running sing-box if validation passes
  singboxctl config patch patch.json --reason "rotate outbound"

  # Check whether sing-box is running and how long it has been up
  singboxctl supervisor status

  # List the backups taken so far
  singboxctl backup list

Exit Codes:
  0: Success
  2: Not found
  3: Bad request / invalid input
  4: Configuration failed validation
  5: Underlying sing-box process error
  1: Any other internal error
`,
}

// Execute runs the root command. Every invocation gets an operation id
// attached to its context, the same correlation id the teacher's HTTP
// middleware stamps onto each request, here stamped once per CLI call so
// the components it drives (config store, supervisor, ...) share one id
// across their log lines.
func Execute() error {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to singboxctl config file (YAML)")
	rootCmd.AddCommand(versionCmd, configCmd, supervisorCmd, backupCmd, proberCmd, validateCmd, diffCmd)

	ctx := logger.WithOperationID(context.Background(), logger.GenerateOperationID())
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion records build metadata baked in at link time.
func SetVersion(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("singboxctl version %s\n", version)
		cmd.Printf("Build time: %s\n", buildTime)
		cmd.Printf("Git commit: %s\n", gitCommit)
		return nil
	},
}

// ExitCodeFor maps an apperr.Code to the process exit code the Long help
// text above advertises.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch apperr.CodeOf(err) {
	case apperr.NotFound:
		return 2
	case apperr.BadRequest, apperr.InvalidType:
		return 3
	case apperr.ConfigValidationError, apperr.SingboxValidationError:
		return 4
	case apperr.ProcessError:
		return 5
	default:
		return 1
	}
}
