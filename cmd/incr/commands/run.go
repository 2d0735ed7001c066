package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/incr/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [targets...]",
		Short: "Run specified tasks, reusing unchanged results",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			force, _ := cmd.Flags().GetBool("force")
			jobs, _ := cmd.Flags().GetInt("jobs")
			metricsFile, _ := cmd.Flags().GetString("metrics-file")
			return c.app.Run(cmd.Context(), args, app.RunOptions{
				ConfigPath:  configFlag(cmd),
				Force:       force,
				Parallelism: jobs,
				MetricsFile: metricsFile,
			})
		},
	}
	cmd.Flags().BoolP("force", "f", false, "Execute every task without consulting the previous run")
	cmd.Flags().IntP("jobs", "j", 0, "Maximum number of concurrent tasks (default: number of CPUs)")
	cmd.Flags().String("metrics-file", "", "Write run metrics in Prometheus text format to this file")
	return cmd
}

func (c *CLI) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [targets...]",
		Short: "Show which tasks a run would execute",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, _ := cmd.Flags().GetInt("jobs")
			_, err := c.app.Status(cmd.Context(), args, app.RunOptions{
				ConfigPath:  configFlag(cmd),
				Parallelism: jobs,
			})
			return err
		},
	}
	cmd.Flags().IntP("jobs", "j", 0, "Maximum number of concurrent validations (default: number of CPUs)")
	return cmd
}
