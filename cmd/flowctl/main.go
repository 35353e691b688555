// Command flowctl serves the workflow template editor API and works with
// saved templates from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/meikuraledutech/flow/config"
	"github.com/meikuraledutech/flow/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options holds the flags shared by every subcommand.
type options struct {
	configFile string
	cfg        *config.Config
	log        *zap.Logger
}

func (o *options) addFlags(c *cobra.Command) {
	f := c.PersistentFlags()
	f.StringVarP(&o.configFile, "config", "c", "", "Path of the YAML config file")
	f.String("listen", "", "Address to listen on")
	f.String("database-url", "", "Postgres connection string; in-memory storage when empty")
	f.String("log-level", "", "Log level (debug, info, warn, error)")
	f.Bool("allow-isolated-tasks", false, "Export task nodes that have no edges")
	f.String("admin-base-url", "", "Base URL of the admin API")
	f.String("admin-operator-uid", "", "Operator id sent with admin API requests")
	f.String("admin-owner-groups", "", "Owner group ids attached to submitted templates")
	f.Duration("admin-timeout", 0, "Timeout of admin API requests")
}

// load resolves the configuration and the logger before any subcommand runs.
func (o *options) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	o.cfg, o.log = cfg, log
	return nil
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "flowctl",
		Short:         "Edit, validate and export process/task workflow templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.log != nil {
				_ = o.log.Sync()
			}
		},
	}
	o.addFlags(cmd)

	cmd.AddCommand(
		newServeCmd(o),
		newSchemaCmd(o),
		newExportCmd(o),
		newOrderCmd(o),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flowctl:", err)
		os.Exit(1)
	}
}
