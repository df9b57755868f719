package cli

import (
	"github.com/spf13/cobra"

	"instance-provision/src/config"
	"instance-provision/src/safety"
)

// addGlobalFlags adds the persistent flags and binds the ones backed by
// configuration keys.
func addGlobalFlags(cmd *cobra.Command, a *app) {
	pf := cmd.PersistentFlags()
	pf.String("config", "", "Config file (default: ./instance-provision.yaml or ~/.config/instance-provision/instance-provision.yaml)")
	pf.String("network", "", "Network root directory (absolute path or dir:/path)")
	pf.String("log-level", "", "Log level: trace|debug|info|warn|error")
	pf.Bool("dry-run", false, "Show planned actions without making changes")
	pf.BoolP("yes", "y", false, "Assume 'yes' to prompts and run non-interactively")

	_ = a.v.BindPFlag(config.KeyNetworkRoot, pf.Lookup("network"))
	_ = a.v.BindPFlag(config.KeyLogLevel, pf.Lookup("log-level"))
}

// getSafetyOptions reads the global flags into a safety.Options struct.
func getSafetyOptions(cmd *cobra.Command) safety.Options {
	dry, _ := cmd.Root().PersistentFlags().GetBool("dry-run")
	yes, _ := cmd.Root().PersistentFlags().GetBool("yes")
	return safety.Options{DryRun: dry, Yes: yes}
}
