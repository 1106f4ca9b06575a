package cmd

import (
	"github.com/spf13/cobra"
)

// configFile is the path given by the persistent --config flag.
var configFile string

var rootCmd = &cobra.Command{
	Use:   "arisa",
	Short: "Arisa moderates tickets on a Jira issue tracker",
	Long: `Arisa is a moderation bot for a Jira issue tracker. It polls recently updated
tickets and runs a fixed set of rule modules against each of them: deleting
blacklisted attachments, resolving pirated or empty reports, detecting duplicate
crashes, reverting unauthorized confirmation changes and hiding leaked credentials
or email addresses.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add persistent flags that will be available to all commands
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file (environment variables are always read)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
}
