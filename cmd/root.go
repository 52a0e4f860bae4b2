package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvr",
	Short: "Distance-vector routing node",
	Long: `dvr runs one node of a small distance-vector routing network.
Each node reads a shared topology file, exchanges its routing table with its neighbours over UDP and
can be driven from the console (update, disable, step, crash, packets, display, dump).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "node",
		Title: "Node Commands",
	})
	rootCmd.PersistentFlags().StringVarP(&topologyPath, "topology", "t", "", "path to the topology file")
}
