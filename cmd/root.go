package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kvstore",
	Short: "Eventually-consistent, self-healing key-value store",
	Long: `A distributed key-value store that replicates writes between peers by
full-sync and flooding, with per-key TTLs and an optional spanning-tree
flood optimization.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags can be added here
}
