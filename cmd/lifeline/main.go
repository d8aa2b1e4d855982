// Command lifeline runs the emergency-vehicle priority controller against a recorded
// detection feed and renders its mode graph.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anggasct/lifeline/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "lifeline",
	Short:         "Emergency-vehicle priority controller for a signalized intersection",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (.yaml, .yml or .toml); defaults are used when empty")
	rootCmd.AddCommand(runCmd, graphCmd, checkConfigCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
