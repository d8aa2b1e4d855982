package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anggasct/lifeline/pkg/core"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config [file]",
	Short: "Validate a configuration file and print its effective timings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			configPath = args[0]
		}
		cfg, err := loadConfig()
		if err != nil {
			var cerr *core.ConfigurationError
			if errors.As(err, &cerr) {
				for _, issue := range cerr.Issues {
					fmt.Fprintln(cmd.ErrOrStderr(), "  -", issue)
				}
			}
			return err
		}

		out := cmd.OutOrStdout()
		tc := cfg.TrafficControl
		fmt.Fprintf(out, "directions:      %v\n", cfg.Lanes.Directions)
		fmt.Fprintf(out, "conflict groups: %v\n", cfg.Lanes.ConflictGroups)
		fmt.Fprintf(out, "green:           %s (priority %s, cap %s)\n", tc.DefaultGreenDuration, tc.AmbulanceGreenDuration, tc.PriorityExtensionCap)
		fmt.Fprintf(out, "clearance:       yellow %s, all red %s, cooldown %s\n", tc.YellowDuration, tc.AllRedDuration, tc.CooldownDuration)
		fmt.Fprintf(out, "debounce:        %d detections, window %s, gap %s\n", cfg.Debounce.Count, cfg.Debounce.Window, cfg.Debounce.Gap)
		fmt.Fprintf(out, "watchdog:        %s\n", cfg.Watchdog.Timeout)
		fmt.Fprintf(out, "override:        %v\n", tc.ManualOverrideEnabled)
		fmt.Fprintln(out, "ok")
		return nil
	},
}
