package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/anggasct/lifeline"
	"github.com/anggasct/lifeline/pkg/signal"
	"github.com/anggasct/lifeline/visualization"
)

var (
	graphFormat    string
	graphOut       string
	graphConflicts bool
	graphRankDir   string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the system-mode graph or the conflict matrix as Graphviz",
	RunE: func(cmd *cobra.Command, args []string) error {
		var content string
		if graphConflicts {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			m := signal.FromConfig(cfg, time.Now())
			content = visualization.ConflictGraph(m.Directions(), m.Conflicts)
		} else {
			opts := visualization.DefaultDOTOptions()
			opts.RankDirection = graphRankDir
			gen := visualization.NewDOTGenerator(lifeline.Transitions(), opts)

			var err error
			switch graphFormat {
			case "dot":
				content, err = gen.Generate()
			case "svg":
				content, err = gen.GenerateSVG()
			default:
				err = fmt.Errorf("unknown format %q (want dot or svg)", graphFormat)
			}
			if err != nil {
				return err
			}
		}

		if graphOut == "" {
			_, err := fmt.Fprint(cmd.OutOrStdout(), content)
			return err
		}
		return os.WriteFile(graphOut, []byte(content), 0644)
	},
}

func init() {
	graphCmd.Flags().StringVar(&graphFormat, "format", "dot", "output format: dot or svg (svg needs Graphviz)")
	graphCmd.Flags().StringVarP(&graphOut, "out", "o", "", "write to file instead of stdout")
	graphCmd.Flags().BoolVar(&graphConflicts, "conflicts", false, "render the conflict matrix of the configured directions")
	graphCmd.Flags().StringVar(&graphRankDir, "rankdir", "TB", "Graphviz rank direction")
}
