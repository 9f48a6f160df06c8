package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/portmark/internal/task"
)

type planTask struct {
	Kind      task.Kind  `json:"kind"`
	Direction string     `json:"direction,omitempty"`
	Pose      *task.Pose `json:"pose,omitempty"`
	Task      string     `json:"task"`
}

func newPlanCmd(g *globals) *cobra.Command {
	var (
		jsonOut bool
		carton  string
		side    string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the task queue for the configured job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if carton != "" {
				cfg.Job.Carton = carton
			}
			if side != "" {
				cfg.Job.Side = side
			}
			class, tasks, err := cfg.BuildPlan()
			if err != nil {
				return err
			}

			out := make([]planTask, 0, len(tasks))
			for _, t := range tasks {
				pt := planTask{Kind: t.Kind(), Task: t.String()}
				if c, ok := t.(task.Control); ok {
					pose := c.Pose
					pt.Direction = c.Direction.String()
					pt.Pose = &pose
				}
				out = append(out, pt)
			}

			if jsonOut {
				enc := json.NewEncoder(g.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"carton": class.Name,
					"side":   cfg.Job.Side,
					"tasks":  out,
				})
			}

			fmt.Fprintf(g.stdout, "TASK QUEUE %s side %s (%d layers, %s)\n", class.Name, cfg.Job.Side, class.Layers, class.Family)
			tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tKIND\tDIRECTION\tPOSE")
			for i, pt := range out {
				pose := "-"
				if pt.Pose != nil {
					pose = fmt.Sprintf("%.4f", [6]float64(*pt.Pose))
				}
				dir := pt.Direction
				if dir == "" {
					dir = pt.Task
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, pt.Kind, dir, pose)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the plan as JSON")
	cmd.Flags().StringVar(&carton, "carton", "", "Override job.carton")
	cmd.Flags().StringVar(&side, "side", "", "Override job.side")
	return cmd
}
