package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/portmark/internal/runlog"
	"github.com/mattjoyce/portmark/internal/storage"
)

func newRunsCmd(g *globals) *cobra.Command {
	var (
		jsonOut bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			db, err := storage.OpenSQLite(cmd.Context(), cfg.State.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			store := runlog.New(db)

			var runs []runlog.Run
			if len(args) == 1 {
				r, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				runs = []runlog.Run{*r}
			} else {
				runs, err = store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}

			if jsonOut {
				enc := json.NewEncoder(g.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tCARTON\tSIDE\tSTATUS\tTASKS\tCYCLES\tDURATION\tERROR")
			for _, r := range runs {
				errText := ""
				if r.LastError != nil {
					errText = *r.LastError
				}
				dur := "-"
				if r.CompletedAt != nil {
					dur = r.Duration().Round(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Carton, r.Side, r.Status, r.Tasks, r.Cycles, dur, errText)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output runs as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	return cmd
}
