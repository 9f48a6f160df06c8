package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/portmark/internal/doctor"
	"github.com/mattjoyce/portmark/internal/storage"
)

func newCheckCmd(g *globals) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, recipes and state database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			result := doctor.New(cfg).Validate()

			if _, err := os.Stat(cfg.State.Path); err == nil {
				db, err := storage.OpenSQLite(cmd.Context(), cfg.State.Path)
				if err != nil {
					result.Errors = append(result.Errors, doctor.Issue{Category: "state", Field: "state.path", Message: err.Error()})
					result.Valid = false
				} else {
					_ = db.Close()
					result.Facts["state"] = cfg.State.Path
				}
			}

			if jsonOut {
				out, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(g.stdout, out)
			} else {
				fmt.Fprint(g.stdout, doctor.FormatHuman(result))
			}
			if !result.Valid {
				return errors.New("configuration check failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the report as JSON")
	return cmd
}
