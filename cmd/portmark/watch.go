package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/portmark/internal/tui"
)

func newWatchCmd(g *globals) *cobra.Command {
	var (
		url    string
		apiKey string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a running dispatcher over its API and answer recovery prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" || apiKey == "" {
				cfg, err := g.loadConfig()
				if err != nil {
					return fmt.Errorf("watch needs --url or a config with api.listen: %w", err)
				}
				if url == "" {
					url = "http://" + cfg.API.Listen
				}
				if apiKey == "" {
					apiKey = cfg.API.Auth.APIKey
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			remote := tui.Remote{URL: url, APIKey: apiKey}
			m := tui.New(ctx, remote, remote, tui.Options{Title: "PORTMARK " + url, Reconnect: true})
			return tui.Run(ctx, m)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Base URL of the portmark API (default from api.listen)")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("PORTMARK_API_KEY"), "Bearer token (env PORTMARK_API_KEY)")
	return cmd
}
