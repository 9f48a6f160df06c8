package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/portmark/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// loadConfig loads --config and applies --log-level.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Service.LogLevel = g.logLevel
	}
	return cfg, nil
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(&globals{stdin: stdin, stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "portmark",
		Short: "Carton registration-mark printer dispatcher",
		Long: `portmark plans the registration marks for a carton class and drives a
register-exchange motion controller through the print passes, one
acknowledged command at a time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("PORTMARK_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "portmark.yaml"
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", defaultConfig, "Path to configuration file or directory (env PORTMARK_CONFIG)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override service.log_level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(g),
		newPlanCmd(g),
		newCheckCmd(g),
		newRunsCmd(g),
		newWatchCmd(g),
		newVersionCmd(g),
	)
	return root
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func newVersionCmd(g *globals) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{Version: version, Commit: gitCommit, BuildTime: buildDate}
			if jsonOut {
				return json.NewEncoder(g.stdout).Encode(info)
			}
			fmt.Fprintf(g.stdout, "portmark %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output version metadata as JSON")
	return cmd
}
