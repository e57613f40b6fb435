// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command cutiesync runs the optimistic command pipeline against a Cutie
// backend and exposes its diagnostics.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ManuGH/cutiesync/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "cutiesync",
		Short:        "Optimistic command pipeline with echo suppression",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		config.ParseString(config.EnvPrefix+"CONFIG", ""),
		"path to config file (YAML); env "+config.EnvPrefix+"CONFIG")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newDispatchCommand(opts))
	cmd.AddCommand(newConfigCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// loadConfig resolves defaults, the optional file and the environment.
func (o *rootOptions) loadConfig() (config.AppConfig, *config.Loader, error) {
	path := strings.TrimSpace(o.configPath)
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		if path == "" {
			path = "environment"
		}
		return cfg, nil, fmt.Errorf("configuration error in %s: %w", path, err)
	}
	return cfg, loader, nil
}
