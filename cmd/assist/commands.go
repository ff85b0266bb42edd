// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/troforte/assist/pkg/logging"
	"github.com/troforte/assist/services/assist"
)

var (
	rootCmd = &cobra.Command{
		Use:   "assist",
		Short: "Troforte farming assistant gateway",
		Long: `assist serves the Troforte mobile app: streamed chat grounded in the
product knowledge base, conversation history, plant health diagnosis,
and farmer profiles.`,
		SilenceUsage: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Loads configuration from the YAML file given by --config or
ASSIST_CONFIG_FILE, then the environment. Flags override both.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), assist.ServiceName, assist.Version)
		},
	}

	configPath   string
	portFlag     int
	storeBackend string
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "HTTP port (overrides PORT)")
	serveCmd.Flags().StringVar(&storeBackend, "store", "", "Key-value store: redis or badger")

	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Format:  logging.Format(cfg.LogFormat),
		LogDir:  cfg.LogDir,
		Service: assist.ServiceName,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := assist.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("start assist: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("Shutdown was not clean", "error", err)
		}
	}()
	return svc.Run(ctx)
}

// loadServeConfig loads the config file and environment, then applies
// the flags the user set. assist.New validates the result.
func loadServeConfig(cmd *cobra.Command) (assist.Config, error) {
	cfg, err := assist.LoadConfig(configPath)
	if err != nil {
		return assist.Config{}, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = portFlag
	}
	if cmd.Flags().Changed("store") {
		cfg.StoreBackend = storeBackend
	}
	return cfg, nil
}
