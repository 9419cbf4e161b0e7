// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/oauthz/pkg/authserver"
	"github.com/stacklok/oauthz/pkg/logger"
)

// newServeCmd creates the serve command for starting the server
func newServeCmd() *cobra.Command {
	var listenAddress string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server using the configuration file given by --config.

When the persistent client registry is configured with autoImport, the clients
of the configuration file are imported into the empty database before the server
starts listening. A failed import aborts startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			if listenAddress != "" {
				cfg.ListenAddress = listenAddress
			}
			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddress, "listen", "", "Address to listen on, overriding listenAddress")

	return cmd
}

// runServe implements the serve command logic
func runServe(cmd *cobra.Command, cfg *authserver.Config) error {
	ctx := cmd.Context()

	srv, err := authserver.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create authorization server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warnf("Error releasing storage: %v", err)
		}
	}()

	imported, err := srv.AutoImport(ctx)
	if err != nil {
		return err
	}
	if imported {
		logger.Infof("Imported %d clients into %s", len(cfg.Clients), cfg.Database.Path)
	}

	return srv.Run(ctx)
}
