// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/oauthz/pkg/authserver"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/logger"
)

// newImportCmd creates the import command
func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import the configured clients into the database",
		Long: `Import the permissions and clients of the configuration file into the SQLite
database used by the persistent client registry.

Clients are imported in dependency order so that every allowed relation refers
to a client that already exists. A database that already holds clients is left
untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("configuration loading failed: %w", err)
			}
			if cfg.Registry.Backend != registry.BackendPersistent {
				return errors.New("import requires registry.backend to be persistent")
			}
			if cfg.Database.Path == "" {
				return errors.New("import requires database.path to be set")
			}

			srv, err := authserver.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = srv.Close() }()

			imported, err := srv.Import(cmd.Context())
			if err != nil {
				return err
			}
			if imported {
				logger.Infof("Imported %d clients into %s", len(cfg.Clients), cfg.Database.Path)
			} else {
				logger.Infof("Database %s already holds clients, nothing imported", cfg.Database.Path)
			}
			return nil
		},
	}
}
