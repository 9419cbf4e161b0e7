// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/oauthz/pkg/authserver/identity"
	"github.com/stacklok/oauthz/pkg/authserver/registry"
	"github.com/stacklok/oauthz/pkg/logger"
)

// newValidateCmd creates the validate command for checking configuration
func newValidateCmd() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the oauthz configuration file for syntax and semantic errors.

This command checks:
- YAML syntax validity
- Required fields presence
- Storage and registry backend settings
- Client definitions and the relations between them
- User definitions`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				logger.Errorf("Configuration validation failed: %v", err)
				return fmt.Errorf("validation failed: %w", err)
			}
			if _, err := identity.NewStaticAuthenticator(cfg.Users); err != nil {
				return fmt.Errorf("validation failed: users: %w", err)
			}
			order, err := registry.ImportOrder(cfg.Clients)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			logger.Infof("Configuration is valid")
			logger.Infof("  Issuer: %s", cfg.Issuer)
			logger.Infof("  Storage: %s", cfg.Storage.Type)
			logger.Infof("  Registry: %s (autoImport: %t)", cfg.Registry.Backend, cfg.Registry.AutoImport)
			logger.Infof("  Clients: %d defined, import order %v", len(cfg.Clients), order)
			logger.Infof("  Users: %d defined", len(cfg.Users))

			if show {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg.Redacted()); err != nil {
					return fmt.Errorf("printing configuration: %w", err)
				}
				return enc.Close()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Print the effective configuration with secrets redacted")

	return cmd
}
