// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/angad2803/Thapar-Marketplace/backend/config"
	"github.com/angad2803/Thapar-Marketplace/backend/logging"
	"github.com/angad2803/Thapar-Marketplace/backend/storage/sqlstore"
)

var (
	configFile string

	cfg    *config.Config
	logger *zap.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:           "chat-server",
		Short:         "Marketplace realtime chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configFile)
			if err != nil {
				return err
			}
			logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json)")

	root.AddCommand(serveCmd(), migrateCmd(), tokenCmd())
	if err := root.Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.String("command", root.Name()), zap.Error(err))
		} else {
			fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		}
		return err
	}
	return nil
}

// openStore connects to the configured database and applies migrations.
func openStore(ctx context.Context) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}
