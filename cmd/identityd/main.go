// Command identityd runs the identity HTTP service and its maintenance tasks.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/MrEthical07/goIdentity/internal/app"
	"github.com/MrEthical07/goIdentity/store/pg"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	load := func() (*app.Config, error) {
		cfg, err := app.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg.Log.Version = version
		return cfg, nil
	}

	root := &cobra.Command{
		Use:           "identityd",
		Short:         "Authentication and MFA service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("IDENTITY_CONFIG"), "YAML config file (env IDENTITY_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			svc := fx.New(app.Module(cfg))
			if err := svc.Err(); err != nil {
				return err
			}
			svc.Run()
			return nil
		},
	}

	migrateCmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the PostgreSQL schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return errors.New("migrate needs database.driver=postgres")
			}
			if err := pg.Migrate(cfg.Database.DSN, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", args[0])
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the merged configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return cfg.Print(cmd.OutOrStdout())
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list risky settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			eng, err := cfg.EngineConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			warnings := eng.Lint()
			for _, w := range warnings {
				fmt.Fprintf(out, "warn  %-28s %s\n", w.Code, w.Message)
			}
			fmt.Fprintf(out, "config ok (%d warnings)\n", len(warnings))
			return nil
		},
	})

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(serveCmd, migrateCmd, configCmd, versionCmd)
	return root
}
