package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krxlab/ipo-advisor/config"
	"github.com/krxlab/ipo-advisor/internal/index"
	srv "github.com/krxlab/ipo-advisor/internal/server"
	"github.com/krxlab/ipo-advisor/provider"
)

func main() {
	var cfgPath string

	root := &cobra.Command{Use: "advisor", Short: "KRX IPO advisory service"}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config, .)")

	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")

	var migDir, direction string
	var steps int
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			dsn, err := cfg.Storage.Postgres.DSN()
			if err != nil {
				return err
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Build the local document index from the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			llm, err := provider.New(cfg.LLM)
			if err != nil {
				return err
			}
			ix := index.New(llm)
			if err := ix.LoadCorpus(context.Background(), cfg.Index.CorpusPath, cfg.Index.EmbedBatch); err != nil {
				return err
			}
			fmt.Printf("indexed %d documents from %s\n", ix.Len(), cfg.Index.CorpusPath)
			return nil
		},
	}

	root.AddCommand(serve, migrate, indexCmd, chatCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
