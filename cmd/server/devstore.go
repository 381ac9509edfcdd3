package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"labdesk/internal/devstore"
	"labdesk/internal/instrument"
	"labdesk/internal/schema"
	"labdesk/internal/storage"
)

var devstoreCmd = &cobra.Command{
	Use:   "devstore",
	Short: "Run a local record store for development",
	Long: `Runs a record store speaking the console's REST contract. Tables are
created or extended from the collection catalog on start, and devstore.seed_file
(or --seed) fills collections that are still empty.`,
	RunE: runDevStore,
}

func init() {
	devstoreCmd.Flags().Int("port", 0, "store port (overrides devstore.port)")
	devstoreCmd.Flags().String("seed", "", "YAML seed file (overrides devstore.seed_file)")
	_ = v.BindPFlag("devstore.port", devstoreCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("devstore.seed_file", devstoreCmd.Flags().Lookup("seed"))
}

func runDevStore(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := schema.Default()
	st, err := devstore.Open(ctx, cfg.Database, reg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("database ready", zap.String("driver", st.Dialect.Name()))

	s, err := devstore.New(st, reg, storage.NewLocalStorage(cfg.Storage.LocalPath), logger, devstore.Options{
		JWTSecret:   cfg.DevStore.JWTSecret,
		MaxFileSize: cfg.Storage.MaxFileSize,
	})
	if err != nil {
		return err
	}

	if path := cfg.DevStore.SeedFile; path != "" {
		n, err := s.SeedFile(ctx, path)
		if err != nil {
			return err
		}
		logger.Info("seed applied", zap.String("file", path), zap.Int("records", n))
	}

	addr := fmt.Sprintf(":%d", cfg.DevStore.Port)
	logger.Info("dev store listening", zap.String("addr", addr))
	return listen(ctx, s.App(instrument.Middleware(logger)), addr)
}
