package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"labdesk/internal/config"
	"labdesk/internal/logging"
)

var (
	cfgFile string
	v       = viper.New()

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "labdesk",
	Short: "Admin console for the diagnostics catalog",
	Long: `labdesk serves the back-office console for users, test categories, tests,
carts, navigation pages and team profiles.

"labdesk serve" runs the console against the record store at admin.store_url.
"labdesk devstore" runs a local record store on SQLite or PostgreSQL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./labdesk.yaml or ./config/labdesk.yaml)")
	rootCmd.AddCommand(serveCmd, devstoreCmd, collectionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
