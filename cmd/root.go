package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stylescan/stylescan/internal/config"
	"github.com/stylescan/stylescan/internal/errs"
	"github.com/stylescan/stylescan/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stylescan",
	Short: "Adaptive design-data crawler",
	Long:  "Crawls a website in phases, classifies its size, and extracts per-page design data (colors, typography, spacing) into JSON artifacts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// initStore opens and migrates the run-history database.
func initStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errs.HintOf(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(errs.CategoryOf(err).ExitCode())
	}
}
