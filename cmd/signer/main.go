package main

import (
	"fmt"
	"os"
	"strings"

	"FactorSign/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "signer",
	Short: "Collect quorum signatures from factor sources",
	Long: `signer collects the signatures a batch of transactions needs from the
factor sources of their entities. Factor sources are asked kind by kind,
skipped or failing sources are recorded, and the batch is journaled so an
interrupted run can be resumed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logger.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			return err
		}

		logger.SetLevel(lvl)

		return nil
	},
}

func main() {
	logger.Init()

	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FACTORSIGN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("data", "./data", "journal directory")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("data", rootCmd.PersistentFlags().Lookup("data"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(batchesCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(entriesCmd())
	rootCmd.AddCommand(watchCmd())
}
