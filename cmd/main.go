package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/timoknapp/contest-dashboard/pkg/config"
	"github.com/timoknapp/contest-dashboard/pkg/logger"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

var (
	v          = viper.New()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "contest-dashboard",
	Short:         "Serve the Codeforces contest dashboard API.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "contest-dashboard %s (commit %s)\n", version, commit)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .contest-dashboard.yaml in . or $HOME)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().String("source-url", "", "contest list endpoint")
	rootCmd.PersistentFlags().Duration("source-timeout", 0, "timeout of one upstream fetch")
	_ = v.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("source-url", rootCmd.PersistentFlags().Lookup("source-url"))
	_ = v.BindPFlag("source-timeout", rootCmd.PersistentFlags().Lookup("source-timeout"))

	addServeFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(serveCmd, warmupCmd, versionCmd)
}

// initConfig wires defaults, environment and the optional config file into v.
func initConfig() {
	config.SetDefaults(v)
	if err := config.ReadFile(v, configFile); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("Using config file: %s", used)
	}
}

// loadConfig validates the merged configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevelFromString(cfg.LogLevel)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
