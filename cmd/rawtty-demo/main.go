//go:build unix

// Command rawtty-demo puts the terminal in raw mode and echoes decoded input
// until q or Ctrl+C is pressed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lixenwraith/rawtty/config"
	"github.com/lixenwraith/rawtty/logging"
	"github.com/lixenwraith/rawtty/metrics"
)

type flags struct {
	configPath  string
	engine      string
	logFile     string
	logLevel    string
	metricsAddr string
	printConfig bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "rawtty-demo",
		Short:        "Raw-mode terminal session demo",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &f)
			if err != nil {
				return err
			}
			if f.printConfig {
				data, err := cfg.Encode()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return run(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "TOML config file")
	fs.StringVar(&f.engine, "engine", config.EngineANSI, "Protocol engine: ansi, tcell")
	fs.StringVar(&f.logFile, "log-file", "", "Write JSON logs to this file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	fs.BoolVar(&f.printConfig, "print-config", false, "Print the effective config and exit")
	return cmd
}

// loadConfig layers explicitly set flags over file and environment
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	fs := cmd.Flags()
	if fs.Changed("engine") {
		cfg.Engine.Type = f.engine
	}
	if fs.Changed("log-file") {
		cfg.Log.File = f.logFile
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	return cfg, cfg.Validate()
}

func run(cfg *config.Config) error {
	logger, closeLog, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closeLog()
	defer logger.Sync()

	srv := metrics.NewServer(cfg.Metrics.Addr, logger)

	logger.Info("starting", zap.String("engine", cfg.Engine.Type), zap.String("metrics", cfg.Metrics.Addr))

	switch cfg.Engine.Type {
	case config.EngineTcell:
		err = runTcell(cfg, srv, logger)
	default:
		err = runSession(cfg, srv, logger)
	}
	if err != nil {
		logger.Error("exited with error", zap.Error(err))
	}
	return err
}
