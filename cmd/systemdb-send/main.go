package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/zouppen/systemdb/internal/cli"
	"github.com/zouppen/systemdb/internal/config"
	"github.com/zouppen/systemdb/internal/logging"
	"github.com/zouppen/systemdb/internal/shiperr"
	"go.uber.org/zap"
)

func main() {
	var c cli.CLI

	ctx := kong.Parse(&c,
		kong.Name("systemdb-send"),
		kong.Description("Ship the systemd journal to a sink process as CSV rows with resumable cursors.\n\nExample: systemdb-send -- ssh logs.example.com systemdb-receive"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)

	cfg, err := config.LoadPath(c.ConfigFile)
	if err != nil {
		if c.ConfigFile != "" {
			fmt.Fprintf(os.Stderr, "Fatal error: failed to load config %s: %v\n", c.ConfigFile, err)
			os.Exit(shiperr.ExitProcessing)
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}
	configFile := c.ConfigFile
	if configFile == "" {
		configFile = config.ConfigFile()
	}

	globals := cli.NewGlobalsWithConfig(&c, cfg, configFile)
	log, err := logging.NewStderr(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(shiperr.ExitProcessing)
	}
	globals.Log = log
	if configFile != "" {
		log.Debug("Configuration loaded", zap.String("path", configFile))
	}

	err = ctx.Run(globals)
	if err != nil {
		code := shiperr.ExitCode(err)
		log.Error("Fatal error", zap.Error(err), zap.Int("exit_code", code))
		_ = log.Sync()
		os.Exit(code)
	}
	_ = log.Sync()
}
