package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/zouppen/systemdb/internal/config"
	"go.uber.org/zap"
)

// CLI is the root command structure for systemdb-send
type CLI struct {
	// Global flags
	ConfigFile string `name:"config" short:"c" type:"path" help:"Config file (default: search standard locations)"`
	LogLevel   string `name:"log-level" short:"l" help:"Diagnostic log level (overrides log.level)"`
	LogFormat  string `name:"log-format" help:"Diagnostic log format (overrides log.format)"`
	Verbose    bool   `short:"v" help:"Shorthand for --log-level=debug"`

	// Commands
	Ship    ShipCmd    `cmd:"" default:"withargs" help:"Ship journal records to a sink process"`
	Check   CheckCmd   `cmd:"" help:"Show the effective setup and whether the commands can be found"`
	Config  ConfigCmd  `cmd:"" help:"Show or manage configuration"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// Globals holds shared state for all commands
type Globals struct {
	Config     *config.Config
	ConfigFile string
	Log        *zap.Logger
	Stdout     io.Writer
	Stderr     io.Writer
}

// NewGlobalsWithConfig creates a new Globals instance, folding global flags
// into cfg
func NewGlobalsWithConfig(cli *CLI, cfg *config.Config, configFile string) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if cli.Verbose {
		cfg.Log.Level = "debug"
	}
	if cli.LogFormat != "" {
		cfg.Log.Format = cli.LogFormat
	}
	return &Globals{
		Config:     cfg,
		ConfigFile: configFile,
		Log:        zap.NewNop(),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

func (g *Globals) logger() *zap.Logger {
	if g.Log == nil {
		return zap.NewNop()
	}
	return g.Log
}

// VersionCmd shows version information
type VersionCmd struct{}

// Run executes the version command
func (v *VersionCmd) Run(globals *Globals) error {
	_, err := fmt.Fprintf(globals.Stdout, "systemdb-send version %s (%s)\n", Version, Commit)
	return err
}

// Version information (set at build time)
var (
	Version = "dev"
	Commit  = "none"
)
