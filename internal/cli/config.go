package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zouppen/systemdb/internal/config"
)

// ConfigCmd shows or manages configuration
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"withargs" help:"Show current configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show configuration file path"`
	Generate ConfigGenerateCmd `cmd:"" help:"Generate sample configuration file"`
}

// ConfigShowCmd shows current configuration
type ConfigShowCmd struct {
	JSON bool `help:"Print as JSON"`
}

// configView renders durations as strings so the output can be pasted back
// into a config file
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"source": map[string]any{
			"command":     cfg.Source.Command,
			"cursor_flag": cfg.Source.CursorFlag,
			"follow_flag": cfg.Source.FollowFlag,
			"args":        cfg.Source.Args,
		},
		"sink": map[string]any{
			"command":       cfg.Sink.Command,
			"greeting":      cfg.Sink.Greeting,
			"marker":        cfg.Sink.Marker,
			"control_chunk": cfg.Sink.ControlChunk,
		},
		"stream": map[string]any{
			"backfill_period":  cfg.Stream.BackfillPeriod.String(),
			"follow_period":    cfg.Stream.FollowPeriod.String(),
			"resume_tolerance": cfg.Stream.ResumeTolerance.String(),
		},
		"transform": map[string]any{
			"fields":       cfg.Transform.Fields,
			"required":     cfg.Transform.Required,
			"max_priority": cfg.Transform.MaxPriority,
			"match":        cfg.Transform.Match,
			"exclude":      cfg.Transform.Exclude,
		},
		"log": map[string]any{
			"level":  cfg.Log.Level,
			"format": cfg.Log.Format,
		},
	}
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if c.JSON {
		encoder := json.NewEncoder(globals.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(configView(cfg))
	}

	w := globals.Stdout
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "source:")
	fmt.Fprintf(w, "  command:     %s\n", strings.Join(cfg.Source.Command, " "))
	fmt.Fprintf(w, "  cursor_flag: %s\n", cfg.Source.CursorFlag)
	fmt.Fprintf(w, "  follow_flag: %s\n", cfg.Source.FollowFlag)
	if len(cfg.Source.Args) > 0 {
		fmt.Fprintf(w, "  args:        %s\n", strings.Join(cfg.Source.Args, " "))
	}
	fmt.Fprintln(w, "sink:")
	fmt.Fprintf(w, "  command:       %s\n", strings.Join(cfg.Sink.Command, " "))
	fmt.Fprintf(w, "  greeting:      %s\n", cfg.Sink.Greeting)
	fmt.Fprintf(w, "  marker:        %s\n", cfg.Sink.Marker)
	fmt.Fprintf(w, "  control_chunk: %d\n", cfg.Sink.ControlChunk)
	fmt.Fprintln(w, "stream:")
	fmt.Fprintf(w, "  backfill_period:  %s\n", cfg.Stream.BackfillPeriod)
	fmt.Fprintf(w, "  follow_period:    %s\n", cfg.Stream.FollowPeriod)
	fmt.Fprintf(w, "  resume_tolerance: %s\n", cfg.Stream.ResumeTolerance)
	fmt.Fprintln(w, "transform:")
	fmt.Fprintf(w, "  fields:   %s\n", strings.Join(cfg.Transform.Fields, ", "))
	fmt.Fprintf(w, "  required: %s\n", strings.Join(cfg.Transform.Required, ", "))
	if cfg.Transform.MaxPriority != "" {
		fmt.Fprintf(w, "  max_priority: %s\n", cfg.Transform.MaxPriority)
	}
	for _, m := range cfg.Transform.Match {
		fmt.Fprintf(w, "  match:    %s\n", m)
	}
	for _, e := range cfg.Transform.Exclude {
		fmt.Fprintf(w, "  exclude:  %s\n", e)
	}
	fmt.Fprintln(w, "log:")
	fmt.Fprintf(w, "  level:  %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "  format: %s\n", cfg.Log.Format)

	if globals.ConfigFile != "" {
		fmt.Fprintln(w, "")
		fmt.Fprintf(w, "Loaded from: %s\n", globals.ConfigFile)
	}
	return nil
}

// ConfigPathCmd shows config file path
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := globals.ConfigFile
	if path == "" {
		path = config.ConfigFile()
	}

	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found")
		fmt.Fprintln(globals.Stdout, "")
		fmt.Fprintln(globals.Stdout, "Create one at:")
		fmt.Fprintln(globals.Stdout, "  ./.systemdb.yaml")
		fmt.Fprintln(globals.Stdout, "  ~/.systemdb.yaml")
		fmt.Fprintln(globals.Stdout, "  ~/.config/systemdb/config.yaml")
		fmt.Fprintln(globals.Stdout, "  /etc/systemdb/config.yaml")
	} else {
		fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	}
	return nil
}

// ConfigGenerateCmd generates a sample configuration file
type ConfigGenerateCmd struct{}

const sampleConfig = `# systemdb-send configuration file
# Place this file at ~/.systemdb.yaml or /etc/systemdb/config.yaml

source:
  # Journal query; the resume cursor and follow flag are appended to it
  command: [journalctl, -qa, --no-tail, -o, json]
  # "--cursor=" re-reads the last shipped record, "--after-cursor=" does not
  cursor_flag: "--cursor="
  follow_flag: "-f"
  # Extra arguments, e.g. unit filters
  # args: [-u, nginx.service]

sink:
  # Receiving process; it reads the greeting, answers with the last stored
  # cursor and timestamp, then consumes CSV rows on stdin
  # command: [ssh, logs.example.com, systemdb-receive]
  greeting: systemdb-send 1
  marker: __CURSOR
  control_chunk: 1024

stream:
  # Commit interval while reading the backlog and while following
  backfill_period: 30s
  follow_period: 5s
  # How far before the stored position the journal may resume
  resume_tolerance: 1h

transform:
  fields: [_HOSTNAME, SYSLOG_IDENTIFIER, PRIORITY, MESSAGE]
  required: [MESSAGE]
  # Ship only records at least this severe (0-7 or emerg..debug)
  # max_priority: info
  # FIELD=regex filters; a bare regex applies to MESSAGE
  # match: ["_SYSTEMD_UNIT=^nginx"]
  # exclude: [healthcheck]

log:
  # debug, info, warn, error
  level: info
  # console or json
  format: console
`

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	_, err := fmt.Fprint(globals.Stdout, sampleConfig)
	return err
}
