package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/alecthomas/kong"

	"github.com/torrouter/torrouter/internal/config"
	"github.com/torrouter/torrouter/internal/logging"
)

// CLI is the top-level Kong struct.
type CLI struct {
	Config  string `short:"c" help:"Path to torrouterd.toml." default:"${config_path}" type:"path"`
	EnvFile string `name:"env-file" help:"Optional dotenv file applied before the environment." default:"${env_path}" type:"path"`

	Serve     ServeCmd     `cmd:"" help:"Run the control plane (foreground or as a system service)."`
	Snapshot  SnapshotCmd  `cmd:"" help:"Collect and print one status snapshot."`
	Control   ControlCmd   `cmd:"" help:"Run one control action locally."`
	Install   InstallCmd   `cmd:"" help:"Install torrouterd as a system service."`
	Uninstall UninstallCmd `cmd:"" help:"Stop and remove the system service."`
	Version   VersionCmd   `cmd:"" help:"Print version."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("torrouterd"),
		kong.Description("Tor router control plane: status, actions and metrics over HTTP."),
		kong.UsageOnError(),
		kong.Vars{
			"config_path": config.DefaultPath,
			"env_path":    config.DefaultEnvPath,
		},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli))
}

// load reads the configuration and opens the logger it describes. The
// returned closer flushes the log file.
func (c *CLI) load() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(c.Config, c.EnvFile)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log: %w", err)
	}
	return cfg, log, closer, nil
}
