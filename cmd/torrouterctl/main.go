package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/torrouter/torrouter/internal/client"
)

// CLI is the top-level Kong struct.
type CLI struct {
	URL string `short:"u" name:"url" env:"TORROUTER_URL" help:"Base URL of torrouterd." default:"${default_url}"`

	Status   StatusCmd   `cmd:"" help:"Live router dashboard."`
	Circuit  CircuitCmd  `cmd:"" help:"Request a new Tor circuit."`
	Tor      TorCmd      `cmd:"" help:"Manage the Tor service."`
	VPN      VPNCmd      `cmd:"" name:"vpn" help:"Manage VPN profiles and the tunnel."`
	WAN      WANCmd      `cmd:"" name:"wan" help:"Manage WAN failover."`
	Firewall FirewallCmd `cmd:"" help:"Manage the firewall."`
	Version  VersionCmd  `cmd:"" help:"Print version."`
}

func (c *CLI) client() *client.Client {
	return client.New(c.URL)
}

func main() {
	var cli CLI
	k, err := kong.New(&cli,
		kong.Name("torrouterctl"),
		kong.Description("Tor router CLI: status dashboard and maintenance actions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			NoExpandSubcommands: true,
			Compact:             true,
		}),
		kong.Vars{"default_url": client.DefaultURL},
	)
	if err != nil {
		panic(err)
	}

	args := os.Args[1:]
	if len(args) == 0 {
		_, _ = k.Parse([]string{"--help"})
		os.Exit(0)
	}

	ctx, err := k.Parse(args)
	k.FatalIfErrorf(err)
	k.FatalIfErrorf(ctx.Run(&cli))
}
