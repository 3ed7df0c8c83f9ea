package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/wishroom/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode (debug logging, console output)." env:"WISHROOM_DEV"`
		Version kong.VersionFlag

		Serve   commands.ServeCmd   `cmd:"" help:"Start the HTTP API and the delivery scheduler"`
		Deliver commands.DeliverCmd `cmd:"" help:"Run one delivery pass and exit"`
		Migrate commands.MigrateCmd `cmd:"" help:"Apply database migrations"`
		Token   commands.TokenCmd   `cmd:"" help:"Issue a service token"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("wishroom"),
		kong.Description("Room and wish membership engine"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
