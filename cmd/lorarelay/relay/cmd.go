// Package relay decodes telemetry frames from radio and forwards them
// to configured sink.
package relay

import (
	"context"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/lorarelay/cmd/lorarelay/subcmd"
	"github.com/temoto/lorarelay/internal/config"
	relay_api "github.com/temoto/lorarelay/internal/relay"
	"github.com/temoto/lorarelay/internal/state"
)

const modName = "relay"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, c *config.Config) error {
	g := state.GetGlobal(ctx)
	f, err := g.Forwarder(ctx)
	if err != nil {
		return errors.Annotate(err, modName)
	}
	r, err := g.Radio()
	if err != nil {
		return errors.Annotate(err, modName)
	}
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("%s: forward=%s", modName, f.String())

	loop := &relay_api.Loop{
		Log:      g.Log,
		Radio:    r,
		Handler:  &relay_api.Telemetry{Log: g.Log, Forwarder: f},
		IdleWait: c.IdleWait(),
	}
	return loop.Run(ctx)
}
