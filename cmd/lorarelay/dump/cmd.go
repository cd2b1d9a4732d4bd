// Package dump prints every received packet as text with signal quality,
// no decoding and no network.
package dump

import (
	"context"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/lorarelay/cmd/lorarelay/subcmd"
	"github.com/temoto/lorarelay/internal/config"
	relay_api "github.com/temoto/lorarelay/internal/relay"
	"github.com/temoto/lorarelay/internal/state"
)

const modName = "dump"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, c *config.Config) error {
	g := state.GetGlobal(ctx)
	r, err := g.Radio()
	if err != nil {
		return errors.Annotate(err, modName)
	}
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("%s: waiting for packets", modName)

	loop := &relay_api.Loop{
		Log:      g.Log,
		Radio:    r,
		Handler:  &relay_api.Dump{Out: os.Stdout},
		IdleWait: c.IdleWait(),
	}
	return loop.Run(ctx)
}
