package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/lorarelay/cmd/lorarelay/decode"
	"github.com/temoto/lorarelay/cmd/lorarelay/dump"
	"github.com/temoto/lorarelay/cmd/lorarelay/relay"
	"github.com/temoto/lorarelay/cmd/lorarelay/subcmd"
	"github.com/temoto/lorarelay/internal/config"
	"github.com/temoto/lorarelay/internal/state"
	"github.com/temoto/lorarelay/log2"
	"golang.org/x/sys/unix"
)

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	dump.Mod,
	relay.Mod,
	decode.Mod,
}

const usage = `usage: lorarelay [-config lorarelay.hcl] command
commands:
- dump    print received packets as text with signal quality
- relay   decode telemetry frames and forward to websocket or MQTT
- decode  decode frames from stdin lines, no radio required
`

func main() {
	flagConfig := flag.String("config", config.DefaultName, "")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString(usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if subcmd.SdNotify("start") {
		// under systemd, assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		log.SetFlags(log2.LStdFlags)
	}

	mod, err := subcmd.Parse(flag.Arg(0), modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	c, err := config.ReadConfigFile(log, *flagConfig)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	ctx, g := state.NewContext(log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, unix.SIGINT, unix.SIGTERM)
	go func() {
		sig := <-sigch
		log.Infof("signal=%v stopping", sig)
		subcmd.SdNotify(daemon.SdNotifyStopping)
		cancel()
		g.Stop()
	}()

	g.MustInit(ctx, c)
	log.Debugf("lorarelay command=%s", mod.Name)
	if err := mod.Main(ctx, c); err != nil {
		g.Fatal(err)
	}
	g.StopWait(5 * time.Second)
	if err := g.CloseRadio(); err != nil {
		log.Error(err)
	}
}
