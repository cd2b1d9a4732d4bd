// Package state holds process wide objects shared by sub-commands:
// config, logger, lifecycle and lazily opened hardware.
package state

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/lorarelay/internal/config"
	"github.com/temoto/lorarelay/internal/forward"
	"github.com/temoto/lorarelay/internal/metrics"
	"github.com/temoto/lorarelay/log2"
)

type Global struct {
	Alive    *alive.Alive
	Config   *config.Config
	Hardware hardware // hardware.go
	Log      *log2.Log

	forward struct {
		once
		f *forward.Forwarder
	}
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}
	g := &Global{
		Alive: alive.NewAlive(),
		Log:   log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *config.Config) error {
	g.Config = cfg
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.SetErrorFunc(metrics.CountError)
	g.Log.Debugf("config=%+v", *cfg)

	if cfg.Metrics.Bind != "" && g.Alive.Add(1) {
		go func() {
			defer g.Alive.Done()
			mctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				<-g.Alive.StopChan()
				cancel()
			}()
			if err := metrics.Serve(mctx, cfg.Metrics, g.Log); err != nil {
				g.Error(err)
			}
		}()
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *config.Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Forwarder is created on first use, spool worker runs until Stop().
func (g *Global) Forwarder(ctx context.Context) (*forward.Forwarder, error) {
	x := &g.forward // short alias
	_ = x.do(func() error {
		f, err := forward.New(g.Config.Forward, g.Log)
		if err != nil {
			return errors.Annotate(err, "forward init")
		}
		if !g.Alive.Add(1) {
			_ = f.Close()
			return errors.Errorf("forward init after stop")
		}
		x.f = f
		wctx, cancel := context.WithCancel(ctx)
		f.Start(wctx)
		go func() {
			defer g.Alive.Done()
			<-g.Alive.StopChan()
			cancel()
			if err := f.Close(); err != nil {
				g.Error(err, "forward close")
			}
		}()
		return nil
	})
	return x.f, x.err
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Error(g.CloseRadio())
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
