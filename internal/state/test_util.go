package state

import (
	"context"
	"testing"

	"github.com/temoto/lorarelay/internal/config"
	"github.com/temoto/lorarelay/log2"
)

// NewTestContext returns Global initialized from inline HCL config.
func NewTestContext(t testing.TB, confString string) (context.Context, *Global) {
	fs := config.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	// log := log2.NewStderr(log2.LDebug) // useful with panics
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	c, err := config.ReadConfig(log, fs, "test-inline")
	if err != nil {
		t.Fatal(err)
	}
	g.MustInit(ctx, c)
	return ctx, g
}
