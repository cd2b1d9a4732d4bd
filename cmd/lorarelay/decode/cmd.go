// Package decode reads drained packet lines ("12 34 ...") from stdin
// and prints decoded telemetry frames. Useful to replay captured dumps.
package decode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/temoto/lorarelay/cmd/lorarelay/subcmd"
	"github.com/temoto/lorarelay/internal/config"
	"github.com/temoto/lorarelay/internal/forward"
	"github.com/temoto/lorarelay/internal/state"
	"github.com/temoto/lorarelay/internal/telemetry"
	"github.com/temoto/lorarelay/log2"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Main: Main}

func Main(ctx context.Context, c *config.Config) error {
	g := state.GetGlobal(ctx)
	n, err := Run(ctx, g.Log, os.Stdin, os.Stdout, c.Forward.Format)
	g.Log.Debugf("%s: frames=%d", modName, n)
	return err
}

// Run returns number of decoded frames. Lines that are not frames are logged and skipped.
func Run(ctx context.Context, log *log2.Log, in io.Reader, out io.Writer, format string) (int, error) {
	json := strings.EqualFold(format, forward.FormatJSON)
	n := 0
	scanner := bufio.NewScanner(in)
	for lineno := 1; scanner.Scan(); lineno++ {
		if ctx.Err() != nil {
			return n, nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, ok, err := telemetry.Decode(strings.Fields(line))
		if err != nil {
			log.Errorf("%s: line=%d err=%v", modName, lineno, err)
			continue
		}
		if !ok {
			log.Debugf("%s: line=%d skip, not a frame", modName, lineno)
			continue
		}
		s := f.String()
		if json {
			b, err := f.MarshalJSON()
			if err != nil {
				log.Errorf("%s: line=%d err=%v", modName, lineno, err)
				continue
			}
			s = string(b)
		}
		if _, err = fmt.Fprintln(out, s); err != nil {
			return n, errors.Annotate(err, modName)
		}
		n++
	}
	return n, errors.Annotate(scanner.Err(), modName)
}
