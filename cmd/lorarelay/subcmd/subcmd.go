// Package subcmd dispatches lorarelay sub-commands.
package subcmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/lorarelay/internal/config"
)

type Mod struct {
	Name string
	Main func(context.Context, *config.Config) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, errors.NotValidf("empty command, try one of %s", Names(modules))
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, errors.NotFoundf("command='%s', try one of %s", command, Names(modules))
	}
	return found, nil
}

func Names(modules []Mod) string {
	ss := make([]string, len(modules))
	for i, m := range modules {
		ss[i] = m.Name
	}
	return strings.Join(ss, "|")
}

// SdNotify returns true when running under systemd.
func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}
