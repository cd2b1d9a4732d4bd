package helpers

import (
	"io"
	"strings"

	"github.com/juju/errors"
)

// FoldErrors joins non-nil errors into one, nil if there are none.
func FoldErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	if len(ss) == 0 {
		return nil
	}
	return errors.New(strings.Join(ss, "\n"))
}

// CloseAll closes every non-nil closer, even after failures.
func CloseAll(closers ...io.Closer) error {
	errs := make([]error, len(closers))
	for i, c := range closers {
		if c != nil {
			errs[i] = c.Close()
		}
	}
	return FoldErrors(errs)
}
