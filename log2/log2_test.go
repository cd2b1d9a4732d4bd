package log2

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"log"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLog2(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fun  func(t testing.TB, l *Log) string
	}{
		{"caller/debug", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Debugf("packet len=%d", 44)
			return formatCallerShort(1) + "debug: packet len=44\n"
		}},
		{"caller/info", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Infof("radio state=%s", "rx")
			return formatCallerShort(1) + "radio state=rx\n"
		}},
		{"caller/error", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Errorf("problem")
			return formatCallerShort(1) + "error: problem\n"
		}},
		{"printf", func(t testing.TB, l *Log) string {
			l.SetFlags(0)
			l.Printf("[mqtt] %s", "connected")
			l.Println("[mqtt]", "closed")
			return "[mqtt] connected\n[mqtt]closed\n"
		}},
		{"error-func/error", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			exactError := fmt.Errorf("one particular issue")
			l.Error(exactError)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, exactError, e)
			}
			return "error: one particular issue\n"
		}},
		{"error-func/string", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			l.Errorf("send failed rssi=%.1f", -93.5)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, "send failed rssi=-93.5", e.Error())
			}
			return "error: send failed rssi=-93.5\n"
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name+"/logger=nil", func(t *testing.T) {
			c.fun(t, nil)
		})
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, LAll)
			expect := c.fun(t, l)
			assert.Equal(t, expect, buf.String())
		})
	}
}

func TestLevel(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LInfo)
	l.SetFlags(0)
	l.Debugf("hidden")
	l.Infof("shown")
	assert.False(t, l.Enabled(LDebug))
	l.SetLevel(LDebug)
	assert.True(t, l.Enabled(LDebug))
	l.Debugf("now shown")
	assert.Equal(t, "shown\ndebug: now shown\n", buf.String())

	clone := l.Clone(LError)
	clone.Infof("clone hidden")
	clone.Errorf("clone shown")
	assert.Equal(t, "shown\ndebug: now shown\nerror: clone shown\n", buf.String())
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	l := NewWriter(ioutil.Discard, LAll)
	assert.Nil(t, l)
	assert.False(t, l.Enabled(LError))
	l.Infof("no panic on nil")
	assert.Equal(t, "debug", LDebug.String())
}

func callerShort(depth int) (file string, line int) {
	var ok bool
	_, file, line, ok = runtime.Caller(depth)
	if !ok {
		file = "???"
		line = 0
	}

	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	file = short

	return
}

func formatCallerShort(depth int) string {
	file, line := callerShort(depth + 1)
	return fmt.Sprintf("%s:%d: ", file, line-1)
}
