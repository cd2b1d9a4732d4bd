package relay

import (
	"strconv"
	"strings"

	"github.com/temoto/lorarelay/hardware/radio"
)

// Drain appends every available byte of the current packet to a text line:
// decimal value followed by single space, e.g. "12 34 ".
// Raw bytes are returned too, for handlers that do not need text form.
func Drain(r radio.Receiver) (string, []byte) {
	var sb strings.Builder
	data := make([]byte, 0, 64)
	for r.Available() > 0 {
		b := r.Read()
		data = append(data, b)
		sb.WriteString(strconv.Itoa(int(b)))
		sb.WriteByte(' ')
	}
	return sb.String(), data
}

// Tokens splits drained line on spaces, trailing empty token is dropped.
func Tokens(line string) []string {
	tokens := strings.Split(line, " ")
	if n := len(tokens); n > 0 && tokens[n-1] == "" {
		tokens = tokens[:n-1]
	}
	return tokens
}
