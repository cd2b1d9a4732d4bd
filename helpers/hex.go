package helpers

import (
	"encoding/hex"
	"strings"
)

// MustHex decodes hex string, spaces are ignored: "8a 01" -> {0x8a, 0x01}.
func MustHex(s string) []byte {
	b, err := hex.DecodeString(strings.Replace(s, " ", "", -1))
	if err != nil {
		panic(err)
	}
	return b
}
