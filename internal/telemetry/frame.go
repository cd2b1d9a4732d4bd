// Package telemetry decodes fixed-layout sensor frames received over LoRa.
//
// Wire layout, 44 bytes:
//   0..3   counter, uint32 big endian
//   4..15  accelerometer X Y Z, float32
//   16..27 gyroscope X Y Z, float32
//   28..39 magnetometer X Y Z, float32
//   40..43 barometer, float32
// Float fields are little endian on the wire (byte order reversed relative to counter).
package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const FrameLength = 44

const fieldSize = 4

// Frame is one decoded sensor record.
type Frame struct {
	Counter uint32
	AccX    float32
	AccY    float32
	AccZ    float32
	GyroX   float32
	GyroY   float32
	GyroZ   float32
	MagX    float32
	MagY    float32
	MagZ    float32
	Baro    float32
}

// Uint32 reads counter-style field, most significant byte first.
func Uint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// Float32 reads sensor field: 4 bytes reversed then reinterpreted as IEEE-754 binary32.
func Float32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (f *Frame) floats() [10]*float32 {
	return [10]*float32{
		&f.AccX, &f.AccY, &f.AccZ,
		&f.GyroX, &f.GyroY, &f.GyroZ,
		&f.MagX, &f.MagY, &f.MagZ,
		&f.Baro,
	}
}

// DecodeBytes returns ok=false for any input length other than FrameLength.
func DecodeBytes(b []byte) (Frame, bool) {
	var f Frame
	if len(b) != FrameLength {
		return f, false
	}
	f.Counter = Uint32(b[0:fieldSize])
	for i, p := range f.floats() {
		off := fieldSize * (i + 1)
		*p = Float32(b[off : off+fieldSize])
	}
	return f, true
}

// ParseTokens converts decimal byte tokens ("12", "255") to bytes.
func ParseTokens(tokens []string) ([]byte, error) {
	b := make([]byte, len(tokens))
	for i, tok := range tokens {
		x, err := strconv.ParseUint(tok, 10, 8)
		if err != nil {
			return nil, errors.NotValidf("token[%d]=%q", i, tok)
		}
		b[i] = byte(x)
	}
	return b, nil
}

// Decode validates token count before parsing anything.
// Wrong count: ok=false, err=nil. Count matches but a token is not a byte value: ok=false, err!=nil.
func Decode(tokens []string) (Frame, bool, error) {
	if len(tokens) != FrameLength {
		return Frame{}, false, nil
	}
	b, err := ParseTokens(tokens)
	if err != nil {
		return Frame{}, false, errors.Annotate(err, "telemetry decode")
	}
	f, ok := DecodeBytes(b)
	return f, ok, nil
}

// Encode is exact inverse of DecodeBytes.
func Encode(f Frame) [FrameLength]byte {
	var b [FrameLength]byte
	binary.BigEndian.PutUint32(b[0:fieldSize], f.Counter)
	for i, p := range f.floats() {
		off := fieldSize * (i + 1)
		binary.LittleEndian.PutUint32(b[off:off+fieldSize], math.Float32bits(*p))
	}
	return b
}

var fieldNames = [10]string{
	"AccX", "AccY", "AccZ",
	"GyroX", "GyroY", "GyroZ",
	"MagX", "MagY", "MagZ",
	"Baro",
}

// String formats human readable line:
// "Counter: 12, AccX: 0.01, ..., Baro: 1013.25"
// Floats use shortest representation that round-trips float32.
func (f Frame) String() string {
	var sb strings.Builder
	sb.Grow(160)
	sb.WriteString("Counter: ")
	sb.WriteString(strconv.FormatUint(uint64(f.Counter), 10))
	for i, p := range f.floats() {
		sb.WriteString(", ")
		sb.WriteString(fieldNames[i])
		sb.WriteString(": ")
		sb.WriteString(FormatFloat(*p))
	}
	return sb.String()
}

func FormatFloat(x float32) string {
	return strconv.FormatFloat(float64(x), 'g', -1, 32)
}

func (f Frame) GoString() string { return fmt.Sprintf("telemetry.Frame{%s}", f.String()) }
