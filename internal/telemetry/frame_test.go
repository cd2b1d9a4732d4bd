package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/lorarelay/helpers"
)

func tokens(b []byte) []string {
	ts := make([]string, len(b))
	for i, x := range b {
		ts[i] = strconv.Itoa(int(x))
	}
	return ts
}

func TestDecodeWrongLength(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 4, 43, 45, 88, 255} {
		b := make([]byte, n)
		_, ok := DecodeBytes(b)
		assert.False(t, ok, "len=%d", n)

		f, ok, err := Decode(tokens(b))
		assert.False(t, ok, "len=%d", n)
		assert.NoError(t, err, "len=%d", n)
		assert.Equal(t, Frame{}, f)
	}
	// garbage in wrong-length input is not even parsed
	_, ok, err := Decode([]string{"x", "y"})
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestDecodeZeroSensors(t *testing.T) {
	t.Parallel()

	b := make([]byte, FrameLength)
	b[3] = 1
	f, ok, err := Decode(tokens(b))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), f.Counter)
	for i, p := range f.floats() {
		assert.Equal(t, float32(0), *p, "field=%s", fieldNames[i])
		assert.Equal(t, uint32(0), math.Float32bits(*p), "field=%s negative zero", fieldNames[i])
	}
}

func TestByteOrderAsymmetry(t *testing.T) {
	t.Parallel()

	b := []byte{0x00, 0x00, 0x00, 0x01}
	assert.Equal(t, uint32(1), Uint32(b))
	// float path reverses to 01 00 00 00, bit pattern 0x01000000
	assert.Equal(t, uint32(0x01000000), math.Float32bits(Float32(b)))
	assert.Equal(t, math.Float32frombits(0x01000000), Float32(b))

	one := helpers.MustHex("0000803f")
	assert.Equal(t, float32(1.0), Float32(one))
	assert.Equal(t, uint32(0x0000803f), Uint32(one))
	assert.Equal(t, uint32(0x3f800000), math.Float32bits(Float32(one)))
}

func TestDecodeLayout(t *testing.T) {
	t.Parallel()

	frame := helpers.MustHex("0000002a" +
		"0000c03f 00000000 000080bf" + // 1.5 0 -1
		"00000040 00004040 00008040" + // 2 3 4
		"0000a040 0000c040 0000e040" + // 5 6 7
		"00507d44") // 1013.25
	f, ok := DecodeBytes(frame)
	require.True(t, ok)
	assert.Equal(t, Frame{
		Counter: 42,
		AccX:    1.5, AccY: 0, AccZ: -1,
		GyroX: 2, GyroY: 3, GyroZ: 4,
		MagX: 5, MagY: 6, MagZ: 7,
		Baro: 1013.25,
	}, f)
	assert.Equal(t, "Counter: 42, AccX: 1.5, AccY: 0, AccZ: -1, GyroX: 2, GyroY: 3, GyroZ: 4, MagX: 5, MagY: 6, MagZ: 7, Baro: 1013.25", f.String())
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	rnd := helpers.RandUnix()
	check := func(f Frame) {
		b := Encode(f)
		g, ok, err := Decode(tokens(b[:]))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, f.Counter, g.Counter)
		fp, gp := f.floats(), g.floats()
		for i := range fp {
			assert.Equal(t, math.Float32bits(*fp[i]), math.Float32bits(*gp[i]), "field=%s", fieldNames[i])
		}
	}
	check(Frame{})
	check(Frame{Counter: math.MaxUint32, AccX: float32(math.Inf(-1)), Baro: float32(math.NaN()), MagZ: -0.0})
	for i := 0; i < 200; i++ {
		var f Frame
		f.Counter = rnd.Uint32()
		for _, p := range f.floats() {
			*p = math.Float32frombits(rnd.Uint32())
		}
		check(f)
	}
}

func TestDecodeBadToken(t *testing.T) {
	t.Parallel()

	cases := []string{"x", "-1", "256", "1.5", ""}
	for _, bad := range cases {
		ts := tokens(make([]byte, FrameLength))
		ts[17] = bad
		_, ok, err := Decode(ts)
		assert.False(t, ok, "token=%q", bad)
		require.Error(t, err, "token=%q", bad)
		assert.True(t, errors.IsNotValid(errors.Cause(err)), "token=%q err=%v", bad, err)
		assert.Contains(t, err.Error(), "token[17]")
	}
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.1", FormatFloat(0.1))
	assert.Equal(t, "1.5", FormatFloat(1.5))
	assert.Equal(t, "-9.81", FormatFloat(-9.81))
	assert.Equal(t, "1e-05", FormatFloat(0.00001))
	assert.Equal(t, "NaN", FormatFloat(float32(math.NaN())))
	assert.True(t, strings.HasPrefix(Frame{Counter: 7}.String(), "Counter: 7, AccX: 0,"))
}

func TestJSON(t *testing.T) {
	t.Parallel()

	f := Frame{Counter: 42, AccX: 1.5, Baro: 1013.25}
	b, err := json.Marshal(f)
	require.NoError(t, err)
	var r Record
	require.NoError(t, json.Unmarshal(b, &r))
	assert.Equal(t, f.Record(), r)
	assert.Equal(t, JSONVersion, r.V)
	assert.Contains(t, string(b), `"counter":42`)
	assert.Contains(t, string(b), `"acc_x":1.5`)

	_, err = json.Marshal(Frame{Baro: float32(math.NaN())})
	assert.Error(t, err)
}
