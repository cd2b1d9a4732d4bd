package telemetry

import (
	"encoding/json"

	"github.com/juju/errors"
)

// JSONVersion is bumped on any incompatible change to Record.
const JSONVersion = 1

// Record is structured wire form of Frame, opt-in alternative to the text line.
type Record struct {
	V       int     `json:"v"`
	Counter uint32  `json:"counter"`
	AccX    float32 `json:"acc_x"`
	AccY    float32 `json:"acc_y"`
	AccZ    float32 `json:"acc_z"`
	GyroX   float32 `json:"gyro_x"`
	GyroY   float32 `json:"gyro_y"`
	GyroZ   float32 `json:"gyro_z"`
	MagX    float32 `json:"mag_x"`
	MagY    float32 `json:"mag_y"`
	MagZ    float32 `json:"mag_z"`
	Baro    float32 `json:"baro"`
}

func (f Frame) Record() Record {
	return Record{
		V:       JSONVersion,
		Counter: f.Counter,
		AccX:    f.AccX, AccY: f.AccY, AccZ: f.AccZ,
		GyroX: f.GyroX, GyroY: f.GyroY, GyroZ: f.GyroZ,
		MagX: f.MagX, MagY: f.MagY, MagZ: f.MagZ,
		Baro: f.Baro,
	}
}

// MarshalJSON fails on NaN/Inf sensor values, JSON has no representation for them.
func (f Frame) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(f.Record())
	return b, errors.Annotatef(err, "telemetry json counter=%d", f.Counter)
}
