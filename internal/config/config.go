// Package config reads lorarelay HCL configuration.
// Defaults reproduce the reference receiver setup: 915MHz, SF12, BW125k, CR 4/5,
// sync word 0x8888, TCXO 1.8V on DIO3, SX126x on /dev/spidev0.0.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/lorarelay/hardware/sx126x"
	"github.com/temoto/lorarelay/helpers"
	"github.com/temoto/lorarelay/internal/forward"
	"github.com/temoto/lorarelay/internal/metrics"
	"github.com/temoto/lorarelay/log2"
)

const DefaultName = "lorarelay.hcl"

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	LogDebug bool `hcl:"log_debug"`

	Hardware struct {
		Sx126x sx126x.Config `hcl:"sx126x"`
	} `hcl:"hardware"`

	Radio Radio `hcl:"radio"`

	Relay struct {
		IdleWaitMs int `hcl:"idle_wait_ms"`
	} `hcl:"relay"`

	Forward forward.Config `hcl:"forward"`
	Metrics metrics.Config `hcl:"metrics"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Radio is modem configuration in human friendly units.
type Radio struct {
	FrequencyHz     int     `hcl:"frequency_hz"`
	SpreadingFactor int     `hcl:"spreading_factor"`
	BandwidthHz     int     `hcl:"bandwidth_hz"`
	CodingRate      int     `hcl:"coding_rate"` // denominator of 4/x
	Header          string  `hcl:"header"`      // explicit | implicit
	PreambleLength  int     `hcl:"preamble_length"`
	PayloadLength   int     `hcl:"payload_length"`
	CRC             bool    `hcl:"crc"`
	InvertIQ        bool    `hcl:"invert_iq"`
	SyncWord        int     `hcl:"sync_word"`
	RxGain          string  `hcl:"rx_gain"`      // power-saving | boosted
	TcxoVoltage     float64 `hcl:"tcxo_voltage"` // 0 disables TCXO
	TcxoDelayMs     int     `hcl:"tcxo_delay_ms"`
}

func Default() *Config {
	c := &Config{includeSeen: make(map[string]struct{})}
	c.Hardware.Sx126x = sx126x.Config{
		SpiBus:   "/dev/spidev0.0",
		PinChip:  "/dev/gpiochip0",
		PinReset: "22",
		PinBusy:  "23",
		PinIrq:   "5",
		RFSwitch: sx126x.RFSwitchBasic,
	}
	c.Radio = Radio{
		FrequencyHz:     915000000,
		SpreadingFactor: 12,
		BandwidthHz:     125000,
		CodingRate:      5,
		Header:          "explicit",
		PreambleLength:  16,
		PayloadLength:   2,
		CRC:             false,
		SyncWord:        0x8888,
		RxGain:          "power-saving",
		TcxoVoltage:     1.8,
		TcxoDelayMs:     10,
	}
	c.Forward = forward.Config{
		Sink:   forward.SinkWebsocket,
		URL:    forward.DefaultURL,
		Format: forward.FormatText,
	}
	return c
}

func (c *Config) IdleWait() time.Duration {
	return helpers.IntMillisecondDefault(c.Relay.IdleWaitMs, 0)
}

// Params converts to driver units, validating everything driver does not.
func (r *Radio) Params() (sx126x.Params, error) {
	p := sx126x.Params{
		CRC:         r.CRC,
		InvertIQ:    r.InvertIQ,
		TcxoVoltage: float32(r.TcxoVoltage),
		TcxoDelay:   time.Duration(r.TcxoDelayMs) * time.Millisecond,
	}
	switch {
	case r.FrequencyHz <= 0:
		return p, errors.NotValidf("radio frequency_hz=%d", r.FrequencyHz)
	case r.SpreadingFactor < 0 || r.SpreadingFactor > 0xff:
		return p, errors.NotValidf("radio spreading_factor=%d", r.SpreadingFactor)
	case r.BandwidthHz <= 0:
		return p, errors.NotValidf("radio bandwidth_hz=%d", r.BandwidthHz)
	case r.CodingRate < 0 || r.CodingRate > 0xff:
		return p, errors.NotValidf("radio coding_rate=%d", r.CodingRate)
	case r.PreambleLength < 0 || r.PreambleLength > 0xffff:
		return p, errors.NotValidf("radio preamble_length=%d", r.PreambleLength)
	case r.PayloadLength < 0 || r.PayloadLength > 0xff:
		return p, errors.NotValidf("radio payload_length=%d", r.PayloadLength)
	case r.SyncWord < 0 || r.SyncWord > 0xffff:
		return p, errors.NotValidf("radio sync_word=%d", r.SyncWord)
	case r.TcxoDelayMs < 0:
		return p, errors.NotValidf("radio tcxo_delay_ms=%d", r.TcxoDelayMs)
	}
	p.FrequencyHz = uint32(r.FrequencyHz)
	p.SpreadingFactor = uint8(r.SpreadingFactor)
	p.BandwidthHz = uint32(r.BandwidthHz)
	p.CodingRate = uint8(r.CodingRate)
	p.PreambleLength = uint16(r.PreambleLength)
	p.PayloadLength = uint8(r.PayloadLength)
	p.SyncWord = uint16(r.SyncWord)

	switch strings.ToLower(r.Header) {
	case "", "explicit":
		p.HeaderType = sx126x.HeaderExplicit
	case "implicit":
		p.HeaderType = sx126x.HeaderImplicit
	default:
		return p, errors.NotValidf("radio header=%s", r.Header)
	}
	switch strings.ToLower(r.RxGain) {
	case "", "power-saving":
		p.RxGain = sx126x.RxGainPowerSaving
	case "boosted":
		p.RxGain = sx126x.RxGainBoosted
	default:
		return p, errors.NotValidf("radio rx_gain=%s", r.RxGain)
	}
	return p, errors.Annotate(p.Validate(), "radio")
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		} else {
			log.Debugf("config optional source='%s' not found", source.Name)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig applies sources on top of Default() in order.
// Top level names are optional: missing file means built-in defaults.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := Default()
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name, Optional: true}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	if _, err := c.Radio.Params(); err != nil {
		return nil, errors.Annotate(err, "config")
	}
	return c, nil
}

func ReadConfigFile(log *log2.Log, path string) (*Config, error) {
	fs, err := NewOsFullReader(".")
	if err != nil {
		return nil, err
	}
	return ReadConfig(log, fs, path)
}
