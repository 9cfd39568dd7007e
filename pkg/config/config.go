package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/controller"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

const (
	SectionDevice     = "device"
	SectionBitTiming  = "bittiming"
	SectionDataTiming = "data_bittiming"
	SectionCtrlMode   = "ctrlmode"
	SectionHost       = "host"
	SectionLog        = "log"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Device describes where the controller lives
type Device struct {
	Mem       string // register window device, e.g. /dev/mem or /dev/uio0
	Base      uint64 // physical base of the register window
	Size      uint64 // size of the register window
	UIO       string // interrupt device, polled if empty
	ClockHz   uint32
	PowerPath string // runtime PM directory of the device
	ResetPath string // reset control file, optional
}

// Host interface the controller frames are exported to
type Host struct {
	Interface    string // registered host interface type, no export if empty
	Channel      string
	ReceiveOwn   bool
	Backlog      int
	RestartDelay time.Duration
}

type Config struct {
	Device     Device
	Controller controller.Config
	Host       Host
	LogLevel   log.Level
}

// Default configuration, 500 kbit/s classic CAN
func Default() *Config {
	return &Config{
		Device:     Device{Size: 0x1000},
		Controller: controller.Config{Nominal: bittiming.Params{Bitrate: 500_000}},
		LogLevel:   log.InfoLevel,
	}
}

// Load a configuration from a file path or raw []byte, missing keys keep their default value
func Load(source any) (*Config, error) {
	file, err := ini.Load(source)
	if err != nil {
		return nil, err
	}
	return parse(file)
}

func parse(file *ini.File) (*Config, error) {
	cfg := Default()
	var err error

	device := file.Section(SectionDevice)
	cfg.Device.Mem = device.Key("mem").String()
	if cfg.Device.Base, err = parseUint(device, "base", cfg.Device.Base, 64); err != nil {
		return nil, err
	}
	if cfg.Device.Size, err = parseUint(device, "size", cfg.Device.Size, 64); err != nil {
		return nil, err
	}
	clockHz, err := parseUint(device, "clock_hz", 0, 32)
	if err != nil {
		return nil, err
	}
	cfg.Device.ClockHz = uint32(clockHz)
	cfg.Device.UIO = device.Key("uio").String()
	cfg.Device.PowerPath = device.Key("power").String()
	cfg.Device.ResetPath = device.Key("reset").String()

	if file.HasSection(SectionBitTiming) {
		if cfg.Controller.Nominal, err = parseTiming(file.Section(SectionBitTiming)); err != nil {
			return nil, err
		}
	}
	if file.HasSection(SectionDataTiming) {
		if cfg.Controller.Data, err = parseTiming(file.Section(SectionDataTiming)); err != nil {
			return nil, err
		}
	}

	ctrlMode := file.Section(SectionCtrlMode)
	for _, flag := range []struct {
		key  string
		mode controller.CtrlMode
	}{
		{"fd", controller.CtrlModeFD},
		{"loopback", controller.CtrlModeLoopback},
		{"triple_sampling", controller.CtrlModeTripleSampling},
	} {
		if !ctrlMode.HasKey(flag.key) {
			continue
		}
		enabled, err := ctrlMode.Key(flag.key).Bool()
		if err != nil {
			return nil, fmt.Errorf("%w : [%v] %v : %v", ErrInvalidConfig, SectionCtrlMode, flag.key, err)
		}
		if enabled {
			cfg.Controller.CtrlMode |= flag.mode
		}
	}
	if cfg.Controller.CtrlMode&controller.CtrlModeFD != 0 && cfg.Controller.Data.Bitrate == 0 && cfg.Controller.Data.BRP == 0 {
		return nil, fmt.Errorf("%w : fd mode without [%v]", ErrInvalidConfig, SectionDataTiming)
	}

	host := file.Section(SectionHost)
	cfg.Host.Interface = host.Key("interface").String()
	cfg.Host.Channel = host.Key("channel").String()
	cfg.Host.ReceiveOwn = host.Key("receive_own").MustBool(false)
	cfg.Host.Backlog = host.Key("backlog").MustInt(0)
	if host.HasKey("restart_delay") {
		if cfg.Host.RestartDelay, err = host.Key("restart_delay").Duration(); err != nil {
			return nil, fmt.Errorf("%w : [%v] restart_delay : %v", ErrInvalidConfig, SectionHost, err)
		}
	}

	if level := file.Section(SectionLog).Key("level").String(); level != "" {
		if cfg.LogLevel, err = log.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("%w : %v", ErrInvalidConfig, err)
		}
	}
	return cfg, nil
}

// Timing is given either as raw segments (brp present) or as a bitrate with an
// optional sample point (fraction of the bit, e.g. 0.875)
func parseTiming(section *ini.Section) (bittiming.Params, error) {
	p := bittiming.Params{}
	p.TripleSampling = section.Key("triple_sampling").MustBool(false)
	if section.HasKey("brp") {
		fields := []struct {
			key   string
			value *uint32
		}{
			{"brp", &p.BRP},
			{"sjw", &p.SJW},
			{"prop_seg", &p.PropSeg},
			{"phase_seg1", &p.PhaseSeg1},
			{"phase_seg2", &p.PhaseSeg2},
		}
		for _, field := range fields {
			v, err := parseUint(section, field.key, 0, 32)
			if err != nil {
				return p, err
			}
			*field.value = uint32(v)
		}
		return p, nil
	}
	bitrate, err := parseUint(section, "bitrate", 0, 32)
	if err != nil {
		return p, err
	}
	if bitrate == 0 {
		return p, fmt.Errorf("%w : [%v] needs bitrate or brp", ErrInvalidConfig, section.Name())
	}
	p.Bitrate = uint32(bitrate)
	if section.HasKey("sample_point") {
		sp, err := section.Key("sample_point").Float64()
		if err != nil || sp <= 0 || sp >= 1 {
			return p, fmt.Errorf("%w : [%v] sample_point must be in ]0,1[", ErrInvalidConfig, section.Name())
		}
		p.SamplePoint = uint32(math.Round(sp * 1000))
	}
	sjw, err := parseUint(section, "sjw", 0, 32)
	if err != nil {
		return p, err
	}
	p.SJW = uint32(sjw)
	return p, nil
}

// Accepts decimal, 0x hex and 0o octal notations
func parseUint(section *ini.Section, key string, defaultValue uint64, bitSize int) (uint64, error) {
	if !section.HasKey(key) {
		return defaultValue, nil
	}
	v, err := strconv.ParseUint(section.Key(key).String(), 0, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%w : [%v] %v : %v", ErrInvalidConfig, section.Name(), key, err)
	}
	return v, nil
}
