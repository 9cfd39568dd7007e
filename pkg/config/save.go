package config

import (
	"fmt"
	"io"
	"strconv"

	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/controller"
	"gopkg.in/ini.v1"
)

type iniKey struct {
	section *ini.Section
	name    string
	value   string
}

func formatUint(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func (cfg *Config) toIni() (*ini.File, error) {
	file := ini.Empty()
	device, _ := file.NewSection(SectionDevice)
	nominal, _ := file.NewSection(SectionBitTiming)

	keys := []iniKey{
		{device, "mem", cfg.Device.Mem},
		{device, "base", fmt.Sprintf("0x%x", cfg.Device.Base)},
		{device, "size", fmt.Sprintf("0x%x", cfg.Device.Size)},
		{device, "clock_hz", formatUint(cfg.Device.ClockHz)},
		{device, "uio", cfg.Device.UIO},
		{device, "power", cfg.Device.PowerPath},
		{device, "reset", cfg.Device.ResetPath},
	}
	keys = append(keys, timingKeys(nominal, cfg.Controller.Nominal)...)
	if cfg.Controller.Data.Bitrate != 0 || cfg.Controller.Data.BRP != 0 {
		data, _ := file.NewSection(SectionDataTiming)
		keys = append(keys, timingKeys(data, cfg.Controller.Data)...)
	}

	ctrlMode, _ := file.NewSection(SectionCtrlMode)
	host, _ := file.NewSection(SectionHost)
	logging, _ := file.NewSection(SectionLog)
	mode := cfg.Controller.CtrlMode
	keys = append(keys,
		iniKey{ctrlMode, "fd", strconv.FormatBool(mode&controller.CtrlModeFD != 0)},
		iniKey{ctrlMode, "loopback", strconv.FormatBool(mode&controller.CtrlModeLoopback != 0)},
		iniKey{ctrlMode, "triple_sampling", strconv.FormatBool(mode&controller.CtrlModeTripleSampling != 0)},
		iniKey{host, "interface", cfg.Host.Interface},
		iniKey{host, "channel", cfg.Host.Channel},
		iniKey{host, "receive_own", strconv.FormatBool(cfg.Host.ReceiveOwn)},
		iniKey{host, "backlog", strconv.Itoa(cfg.Host.Backlog)},
		iniKey{host, "restart_delay", cfg.Host.RestartDelay.String()},
		iniKey{logging, "level", cfg.LogLevel.String()},
	)

	for _, k := range keys {
		if _, err := k.section.NewKey(k.name, k.value); err != nil {
			return nil, err
		}
	}
	return file, nil
}

// Raw segments are written when known, the bitrate otherwise
func timingKeys(section *ini.Section, p bittiming.Params) []iniKey {
	keys := []iniKey{{section, "triple_sampling", strconv.FormatBool(p.TripleSampling)}}
	if p.BRP != 0 {
		return append(keys,
			iniKey{section, "brp", formatUint(p.BRP)},
			iniKey{section, "sjw", formatUint(p.SJW)},
			iniKey{section, "prop_seg", formatUint(p.PropSeg)},
			iniKey{section, "phase_seg1", formatUint(p.PhaseSeg1)},
			iniKey{section, "phase_seg2", formatUint(p.PhaseSeg2)},
		)
	}
	keys = append(keys, iniKey{section, "bitrate", formatUint(p.Bitrate)})
	if p.SamplePoint != 0 {
		keys = append(keys, iniKey{section, "sample_point", strconv.FormatFloat(float64(p.SamplePoint)/1000, 'f', -1, 64)})
	}
	if p.SJW != 0 {
		keys = append(keys, iniKey{section, "sjw", formatUint(p.SJW)})
	}
	return keys
}

// Write the configuration in ini format
func (cfg *Config) WriteTo(w io.Writer) (int64, error) {
	file, err := cfg.toIni()
	if err != nil {
		return 0, err
	}
	return file.WriteTo(w)
}

func (cfg *Config) Save(path string) error {
	file, err := cfg.toIni()
	if err != nil {
		return err
	}
	return file.SaveTo(path)
}
