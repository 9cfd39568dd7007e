package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/controller"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
[device]
mem = /dev/mem
base = 0xfe570000
size = 0x1000
clock_hz = 80000000
uio = /dev/uio0
power = /sys/devices/platform/fe570000.can/power

[bittiming]
bitrate = 1000000
sample_point = 0.8

[data_bittiming]
brp = 2
sjw = 3
prop_seg = 5
phase_seg1 = 6
phase_seg2 = 4

[ctrlmode]
fd = true
loopback = false
triple_sampling = yes

[host]
interface = virtual
channel = localhost:18888
receive_own = true
restart_delay = 100ms

[log]
level = debug
`

func TestLoadFull(t *testing.T) {
	cfg, err := Load([]byte(fullConfig))
	require.Nil(t, err)

	assert.Equal(t, "/dev/mem", cfg.Device.Mem)
	assert.EqualValues(t, 0xfe570000, cfg.Device.Base)
	assert.EqualValues(t, 0x1000, cfg.Device.Size)
	assert.EqualValues(t, 80_000_000, cfg.Device.ClockHz)
	assert.Equal(t, "/dev/uio0", cfg.Device.UIO)
	assert.Empty(t, cfg.Device.ResetPath)

	assert.Equal(t, bittiming.Params{Bitrate: 1_000_000, SamplePoint: 800}, cfg.Controller.Nominal)
	assert.Equal(t, bittiming.Params{BRP: 2, SJW: 3, PropSeg: 5, PhaseSeg1: 6, PhaseSeg2: 4}, cfg.Controller.Data)
	assert.Equal(t, controller.CtrlModeFD|controller.CtrlModeTripleSampling, cfg.Controller.CtrlMode)

	assert.Equal(t, Host{Interface: "virtual", Channel: "localhost:18888", ReceiveOwn: true, RestartDelay: 100 * time.Millisecond}, cfg.Host)
	assert.Equal(t, log.DebugLevel, cfg.LogLevel)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte("[device]\nclock_hz = 24000000\n"))
	require.Nil(t, err)
	assert.EqualValues(t, 500_000, cfg.Controller.Nominal.Bitrate)
	assert.Zero(t, cfg.Controller.CtrlMode)
	assert.EqualValues(t, 0x1000, cfg.Device.Size)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel)
	assert.Empty(t, cfg.Host.Interface)
}

func TestLoadErrors(t *testing.T) {
	invalid := map[string]string{
		"bad base":          "[device]\nbase = nope\n",
		"clock overflow":    "[device]\nclock_hz = 0x100000000\n",
		"timing incomplete": "[bittiming]\nsample_point = 0.8\n",
		"sample point":      "[bittiming]\nbitrate = 500000\nsample_point = 87.5\n",
		"fd without data":   "[ctrlmode]\nfd = true\n",
		"bad flag":          "[ctrlmode]\nloopback = maybe\n",
		"bad delay":         "[host]\nrestart_delay = soon\n",
		"bad level":         "[log]\nlevel = loud\n",
	}
	for name, content := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.NotNil(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	cfg, err := Load([]byte(fullConfig))
	require.Nil(t, err)
	path := filepath.Join(t.TempDir(), "canfd.ini")
	require.Nil(t, cfg.Save(path))

	loaded, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWriteTo(t *testing.T) {
	cfg := Default()
	cfg.Device.ClockHz = 100_000_000
	buf := &bytes.Buffer{}
	_, err := cfg.WriteTo(buf)
	require.Nil(t, err)
	assert.Contains(t, buf.String(), "[bittiming]")
	assert.Contains(t, buf.String(), "500000")
	assert.NotContains(t, buf.String(), "[data_bittiming]")

	loaded, err := Load(buf.Bytes())
	require.Nil(t, err)
	assert.Equal(t, cfg, loaded)
}
