//go:build linux

package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/config"
	"github.com/samsamfire/gocanfd/pkg/controller"
	"github.com/samsamfire/gocanfd/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameChan chan canfd.Frame

func (c frameChan) Handle(frame canfd.Frame) {
	c <- frame
}

type recordingBus struct {
	mu       sync.Mutex
	sent     []host.Frame
	listener host.FrameListener
}

func (b *recordingBus) Connect(...any) error { return nil }
func (b *recordingBus) Disconnect() error    { return nil }
func (b *recordingBus) Send(frame host.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, frame)
	return nil
}
func (b *recordingBus) Subscribe(listener host.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = listener
	return nil
}
func (b *recordingBus) subscribed() host.FrameListener {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listener
}
func (b *recordingBus) frames() []host.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]host.Frame(nil), b.sent...)
}

var testBus = &recordingBus{}

func init() {
	host.RegisterInterface("recording", func(channel string) (host.Bus, error) { return testBus, nil })
}

func loopbackConfig() *config.Config {
	cfg := config.Default()
	cfg.Controller.CtrlMode = controller.CtrlModeLoopback | controller.CtrlModeFD
	cfg.Controller.Data = bittiming.Params{Bitrate: 2_000_000}
	return cfg
}

func startSystem(t *testing.T, cfg *config.Config) (*system, context.CancelFunc) {
	t.Helper()
	s, err := newSystem(cfg, simOptions{enabled: true})
	require.Nil(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()
	require.Eventually(t, s.dev.Carrier, time.Second, time.Millisecond)
	stop := func() {
		cancel()
		assert.Nil(t, <-done)
		s.close()
	}
	return s, stop
}

func TestSystemLoopback(t *testing.T) {
	s, stop := startSystem(t, loopbackConfig())
	defer stop()
	rx := make(frameChan, 4)
	s.dev.SubscribeAll(rx)

	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	require.Nil(t, s.dev.Send(context.Background(), canfd.NewFrame(0x123, false, data)))
	select {
	case frame := <-rx:
		assert.EqualValues(t, 0x123, frame.ID)
		assert.True(t, frame.FD)
		assert.Equal(t, data, frame.Payload())
	case <-time.After(time.Second):
		t.Fatal("loopback frame not received")
	}
	assert.Eventually(t, func() bool { return s.dev.Stats().TxPackets == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, canfd.StateErrorActive, s.dev.State())
}

func TestSystemExport(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Host.Interface = "recording"
	s, stop := startSystem(t, cfg)
	defer stop()
	require.Eventually(t, func() bool { return testBus.subscribed() != nil }, time.Second, time.Millisecond)

	// a classic frame from the host is transmitted, looped back and exported
	testBus.subscribed().Handle(host.Frame{ID: 0x42, DLC: 2, Data: [8]byte{0xca, 0xfe}})
	assert.Eventually(t, func() bool { return len(testBus.frames()) == 1 }, time.Second, time.Millisecond)
	exported := testBus.frames()[0]
	assert.EqualValues(t, 0x42, exported.ID)
	assert.Equal(t, [8]byte{0xca, 0xfe}, exported.Data)

	// FD frames do not fit the host interface
	require.Nil(t, s.dev.Send(context.Background(), canfd.NewFrame(0x43, false, make([]byte, 32))))
	assert.Eventually(t, func() bool { return s.dev.Stats().RxPackets == 2 }, time.Second, time.Millisecond)
	assert.Len(t, testBus.frames(), 1)
}

func TestNewSystemInvalidTiming(t *testing.T) {
	cfg := config.Default()
	cfg.Controller.Nominal = bittiming.Params{BRP: 3, SJW: 1, PhaseSeg1: 1, PhaseSeg2: 1}
	_, err := newSystem(cfg, simOptions{enabled: true})
	assert.ErrorIs(t, err, canfd.ErrInvalidTiming)
}

func TestNewSystemUnknownInterface(t *testing.T) {
	cfg := config.Default()
	cfg.Host.Interface = "nope"
	_, err := newSystem(cfg, simOptions{enabled: true})
	assert.NotNil(t, err)
}

func TestDumpRegisters(t *testing.T) {
	s, err := newSystem(loopbackConfig(), simOptions{enabled: true})
	require.Nil(t, err)
	defer s.close()
	require.Nil(t, s.dev.Up())

	out := &bytes.Buffer{}
	dumpRegisters(out, s.hw)
	assert.Contains(t, out.String(), "MODE")
	assert.Contains(t, out.String(), "WORK|SELF_TEST|LBACK|AUTO_RETX|FDOE")
	assert.Contains(t, out.String(), "NBTP")
	assert.Contains(t, out.String(), "bitrate 0 sp")
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "RESET", modeString(0))
}
