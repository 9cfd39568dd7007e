package netdev

import (
	"context"
	"errors"
	"testing"
	"time"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/controller"
	"github.com/samsamfire/gocanfd/pkg/regs"
	"github.com/samsamfire/gocanfd/pkg/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock uint32

func (c fixedClock) Rate() uint32 { return uint32(c) }

type frameListener struct {
	frames chan canfd.Frame
}

func newFrameListener() *frameListener {
	return &frameListener{frames: make(chan canfd.Frame, 16)}
}

func (l *frameListener) Handle(frame canfd.Frame) {
	l.frames <- frame
}

func (l *frameListener) wait(t *testing.T) canfd.Frame {
	select {
	case frame := <-l.frames:
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}
	return canfd.Frame{}
}

func (l *frameListener) none(t *testing.T) {
	select {
	case frame := <-l.frames:
		t.Fatalf("unexpected frame %v", frame)
	case <-time.After(20 * time.Millisecond):
	}
}

type errorListener struct {
	frames chan canfd.ErrorFrame
}

func (l *errorListener) HandleError(frame canfd.ErrorFrame) {
	l.frames <- frame
}

func newDevice(t *testing.T, options Options, mode controller.CtrlMode) (*Device, *sim.Hardware) {
	hw := sim.New(0)
	hw.SetRecording(true)
	d := New(options)
	c, err := controller.New(hw, d, controller.Platform{Reset: hw, Clock: fixedClock(80_000_000)}, controller.Config{
		CtrlMode: mode,
		Nominal:  bittiming.Params{Bitrate: 500_000},
		Data:     bittiming.Params{Bitrate: 2_000_000},
	})
	require.Nil(t, err)
	d.Attach(c)
	require.Nil(t, d.Up())
	t.Cleanup(func() { _ = d.Down() })
	return d, hw
}

func TestUpNeedsController(t *testing.T) {
	d := New(Options{})
	assert.NotNil(t, d.Up())
	assert.Equal(t, canfd.StateStopped, d.State())
	assert.Equal(t, canfd.ErrNotRunning, d.Send(context.Background(), canfd.NewFrame(1, false, nil)))
}

func TestSendLoopback(t *testing.T) {
	d, _ := newDevice(t, Options{}, controller.CtrlModeLoopback|controller.CtrlModeFD)
	listener := newFrameListener()
	other := newFrameListener()
	d.Subscribe(0x123, false, listener)
	d.Subscribe(0x123, true, other)

	frame := canfd.NewFrame(0x123, false, make([]byte, 32))
	require.Nil(t, d.Send(context.Background(), frame))
	assert.Equal(t, regs.TxFinish|regs.RxFinish, d.Interrupt())
	assert.Equal(t, frame, listener.wait(t))
	listener.none(t)
	other.none(t)
	assert.False(t, d.QueueStopped())

	stats := d.Stats()
	assert.EqualValues(t, 1, stats.TxPackets)
	assert.EqualValues(t, 1, stats.RxPackets)
}

func TestReceiveOwn(t *testing.T) {
	d, hw := newDevice(t, Options{ReceiveOwn: true}, 0)
	listener := newFrameListener()
	d.SubscribeAll(listener)

	frame := canfd.NewFrame(0x10, false, []byte{1, 2})
	require.Nil(t, d.Send(context.Background(), frame))
	hw.Complete(canfd.Slot0)
	d.Interrupt()
	assert.Equal(t, frame, listener.wait(t))
}

func TestSendWaitsForCompletion(t *testing.T) {
	d, hw := newDevice(t, Options{}, 0)
	frame := canfd.NewFrame(0x10, false, []byte{1})
	require.Nil(t, d.Send(context.Background(), frame))
	assert.True(t, d.QueueStopped())
	assert.Equal(t, canfd.ErrQueueStopped, d.TrySend(frame))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Send(ctx, frame), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- d.Send(context.Background(), frame) }()
	time.Sleep(10 * time.Millisecond)
	hw.Complete(canfd.Slot0)
	d.Interrupt()
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not resume")
	}
	assert.Len(t, hw.Sent(), 2)
}

func TestBusOffAndRestart(t *testing.T) {
	d, hw := newDevice(t, Options{}, 0)
	errs := &errorListener{frames: make(chan canfd.ErrorFrame, 4)}
	d.SubscribeErrors(errs)

	hw.SetErrorCounters(256, 0)
	hw.SetState(regs.BusOff)
	hw.Raise(regs.ErrWarn)
	d.Interrupt()

	select {
	case frame := <-errs.frames:
		assert.True(t, frame.Is(canfd.ErrClassBusOff))
	case <-time.After(time.Second):
		t.Fatal("no error frame")
	}
	assert.False(t, d.Carrier())
	assert.Equal(t, canfd.StateBusOff, d.State())
	assert.ErrorIs(t, d.Send(context.Background(), canfd.NewFrame(1, false, nil)), canfd.ErrNotRunning)

	require.Nil(t, d.Restart())
	assert.True(t, d.Carrier())
	assert.Equal(t, canfd.StateErrorActive, d.State())
	assert.Equal(t, canfd.ErrNotBusOff, d.Restart())
}

func TestAutomaticRestart(t *testing.T) {
	d, hw := newDevice(t, Options{RestartDelay: 5 * time.Millisecond}, 0)
	hw.SetErrorCounters(256, 0)
	hw.SetState(regs.BusOff)
	hw.Raise(regs.ErrWarn)
	d.Interrupt()
	assert.Eventually(t, func() bool {
		return d.State() == canfd.StateErrorActive && d.Carrier()
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, d.Stats().Restarts)
}

func TestBacklogFull(t *testing.T) {
	d := New(Options{Backlog: 1})
	assert.Nil(t, d.DeliverFrame(canfd.NewFrame(1, false, nil)))
	assert.Equal(t, canfd.ErrNoBuffer, d.DeliverFrame(canfd.NewFrame(2, false, nil)))
	assert.Equal(t, canfd.ErrNoBuffer, d.DeliverErrorFrame(canfd.ErrorFrame{}))
}

func TestBacklogOverflowCountsDrops(t *testing.T) {
	d, hw := newDevice(t, Options{Backlog: 1}, 0)
	blocking := &blockingListener{release: make(chan struct{})}
	d.SubscribeAll(blocking)
	defer close(blocking.release)

	for i := 0; i < 3; i++ {
		require.Nil(t, hw.Receive(canfd.NewFrame(uint32(i), false, nil)))
		d.Interrupt()
	}
	assert.GreaterOrEqual(t, d.Stats().RxDropped, uint64(1))
}

type blockingListener struct {
	release chan struct{}
}

func (l *blockingListener) Handle(canfd.Frame) {
	<-l.release
}

func TestSubscribeDuplicateAndUnsubscribe(t *testing.T) {
	d := New(Options{})
	listener := newFrameListener()
	d.Subscribe(0x20, false, listener)
	d.Subscribe(0x20, false, listener)
	d.handle(event{frame: canfd.NewFrame(0x20, false, nil)})
	listener.wait(t)
	listener.none(t)

	d.Unsubscribe(0x20, false, listener)
	d.handle(event{frame: canfd.NewFrame(0x20, false, nil)})
	listener.none(t)
	assert.Empty(t, d.frameListeners)
}

func TestDownDrainsBacklog(t *testing.T) {
	d, hw := newDevice(t, Options{}, 0)
	listener := newFrameListener()
	d.SubscribeAll(listener)
	require.Nil(t, hw.Receive(canfd.NewFrame(0x1, false, nil)))
	d.Interrupt()
	require.Nil(t, d.Down())
	listener.wait(t)
	assert.False(t, d.Carrier())
	assert.True(t, errors.Is(d.Send(context.Background(), canfd.NewFrame(1, false, nil)), canfd.ErrNotRunning))
	assert.Equal(t, canfd.StateStopped, d.State())
}

func TestFailedSendPassesWakeOn(t *testing.T) {
	d, hw := newDevice(t, Options{}, 0)
	require.Nil(t, d.Send(context.Background(), canfd.NewFrame(0x10, false, []byte{1})))
	require.True(t, d.QueueStopped())

	invalid := make(chan error, 1)
	valid := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		invalid <- d.Send(ctx, canfd.NewFrame(0x800, false, nil))
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		valid <- d.Send(ctx, canfd.NewFrame(0x11, false, []byte{2}))
	}()
	time.Sleep(10 * time.Millisecond)

	hw.Complete(canfd.Slot0)
	d.Interrupt()

	select {
	case err := <-invalid:
		assert.ErrorIs(t, err, canfd.ErrInvalidFrame)
	case <-time.After(time.Second):
		t.Fatal("invalid frame sender still blocked")
	}
	select {
	case err := <-valid:
		assert.Nil(t, err)
	case <-time.After(time.Second):
		t.Fatal("valid frame sender still blocked")
	}
	sent := hw.Sent()
	require.Len(t, sent, 2)
	assert.EqualValues(t, 0x11, sent[1].ID)
}
