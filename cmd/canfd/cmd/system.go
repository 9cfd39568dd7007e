//go:build linux

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	canfd "github.com/samsamfire/gocanfd"
	"github.com/samsamfire/gocanfd/pkg/config"
	"github.com/samsamfire/gocanfd/pkg/controller"
	"github.com/samsamfire/gocanfd/pkg/host"
	_ "github.com/samsamfire/gocanfd/pkg/host/socketcan"
	_ "github.com/samsamfire/gocanfd/pkg/host/virtual"
	"github.com/samsamfire/gocanfd/pkg/netdev"
	"github.com/samsamfire/gocanfd/pkg/platform"
	"github.com/samsamfire/gocanfd/pkg/regs"
	"github.com/samsamfire/gocanfd/pkg/sim"
	"github.com/samsamfire/gocanfd/pkg/uio"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	simClockHz   = 80_000_000
	pollInterval = time.Millisecond
	sendTimeout  = 100 * time.Millisecond
)

type simOptions struct {
	enabled bool
	bus     string // virtual bus the simulated controller is attached to
}

// system is a controller with everything around it : registers, interrupt
// source, upper device and optional host interfaces
type system struct {
	cfg      *config.Config
	mmio     *regs.MMIO
	hw       *sim.Hardware
	uio      *uio.Device
	ctrl     *controller.Controller
	dev      *netdev.Device
	export   host.Bus
	downlink *host.Downlink
	simBus   host.Bus
}

func newSystem(cfg *config.Config, simOpts simOptions) (s *system, err error) {
	s = &system{cfg: cfg}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	var accessor regs.Accessor
	p := controller.Platform{Clock: platform.FixedClock(cfg.Device.ClockHz)}
	if simOpts.enabled {
		if cfg.Device.ClockHz == 0 {
			p.Clock = platform.FixedClock(simClockHz)
		}
		s.hw = sim.New(sim.DefaultRxFrames)
		s.hw.SetAutoComplete(true)
		accessor = s.hw
		p.Reset = s.hw
	} else {
		s.mmio, err = regs.Map(cfg.Device.Mem, int64(cfg.Device.Base), int(cfg.Device.Size))
		if err != nil {
			return nil, err
		}
		accessor = s.mmio
		p.Reset = platform.NopReset{}
		if cfg.Device.ResetPath != "" {
			p.Reset = platform.NewSysfsReset(cfg.Device.ResetPath)
		}
		if cfg.Device.PowerPath != "" {
			p.Power = platform.NewSysfsPower(cfg.Device.PowerPath)
		}
		if cfg.Device.UIO != "" {
			if s.uio, err = uio.Open(cfg.Device.UIO); err != nil {
				return nil, err
			}
		}
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		accessor = regs.NewTrace(accessor, nil)
	}

	s.dev = netdev.New(netdev.Options{
		Backlog:      cfg.Host.Backlog,
		ReceiveOwn:   cfg.Host.ReceiveOwn,
		RestartDelay: cfg.Host.RestartDelay,
	})
	if s.ctrl, err = controller.New(accessor, s.dev, p, cfg.Controller); err != nil {
		return nil, err
	}
	s.dev.Attach(s.ctrl)

	if simOpts.enabled && simOpts.bus != "" {
		if s.simBus, err = connect("virtual", simOpts.bus); err != nil {
			return nil, err
		}
	}
	if cfg.Host.Interface != "" {
		if s.export, err = connect(cfg.Host.Interface, cfg.Host.Channel); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func connect(iface string, channel string) (host.Bus, error) {
	bus, err := host.NewBus(iface, channel)
	if err != nil {
		return nil, err
	}
	if err := bus.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to %v %v : %w", iface, channel, err)
	}
	return bus, nil
}

// Frames seen on the simulated bus are received by the simulated hardware
type simPeer struct {
	hw *sim.Hardware
}

func (p *simPeer) Handle(frame host.Frame) {
	if err := p.hw.Receive(host.ToFrame(frame)); err != nil {
		log.Debugf("[SIM] frame %x not received : %v", frame.ID, err)
	}
}

// Start the device and wire the host interfaces, then serve interrupts until ctx is done
func (s *system) run(ctx context.Context) error {
	if s.simBus != nil {
		s.hw.OnTransmit(func(frame canfd.Frame) {
			f, err := host.FromFrame(frame)
			if err != nil {
				log.Debugf("[SIM] %v", err)
				return
			}
			if err := s.simBus.Send(f); err != nil {
				log.Warnf("[SIM] %v", err)
			}
		})
		if err := s.simBus.Subscribe(&simPeer{hw: s.hw}); err != nil {
			return err
		}
	}
	if err := s.dev.Up(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	if s.export != nil {
		s.dev.SubscribeAll(host.NewUplink(s.export))
		s.downlink = host.NewDownlink(ctx, s.dev, sendTimeout)
		if err := s.export.Subscribe(s.downlink); err != nil {
			return err
		}
	}
	g.Go(func() error { return s.serveInterrupts(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (s *system) serveInterrupts(ctx context.Context) error {
	switch {
	case s.hw != nil:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.hw.IRQ():
				s.dev.Interrupt()
			}
		}
	case s.uio != nil:
		for {
			if err := s.uio.Enable(); err != nil {
				return err
			}
			if _, err := s.uio.Wait(ctx); err != nil {
				return err
			}
			s.dev.Interrupt()
		}
	default:
		log.Infof("[CANFD] no interrupt device, polling every %v", pollInterval)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.dev.Interrupt()
			}
		}
	}
}

func (s *system) logStats() {
	stats := s.dev.Stats()
	fields := log.Fields{
		"state":      s.dev.State(),
		"rx_packets": stats.RxPackets,
		"tx_packets": stats.TxPackets,
		"rx_dropped": stats.RxDropped,
		"bus_error":  stats.BusError,
		"restarts":   stats.Restarts,
	}
	if s.downlink != nil {
		_, dropped := s.downlink.Counters()
		fields["host_dropped"] = dropped
	}
	log.WithFields(fields).Info("[CANFD] statistics")
}

func (s *system) close() {
	if s.dev != nil {
		if err := s.dev.Down(); err != nil {
			log.Warnf("[CANFD] %v", err)
		}
	}
	for _, bus := range []host.Bus{s.export, s.simBus} {
		if bus != nil {
			if err := bus.Disconnect(); err != nil {
				log.Warnf("[HOST] %v", err)
			}
		}
	}
	if s.uio != nil {
		s.uio.Close()
	}
	if s.mmio != nil {
		s.mmio.Close()
	}
}
