package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// FixedClock is a clock source with a known rate in Hz
type FixedClock uint32

func (c FixedClock) Rate() uint32 {
	return uint32(c)
}

// Runtime PM control values
const (
	powerOn   = "on"
	powerAuto = "auto"
)

const (
	DefaultPowerAttempts = 5
	DefaultPowerDelay    = 10 * time.Millisecond
)

// SysfsPower keeps a device powered through its runtime PM "control" file.
// Acquire and Release are counted, the device is only let back to automatic
// power management when every Acquire has been released.
type SysfsPower struct {
	mu       sync.Mutex
	path     string
	count    int
	attempts uint
	delay    time.Duration
	write    func(path string, value []byte) error
}

// dir is the device power directory, e.g. /sys/devices/platform/fe570000.can/power
func NewSysfsPower(dir string) *SysfsPower {
	return &SysfsPower{
		path:     filepath.Join(dir, "control"),
		attempts: DefaultPowerAttempts,
		delay:    DefaultPowerDelay,
		write: func(path string, value []byte) error {
			return os.WriteFile(path, value, 0644)
		},
	}
}

// Busy or interrupted writes are retried, anything else fails immediately
func transient(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

func (p *SysfsPower) set(value string) error {
	return retry.Do(func() error {
		return p.write(p.path, []byte(value))
	},
		retry.Attempts(p.attempts),
		retry.Delay(p.delay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(transient),
		retry.OnRetry(func(n uint, err error) {
			log.Debugf("[PLATFORM] retry #%d writing %v to %v : %v", n, value, p.path, err)
		}),
		retry.LastErrorOnly(true),
	)
}

func (p *SysfsPower) Acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		if err := p.set(powerOn); err != nil {
			return fmt.Errorf("power on %v : %w", p.path, err)
		}
	}
	p.count++
	return nil
}

func (p *SysfsPower) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.count == 0 {
		log.Warnf("[PLATFORM] unbalanced power release on %v", p.path)
		return
	}
	p.count--
	if p.count > 0 {
		return
	}
	if err := p.set(powerAuto); err != nil {
		log.Errorf("[PLATFORM] power release %v : %v", p.path, err)
	}
}

// Number of outstanding Acquire calls
func (p *SysfsPower) Users() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// SysfsReset drives a reset line exposed as a writable file, "1" asserts it
type SysfsReset struct {
	path string
}

func NewSysfsReset(path string) *SysfsReset {
	return &SysfsReset{path: path}
}

func (r *SysfsReset) Assert() {
	r.write("1")
}

func (r *SysfsReset) Deassert() {
	r.write("0")
}

func (r *SysfsReset) write(value string) {
	if err := os.WriteFile(r.path, []byte(value), 0644); err != nil {
		log.Errorf("[PLATFORM] reset %v : %v", r.path, err)
	}
}

// NopReset is used when the controller has no controllable reset line
type NopReset struct{}

func (NopReset) Assert()   {}
func (NopReset) Deassert() {}
