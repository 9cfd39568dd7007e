package regs

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	log "github.com/sirupsen/logrus"
)

// Accessor reads and writes controller registers.
// Accesses are performed in program order, some reads have side effects
// (RxFRD pops the receive fifo) so a register must never be read twice
// to obtain the same value.
type Accessor interface {
	Read(r Reg) uint32
	Write(r Reg, value uint32)
}

// MMIO accesses registers inside a memory mapped window
type MMIO struct {
	mem   []byte
	unmap func() error
}

// Wrap an already mapped register window. The window must be 4 byte aligned
// and at least [Size] bytes long.
func NewMMIO(mem []byte) (*MMIO, error) {
	if len(mem) < Size {
		return nil, fmt.Errorf("register window too small : %d < %d", len(mem), Size)
	}
	if uintptr(unsafe.Pointer(&mem[0]))%4 != 0 {
		return nil, fmt.Errorf("register window is not 32 bit aligned")
	}
	return &MMIO{mem: mem}, nil
}

func (m *MMIO) word(r Reg) *uint32 {
	if int(r)+4 > len(m.mem) || r%4 != 0 {
		panic(fmt.Sprintf("invalid register access at %v", r))
	}
	return (*uint32)(unsafe.Pointer(&m.mem[r]))
}

// Atomic accesses are not reordered by the compiler or the cpu
func (m *MMIO) Read(r Reg) uint32 {
	return atomic.LoadUint32(m.word(r))
}

func (m *MMIO) Write(r Reg, value uint32) {
	atomic.StoreUint32(m.word(r), value)
}

// Release the mapping if it was created by [Map]
func (m *MMIO) Close() error {
	if m.unmap == nil {
		return nil
	}
	err := m.unmap()
	m.unmap = nil
	m.mem = nil
	return err
}

// Trace logs every register access before forwarding it
type Trace struct {
	Accessor
	logger *log.Entry
}

func NewTrace(a Accessor, logger *log.Entry) *Trace {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Trace{Accessor: a, logger: logger}
}

func (t *Trace) Read(r Reg) uint32 {
	value := t.Accessor.Read(r)
	t.logger.Tracef("[REGS] read  %-12v 0x%08x", r, value)
	return value
}

func (t *Trace) Write(r Reg, value uint32) {
	t.logger.Tracef("[REGS] write %-12v 0x%08x", r, value)
	t.Accessor.Write(r, value)
}
