// Package system owns the main loop: fetch, decode, execute, trap, poll
// for a pending interrupt — the hart and the bus are components; this is
// the driver that ticks them.
package system

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"zemu/internal/bus"
	"zemu/internal/device"
	"zemu/internal/hart"
	"zemu/internal/trap"
)

type System struct {
	Hart *hart.Hart
	Bus  *bus.Bus
}

// New wires DRAM, CLINT, PLIC, UART and virtio into a bus, and the bus
// into a freshly reset hart.
func New(kernelImage, diskImage []byte, stdout io.Writer) *System {
	b := bus.New(
		bus.NewDram(kernelImage),
		device.NewClint(),
		device.NewPlic(),
		device.NewUart(stdout),
		device.NewVirtio(diskImage),
	)
	return &System{Hart: hart.New(b), Bus: b}
}

// StartUART hooks r up as the UART's host input byte source; this is the
// seam between the core UART device and the CLI wrapper that supplies
// actual terminal input.
func (s *System) StartUART(r io.Reader) {
	s.Bus.Uart.StartReceiving(r)
}

// ErrFatalTrap is returned by Run when the hart halted on a fatal
// exception: a misaligned or access-fault trap.
var ErrFatalTrap = errors.New("halted on fatal guest exception")

// Tick runs exactly one iteration of the main loop. halt reports whether a
// fatal exception was just recorded and the emulator must stop. A host-level
// impossible state (e.g. a malformed virtio descriptor chain) surfaces as a
// non-nil error rather than crashing the process.
func (s *System) Tick(l log.Logger) (halt bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host fault: %v", r)
			halt = true
		}
	}()

	h := s.Hart
	pc := h.Pc

	instr, ferr := h.Fetch()
	if ferr != nil {
		exc := ferr.(trap.Exception)
		h.TakeTrap(exc, true, 0)
		if exc.Fatal() {
			l.Crit("fatal fetch exception", "pc", hexutil.EncodeUint64(pc), "cause", exc.Error())
			return true, nil
		}
		return false, nil
	}

	h.Pc += 4
	if eerr := h.Execute(instr); eerr != nil {
		exc := eerr.(trap.Exception)
		h.TakeTrap(exc, true, 0)
		if exc.Fatal() {
			l.Crit("fatal execute exception", "pc", hexutil.EncodeUint64(pc), "cause", exc.Error())
			return true, nil
		}
	}

	if irq, ok := h.CheckPendingInterrupt(); ok {
		l.Trace("delivering interrupt", "irq", irq.String())
		h.TakeTrap(0, false, irq)
	}
	return false, nil
}

// Run ticks the hart until ctx is cancelled, a fatal exception halts the
// emulator, or the UART's host input source runs dry.
func (s *System) Run(ctx context.Context, l log.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Bus.Uart.Closed():
			return nil
		default:
		}
		halt, err := s.Tick(l)
		if err != nil {
			return err
		}
		if halt {
			return ErrFatalTrap
		}
	}
}
