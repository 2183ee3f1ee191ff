// Package hart implements the interpreter core: 32 integer registers, the
// program counter, the CSR file, the current privilege mode, the Sv39
// walker, and fetch/decode/execute for the supported RV64IMA subset
//. It is deliberately the largest package in this module —
// every other component exists to be dispatched through it.
package hart

import (
	"zemu/internal/bus"
	"zemu/internal/trap"
)

const pageSize = 4096

// Hart is the single hardware thread this emulator models.
type Hart struct {
	Regs [32]uint64
	Pc   uint64

	Csrs [4096]uint64

	Mode trap.Mode

	// enablePaging/pagetable are a derived cache of satp, written only
	// through updatePaging; never re-derived from csrs[satp] during
	// translation.
	enablePaging bool
	pagetable    uint64

	Bus *bus.Bus
}

// New resets the hart to its power-on state: pc = DRAM base, x2 = DRAM
// base + DRAM size, mode = machine, paging disabled, all CSRs zero.
func New(b *bus.Bus) *Hart {
	h := &Hart{Bus: b, Mode: trap.Machine}
	h.Pc = bus.DramBase
	h.Regs[2] = bus.DramBase + bus.DramSize
	return h
}

// Reg reads register i, with x0 hardwired to zero.
func (h *Hart) Reg(i uint64) uint64 {
	if i == 0 {
		return 0
	}
	return h.Regs[i]
}

// SetReg writes register i; writes to x0 are discarded.
func (h *Hart) SetReg(i uint64, v uint64) {
	if i == 0 {
		return
	}
	h.Regs[i] = v
}

// zeroX0 restores the x[0] ≡ 0 invariant after every instruction
// boundary, ahead of the write-back the next instruction sees.
func (h *Hart) zeroX0() {
	h.Regs[0] = 0
}

// Fetch translates pc and loads the 32-bit instruction word there
//. A translation fault surfaces as instruction_page_fault; any
// other bus fault surfaces as instruction_access_fault.
func (h *Hart) Fetch() (uint32, error) {
	addr, err := h.Translate(h.Pc, trap.InstrPageFault)
	if err != nil {
		return 0, err
	}
	v, err := h.Bus.Load(addr, 4)
	if err != nil {
		return 0, trap.InstrAccessFault
	}
	return uint32(v), nil
}
