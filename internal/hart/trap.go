package hart

import "zemu/internal/trap"

// sstatus/mstatus bit positions this emulator gives meaning to.
const (
	sstatusSIE  = 1 << 1
	sstatusSPIE = 1 << 5
	sstatusSPP  = 1 << 8

	mstatusMIE  = 1 << 3
	mstatusMPIE = 1 << 7
	mstatusMPPShift = 11
	mstatusMPPMask  = 0x3 << mstatusMPPShift
)

func encodeMPP(m trap.Mode) uint64 {
	switch m {
	case trap.User:
		return 0
	case trap.Supervisor:
		return 1
	default:
		return 3
	}
}

func decodeMPP(v uint64) trap.Mode {
	switch v {
	case 0:
		return trap.User
	case 1:
		return trap.Supervisor
	default:
		return trap.Machine
	}
}

// cause packs an Exception or an Interrupt's numeric code. Exactly one of
// exc/irq is present; the other carries the zero value and is ignored.
func cause(exc trap.Exception, hasExc bool, irq trap.Interrupt) uint64 {
	if hasExc {
		return uint64(exc)
	}
	return uint64(irq)
}

// TakeTrap delivers a synchronous exception or an asynchronous interrupt,
// delegating to supervisor mode when medeleg/mideleg says so and the hart
// isn't already in machine mode. Pass hasExc=true with exc set
// for an exception, or hasExc=false with irq set for an interrupt.
func (h *Hart) TakeTrap(exc trap.Exception, hasExc bool, irq trap.Interrupt) {
	causeCode := cause(exc, hasExc, irq)
	prevMode := h.Mode
	excPC := h.Pc - 4

	delegated := func() bool {
		if prevMode == trap.Machine {
			return false
		}
		if hasExc {
			return h.Csrs[CsrMedeleg]&(1<<causeCode) != 0
		}
		return h.Csrs[CsrMideleg]&(1<<causeCode) != 0
	}()

	if delegated {
		h.Mode = trap.Supervisor
		base := h.Csrs[CsrStvec] &^ 1
		pc := base
		if !hasExc && h.Csrs[CsrStvec]&1 != 0 {
			pc = base + 4*causeCode
		}
		h.Pc = pc
		h.Csrs[CsrSepc] = excPC &^ 1
		h.Csrs[CsrScause] = causeCode
		h.Csrs[CsrStval] = 0

		s := h.Csrs[CsrSstatus]
		var sIE uint64
		if s&sstatusSIE != 0 {
			sIE = 1
		}
		s &^= sstatusSPIE
		if sIE != 0 {
			s |= sstatusSPIE
		}
		s &^= sstatusSIE
		s &^= sstatusSPP
		if prevMode == trap.Supervisor {
			s |= sstatusSPP
		}
		h.Csrs[CsrSstatus] = s
	} else {
		h.Mode = trap.Machine
		base := h.Csrs[CsrMtvec] &^ 1
		pc := base
		if !hasExc && h.Csrs[CsrMtvec]&1 != 0 {
			pc = base + 4*causeCode
		}
		h.Pc = pc
		h.Csrs[CsrMepc] = excPC &^ 1
		h.Csrs[CsrMcause] = causeCode
		h.Csrs[CsrMtval] = 0

		m := h.Csrs[CsrMstatus]
		var mIE uint64
		if m&mstatusMIE != 0 {
			mIE = 1
		}
		m &^= mstatusMPIE
		if mIE != 0 {
			m |= mstatusMPIE
		}
		m &^= mstatusMIE
		m &^= mstatusMPPMask
		m |= encodeMPP(prevMode) << mstatusMPPShift
		h.Csrs[CsrMstatus] = m
	}
}

// irqPriority is the fixed scan order CheckPendingInterrupt uses once a
// pending bit has been latched.
var irqPriority = []trap.Interrupt{
	trap.MachineExternalInterrupt,
	trap.MachineSoftwareInterrupt,
	trap.MachineTimerInterrupt,
	trap.SupervisorExternalInterrupt,
	trap.SupervisorSoftwareInterrupt,
	trap.SupervisorTimerInterrupt,
}

// CheckPendingInterrupt polls the UART and virtio devices in priority
// order (UART wins), services a virtio kick via DiskAccess before
// latching its IRQ, then resolves the highest-priority bit set in both
// mie and mip. It returns ok=false when nothing is pending or
// the current mode's global enable bit is clear.
func (h *Hart) CheckPendingInterrupt() (irq trap.Interrupt, ok bool) {
	switch h.Mode {
	case trap.Machine:
		if h.Csrs[CsrMstatus]&mstatusMIE == 0 {
			return 0, false
		}
	case trap.Supervisor:
		if h.Csrs[CsrSstatus]&sstatusSIE == 0 {
			return 0, false
		}
	}

	var firedIRQ uint32
	fired := false
	if h.Bus.Uart.Interrupting() {
		firedIRQ = 10
		fired = true
	} else if h.Bus.Virtio.IsInterrupting() {
		h.Bus.DiskAccess()
		firedIRQ = 1
		fired = true
	}
	if fired {
		h.Bus.Plic.Claim(firedIRQ)
		h.Csrs[CsrMip] |= 1 << trap.MipSEIP
	}

	pending := h.Csrs[CsrMie] & h.Csrs[CsrMip]
	for _, i := range irqPriority {
		bit := uint64(1) << uint64(i)
		if pending&bit != 0 {
			h.Csrs[CsrMip] &^= bit
			return i, true
		}
	}
	return 0, false
}
