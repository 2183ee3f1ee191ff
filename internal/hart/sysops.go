package hart

import "zemu/internal/trap"

// executeSystem handles opcode 0x73: ecall/ebreak/sret/mret/sfence.vma at
// funct3=0, and the six csrr* forms at funct3=1..3,5..7.
func (h *Hart) executeSystem(instr uint32, rdI, rs1I, f3, f7, rs2I, rs1v uint64) error {
	if f3 == 0 {
		switch {
		case rs2I == 0 && f7 == 0: // ecall
			switch h.Mode {
			case trap.User:
				return trap.EcallFromUMode
			case trap.Supervisor:
				return trap.EcallFromSMode
			default:
				return trap.EcallFromMMode
			}
		case rs2I == 1 && f7 == 0: // ebreak
			return trap.Breakpoint
		case rs2I == 2 && f7 == 0x08: // sret
			h.sret()
			return nil
		case rs2I == 2 && f7 == 0x18: // mret
			h.mret()
			return nil
		case f7 == 0x09: // sfence.vma
			return nil
		default:
			return trap.IllegalInstr
		}
	}

	csrAddr := uint64(instr) >> 20
	var operand uint64
	switch f3 {
	case 1, 2, 3: // csrrw, csrrs, csrrc
		operand = rs1v
	case 5, 6, 7: // csrrwi, csrrsi, csrrci: rs1 field is a zero-extended 5-bit immediate
		operand = rs1I
	default:
		return trap.IllegalInstr
	}

	old := h.LoadCSR(csrAddr)
	var next uint64
	switch f3 {
	case 1, 5: // csrrw(i)
		next = operand
	case 2, 6: // csrrs(i)
		next = old | operand
	case 3, 7: // csrrc(i)
		next = old &^ operand
	}
	h.StoreCSR(csrAddr, next)
	h.SetReg(rdI, old)
	return nil
}

// sret returns from a supervisor trap handler.
func (h *Hart) sret() {
	h.Pc = h.Csrs[CsrSepc]
	s := h.Csrs[CsrSstatus]
	if s&sstatusSPP != 0 {
		h.Mode = trap.Supervisor
	} else {
		h.Mode = trap.User
	}
	if s&sstatusSPIE != 0 {
		s |= sstatusSIE
	} else {
		s &^= sstatusSIE
	}
	s |= sstatusSPIE
	s &^= sstatusSPP
	h.Csrs[CsrSstatus] = s
}

// mret returns from a machine trap handler, restoring pc from mepc.
func (h *Hart) mret() {
	h.Pc = h.Csrs[CsrMepc]
	m := h.Csrs[CsrMstatus]
	h.Mode = decodeMPP((m & mstatusMPPMask) >> mstatusMPPShift)
	if m&mstatusMPIE != 0 {
		m |= mstatusMIE
	} else {
		m &^= mstatusMIE
	}
	m |= mstatusMPIE
	m &^= mstatusMPPMask
	h.Csrs[CsrMstatus] = m
}
