package hart

import "zemu/internal/trap"

func signExtend32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

// loadMem translates addr for a data access and loads width bytes from
// the bus, optionally sign-extending a narrower-than-64-bit result for
// lb/lh/lw against the unsigned lbu/lhu/lwu/ld forms.
func (h *Hart) loadMem(addr uint64, width uint, signed bool) (uint64, error) {
	pa, err := h.Translate(addr, trap.LoadPageFault)
	if err != nil {
		return 0, err
	}
	v, err := h.Bus.Load(pa, width)
	if err != nil {
		return 0, err
	}
	if signed {
		switch width {
		case 1:
			return uint64(int64(int8(v))), nil
		case 2:
			return uint64(int64(int16(v))), nil
		case 4:
			return signExtend32(uint32(v)), nil
		}
	}
	return v, nil
}

func (h *Hart) storeMem(addr uint64, width uint, value uint64) error {
	pa, err := h.Translate(addr, trap.StorePageFault)
	if err != nil {
		return err
	}
	return h.Bus.Store(pa, width, value)
}

// Execute decodes and runs one instruction, advancing architectural state
//. The caller (the driver's main loop) is responsible for
// incrementing pc by 4 before calling Execute, per the "pc points to the
// next sequential instruction" contract branches/jal/auipc rely on.
func (h *Hart) Execute(instr uint32) error {
	defer h.zeroX0()

	op := opcode(instr)
	rdI, rs1I, rs2I := rd(instr), rs1(instr), rs2(instr)
	f3, f7 := funct3(instr), funct7(instr)
	rs1v, rs2v := h.Reg(rs1I), h.Reg(rs2I)
	pc := h.Pc // pc already advanced past this instruction by the driver

	switch op {
	case 0x03: // loads: lb, lh, lw, ld, lbu, lhu, lwu
		width, signed, err := loadShape(f3)
		if err != nil {
			return err
		}
		addr := rs1v + immI(instr)
		v, err := h.loadMem(addr, width, signed)
		if err != nil {
			return err
		}
		h.SetReg(rdI, v)

	case 0x0F: // fence
		// nop: single-hart, no cross-hart ordering to enforce.

	case 0x13: // immediate arithmetic/logic
		imm := immI(instr)
		switch f3 {
		case 0: // addi
			h.SetReg(rdI, rs1v+imm)
		case 1: // slli
			h.SetReg(rdI, rs1v<<shamt6(instr))
		case 2: // slti
			h.SetReg(rdI, boolU64(int64(rs1v) < int64(imm)))
		case 3: // sltiu
			h.SetReg(rdI, boolU64(rs1v < imm))
		case 4: // xori
			h.SetReg(rdI, rs1v^imm)
		case 5: // srli / srai, distinguished by funct7[6:1] == 0x10 (srai)
			if f7>>1 == 0x10 {
				h.SetReg(rdI, uint64(int64(rs1v)>>shamt6(instr)))
			} else {
				h.SetReg(rdI, rs1v>>shamt6(instr))
			}
		case 6: // ori
			h.SetReg(rdI, rs1v|imm)
		case 7: // andi
			h.SetReg(rdI, rs1v&imm)
		}

	case 0x17: // auipc
		h.SetReg(rdI, (pc+(immU(instr)<<12))-4)

	case 0x1B: // addiw/slliw/srliw/sraiw
		switch f3 {
		case 0: // addiw
			h.SetReg(rdI, signExtend32(uint32(rs1v)+uint32(immI(instr))))
		case 1: // slliw
			h.SetReg(rdI, signExtend32(uint32(rs1v)<<shamt5(instr)))
		case 5:
			if f7>>1 == 0x10 { // sraiw
				h.SetReg(rdI, uint64(int64(int32(uint32(rs1v))>>shamt5(instr))))
			} else { // srliw
				h.SetReg(rdI, signExtend32(uint32(rs1v)>>shamt5(instr)))
			}
		default:
			return trap.IllegalInstr
		}

	case 0x23: // stores: sb, sh, sw, sd
		width, err := storeWidth(f3)
		if err != nil {
			return err
		}
		addr := rs1v + immS(instr)
		if err := h.storeMem(addr, width, rs2v); err != nil {
			return err
		}

	case 0x2F: // amoadd.w/.d, amoswap.w/.d
		return h.executeAMO(instr, rdI, rs1v, rs2v, f3, f7)

	case 0x33: // register-register arithmetic/logic (+ mul)
		switch f3 {
		case 0:
			switch f7 {
			case 0:
				h.SetReg(rdI, rs1v+rs2v) // add
			case 0x20:
				h.SetReg(rdI, rs1v-rs2v) // sub
			case 1:
				h.SetReg(rdI, rs1v*rs2v) // mul
			default:
				return trap.IllegalInstr
			}
		case 1:
			h.SetReg(rdI, rs1v<<(rs2v&0x3F)) // sll
		case 2:
			h.SetReg(rdI, boolU64(int64(rs1v) < int64(rs2v))) // slt
		case 3:
			h.SetReg(rdI, boolU64(rs1v < rs2v)) // sltu
		case 4:
			h.SetReg(rdI, rs1v^rs2v) // xor
		case 5:
			if f7 == 0x20 {
				h.SetReg(rdI, uint64(int64(rs1v)>>(rs2v&0x3F))) // sra
			} else {
				h.SetReg(rdI, rs1v>>(rs2v&0x3F)) // srl
			}
		case 6:
			h.SetReg(rdI, rs1v|rs2v) // or
		case 7:
			h.SetReg(rdI, rs1v&rs2v) // and
		}

	case 0x37: // lui
		h.SetReg(rdI, uint64(int64(immU(instr)<<12)))

	case 0x3B: // addw/subw/sllw/srlw/sraw, divu, remuw
		switch f3 {
		case 0:
			if f7 == 0x20 {
				h.SetReg(rdI, signExtend32(uint32(rs1v)-uint32(rs2v))) // subw
			} else {
				h.SetReg(rdI, signExtend32(uint32(rs1v)+uint32(rs2v))) // addw
			}
		case 1:
			h.SetReg(rdI, signExtend32(uint32(rs1v)<<(rs2v&0x1F))) // sllw
		case 5:
			switch f7 {
			case 1: // divu (word)
				d := uint32(rs2v)
				if d == 0 {
					h.SetReg(rdI, ^uint64(0))
				} else {
					h.SetReg(rdI, signExtend32(uint32(rs1v)/d))
				}
			case 0x20:
				h.SetReg(rdI, uint64(int64(int32(uint32(rs1v))>>(rs2v&0x1F)))) // sraw
			default:
				h.SetReg(rdI, signExtend32(uint32(rs1v)>>(rs2v&0x1F))) // srlw
			}
		case 7: // remuw
			d := uint32(rs2v)
			if d == 0 {
				h.SetReg(rdI, rs1v)
			} else {
				h.SetReg(rdI, signExtend32(uint32(rs1v)%d))
			}
		default:
			return trap.IllegalInstr
		}

	case 0x63: // branches
		taken := false
		switch f3 {
		case 0:
			taken = rs1v == rs2v // beq
		case 1:
			taken = rs1v != rs2v // bne
		case 4:
			taken = int64(rs1v) < int64(rs2v) // blt
		case 5:
			taken = int64(rs1v) >= int64(rs2v) // bge
		case 6:
			taken = rs1v < rs2v // bltu
		case 7:
			taken = rs1v >= rs2v // bgeu
		default:
			return trap.IllegalInstr
		}
		if taken {
			h.Pc = pc - 4 + immB(instr)
		}

	case 0x67: // jalr
		t := pc
		h.SetReg(rdI, t)
		h.Pc = (rs1v + immI(instr)) &^ 1

	case 0x6F: // jal
		h.SetReg(rdI, pc)
		h.Pc = pc - 4 + immJ(instr)

	case 0x73: // system: ecall/ebreak/sret/mret/sfence.vma, csrr*
		return h.executeSystem(instr, rdI, rs1I, f3, f7, rs2I, rs1v)

	default:
		return trap.IllegalInstr
	}
	return nil
}

func loadShape(f3 uint64) (width uint, signed bool, err error) {
	switch f3 {
	case 0:
		return 1, true, nil // lb
	case 1:
		return 2, true, nil // lh
	case 2:
		return 4, true, nil // lw
	case 3:
		return 8, false, nil // ld
	case 4:
		return 1, false, nil // lbu
	case 5:
		return 2, false, nil // lhu
	case 6:
		return 4, false, nil // lwu
	default:
		return 0, false, trap.IllegalInstr
	}
}

func storeWidth(f3 uint64) (uint, error) {
	switch f3 {
	case 0:
		return 1, nil
	case 1:
		return 2, nil
	case 2:
		return 4, nil
	case 3:
		return 8, nil
	default:
		return 0, trap.IllegalInstr
	}
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (h *Hart) executeAMO(instr uint32, rdI, rs1v, rs2v uint64, f3, f7 uint64) error {
	var width uint
	switch f3 {
	case 2:
		width = 4
	case 3:
		width = 8
	default:
		return trap.IllegalInstr
	}
	funct5 := f7 >> 2

	old, err := h.loadMem(rs1v, width, width == 4)
	if err != nil {
		return err
	}

	var nv uint64
	switch funct5 {
	case 0: // amoadd
		nv = old + rs2v
	case 1: // amoswap
		nv = rs2v
	default:
		return trap.IllegalInstr
	}

	if err := h.storeMem(rs1v, width, nv); err != nil {
		return err
	}
	h.SetReg(rdI, old)
	return nil
}
