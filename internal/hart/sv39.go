package hart

import "zemu/internal/trap"

// PTE bit positions.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
)

func ptePPN(pte uint64) uint64 {
	return (pte >> 10) & 0x0FFF_FFFF_FFFF
}

// Translate walks the Sv39 page table for addr, or passes it through
// unchanged if paging is disabled. faultKind is the exception
// the caller wants raised on a walk failure — instruction/load/store page
// fault, since the same walker backs Fetch, Load and Store.
func (h *Hart) Translate(addr uint64, faultKind trap.Exception) (uint64, error) {
	if !h.enablePaging {
		return addr, nil
	}

	vpn := [3]uint64{
		(addr >> 12) & 0x1FF,
		(addr >> 21) & 0x1FF,
		(addr >> 30) & 0x1FF,
	}
	pageOffset := addr & 0xFFF

	a := h.pagetable
	i := 2
	var pte uint64
	for {
		pteAddr := a + vpn[i]*8
		v, err := h.Bus.Load(pteAddr, 8)
		if err != nil {
			return 0, faultKind
		}
		pte = v

		valid := pte&pteV != 0
		if !valid || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, faultKind
		}
		if pte&pteR != 0 || pte&pteX != 0 {
			break // leaf
		}
		i--
		if i < 0 {
			return 0, faultKind
		}
		a = ptePPN(pte) * pageSize
	}

	switch i {
	case 2: // 1 GiB leaf
		ppn2 := (pte >> 28) & 0x3FF_FFFF // bits [53:28]
		return (ppn2 << 30) | (vpn[1] << 21) | (vpn[0] << 12) | pageOffset, nil
	case 1: // 2 MiB leaf
		ppn2 := (pte >> 28) & 0x3FF_FFFF
		ppn1 := (pte >> 19) & 0x1FF
		return (ppn2 << 30) | (ppn1 << 21) | (vpn[0] << 12) | pageOffset, nil
	default: // 4 KiB leaf
		return (ptePPN(pte) << 12) | pageOffset, nil
	}
}
