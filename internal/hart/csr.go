package hart

// CSR numbers implemented. Only this subset has defined
// semantics; the rest of the 4096-entry file is addressable but inert,
// a flat array rather than a sparse map since the hot path is a direct index.
const (
	CsrSstatus = 0x100
	CsrSie     = 0x104
	CsrStvec   = 0x105
	CsrSepc    = 0x141
	CsrScause  = 0x142
	CsrStval   = 0x143
	CsrSip     = 0x144
	CsrSatp    = 0x180

	CsrMstatus = 0x300
	CsrMedeleg = 0x302
	CsrMideleg = 0x303
	CsrMie     = 0x304
	CsrMtvec   = 0x305
	CsrMepc    = 0x341
	CsrMcause  = 0x342
	CsrMtval   = 0x343
	CsrMip     = 0x344
)

// satpModeSv39 is the satp[63:60] mode field value that selects Sv39
// paging; any other value disables paging.
const satpModeSv39 = 8

// LoadCSR reads a CSR, with sie aliased through mie&mideleg.
func (h *Hart) LoadCSR(addr uint64) uint64 {
	if addr == CsrSie {
		return h.Csrs[CsrMie] & h.Csrs[CsrMideleg]
	}
	return h.Csrs[addr]
}

// StoreCSR writes a CSR, with sie writing only the bits mideleg delegates
// to supervisor mode, then refreshes the paging cache.
func (h *Hart) StoreCSR(addr uint64, v uint64) {
	if addr == CsrSie {
		h.Csrs[CsrMie] = (h.Csrs[CsrMie] &^ h.Csrs[CsrMideleg]) | (v & h.Csrs[CsrMideleg])
	} else {
		h.Csrs[addr] = v
	}
	h.updatePaging(addr)
}

// updatePaging refreshes the enablePaging/pagetable cache whenever satp
// is the CSR just written.
func (h *Hart) updatePaging(addr uint64) {
	if addr != CsrSatp {
		return
	}
	satp := h.Csrs[CsrSatp]
	h.pagetable = (satp & ((uint64(1) << 44) - 1)) * pageSize
	h.enablePaging = (satp >> 60) == satpModeSv39
}
