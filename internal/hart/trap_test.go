package hart

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"zemu/internal/bus"
	"zemu/internal/device"
	"zemu/internal/trap"
)

func TestTakeTrapDelegatedToSupervisor(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.User
	h.Csrs[CsrMedeleg] = 1 << uint64(trap.EcallFromUMode)
	h.Csrs[CsrStvec] = 0x8000_5000

	err := runAt(t, h, bus.DramBase, 0x00000073) // ecall
	require.Equal(t, trap.EcallFromUMode, err)

	h.TakeTrap(err.(trap.Exception), true, 0)

	require.Equal(t, trap.Supervisor, h.Mode)
	require.Equal(t, uint64(0x8000_5000), h.Pc)
	require.Equal(t, uint64(trap.EcallFromUMode), h.Csrs[CsrScause])
	require.Equal(t, uint64(bus.DramBase), h.Csrs[CsrSepc])
}

func TestTakeTrapNotDelegatedStaysInMachine(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.User
	h.Csrs[CsrMedeleg] = 0 // ecall_from_u not delegated
	h.Csrs[CsrMtvec] = 0x8000_9000

	err := runAt(t, h, bus.DramBase, 0x00000073)
	require.Equal(t, trap.EcallFromUMode, err)

	h.TakeTrap(err.(trap.Exception), true, 0)

	require.Equal(t, trap.Machine, h.Mode)
	require.Equal(t, uint64(0x8000_9000), h.Pc)
	require.Equal(t, uint64(trap.EcallFromUMode), h.Csrs[CsrMcause])
}

func TestTakeTrapFromMachineModeNeverDelegates(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.Machine
	h.Csrs[CsrMedeleg] = ^uint64(0) // delegate everything
	h.Csrs[CsrMtvec] = 0x8000_A000
	h.Pc = bus.DramBase + 4

	h.TakeTrap(trap.IllegalInstr, true, 0)
	require.Equal(t, trap.Machine, h.Mode)
	require.Equal(t, uint64(0x8000_A000), h.Pc)
}

func TestTakeTrapVectoredInterruptOffsetsByCause(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.Machine
	h.Csrs[CsrMtvec] = 0x8000_B000 | 1 // vectored
	h.Pc = bus.DramBase + 4

	h.TakeTrap(0, false, trap.MachineTimerInterrupt)
	require.Equal(t, uint64(0x8000_B000)+4*uint64(trap.MachineTimerInterrupt), h.Pc)
}

func TestTakeTrapSavesAndDisablesInterruptEnable(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.Supervisor
	h.Csrs[CsrMedeleg] = 1 << uint64(trap.Breakpoint)
	h.Csrs[CsrSstatus] = sstatusSIE
	h.Pc = bus.DramBase + 4

	h.TakeTrap(trap.Breakpoint, true, 0)

	s := h.Csrs[CsrSstatus]
	require.NotZero(t, s&sstatusSPIE, "SPIE must capture the previously-set SIE")
	require.Zero(t, s&sstatusSIE, "SIE is cleared on trap entry")
	require.NotZero(t, s&sstatusSPP, "SPP records the prior mode was supervisor")
}

func TestTakeTrapSstatusUpdateIsMaskedNotFullReplace(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.Supervisor
	h.Csrs[CsrMedeleg] = 1 << uint64(trap.Breakpoint)
	// an unrelated sstatus bit the masked update must preserve
	const unrelatedBit = uint64(1) << 18 // sstatus.SUM, not touched by TakeTrap
	h.Csrs[CsrSstatus] = unrelatedBit
	h.Pc = bus.DramBase + 4

	h.TakeTrap(trap.Breakpoint, true, 0)

	require.NotZero(t, h.Csrs[CsrSstatus]&unrelatedBit, "unrelated bits survive the masked update")
}

func TestCheckPendingInterruptGatedByModeEnableBit(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.Machine
	h.Csrs[CsrMstatus] = 0 // MIE clear
	_, ok := h.CheckPendingInterrupt()
	require.False(t, ok)

	h.Mode = trap.Supervisor
	h.Csrs[CsrSstatus] = 0 // SIE clear
	_, ok = h.CheckPendingInterrupt()
	require.False(t, ok)
}

// buildMinimalVirtq mirrors the bus package's disk-access fixture so
// CheckPendingInterrupt's virtio branch can run DiskAccess without
// panicking on a malformed descriptor chain.
func buildMinimalVirtq(t *testing.T, h *Hart) {
	t.Helper()
	const pageOffset = 1
	desc := uint64(bus.DramBase + pageOffset*4096)
	pfn := desc / 4096
	avail := desc + 0x40

	require.NoError(t, h.Bus.Virtio.Store(0x040, 4, pfn))
	require.NoError(t, h.Bus.Virtio.Store(0x028, 4, 4096))

	require.NoError(t, h.Bus.Store(desc+0, 8, desc+0x3000))
	require.NoError(t, h.Bus.Store(desc+8, 4, 0))
	require.NoError(t, h.Bus.Store(desc+12, 2, 0))
	require.NoError(t, h.Bus.Store(desc+14, 2, 1))

	require.NoError(t, h.Bus.Store(desc+16, 8, desc+0x4000))
	require.NoError(t, h.Bus.Store(desc+16+8, 4, 0))
	require.NoError(t, h.Bus.Store(desc+16+12, 2, 0x2))
	require.NoError(t, h.Bus.Store(desc+16+14, 2, 0))

	require.NoError(t, h.Bus.Store(avail+1, 1, 0))
	require.NoError(t, h.Bus.Store(avail+2, 2, 0))
}

func TestCheckPendingInterruptServicesVirtioKickAndLatchesPlic(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.Supervisor
	h.Csrs[CsrSstatus] = sstatusSIE
	h.Csrs[CsrMie] = ^uint64(0)

	buildMinimalVirtq(t, h)
	require.NoError(t, h.Bus.Virtio.Store(0x050, 4, 0xDEADBEEF)) // queue_notify

	irq, ok := h.CheckPendingInterrupt()
	require.True(t, ok)
	require.Equal(t, trap.SupervisorExternalInterrupt, irq)
	require.Equal(t, uint32(1), h.Bus.Plic.Sclaim)
}

func TestCheckPendingInterruptUartWinsOverVirtio(t *testing.T) {
	h := newTestHart()
	h.Mode = trap.Supervisor
	h.Csrs[CsrSstatus] = sstatusSIE
	h.Csrs[CsrMie] = ^uint64(0)

	h.Bus.Uart.StartReceiving(bytes.NewReader([]byte{0x42}))
	require.Eventually(t, func() bool {
		v, _ := h.Bus.Uart.Load(5, 1) // LSR
		return v&device.LsrRxReady != 0
	}, time.Second, time.Millisecond, "byte must reach RHR before the poll below observes it")

	require.NoError(t, h.Bus.Virtio.Store(0x050, 4, 0xDEADBEEF))

	irq, ok := h.CheckPendingInterrupt()
	require.True(t, ok)
	require.Equal(t, trap.SupervisorExternalInterrupt, irq)
	require.Equal(t, uint32(10), h.Bus.Plic.Sclaim, "uart (irq 10) wins over virtio (irq 1)")
}
