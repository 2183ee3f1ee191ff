package bus

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"zemu/internal/device"
)

func newTestBus(diskSize int) *Bus {
	disk := make([]byte, diskSize)
	return New(
		NewDram(nil),
		device.NewClint(),
		device.NewPlic(),
		device.NewUart(io.Discard),
		device.NewVirtio(disk),
	)
}

func TestBusRoutesDramLoadStore(t *testing.T) {
	b := newTestBus(0)
	err := b.Store(DramBase+0x100, 8, 0x1122334455667788)
	require.NoError(t, err)
	v, err := b.Load(DramBase+0x100, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1122334455667788), v)
}

func TestBusRoutesDeviceRegions(t *testing.T) {
	b := newTestBus(0)

	err := b.Store(device.ClintBase+0xBFF8, 8, 99)
	require.NoError(t, err)
	v, err := b.Load(device.ClintBase+0xBFF8, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(99), v)

	magic, err := b.Load(device.VirtioBase+0x0, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(0x74726976), magic)
}

func TestBusOutOfMapAddressFaults(t *testing.T) {
	b := newTestBus(0)
	_, err := b.Load(0x0, 8)
	require.Error(t, err)
	err = b.Store(0x0, 8, 1)
	require.Error(t, err)
}

func TestBusDramWidthMismatchFaults(t *testing.T) {
	b := newTestBus(0)
	_, err := b.Load(DramBase, 3)
	require.Error(t, err)
	err = b.Store(DramBase, 3, 1)
	require.Error(t, err)
}

// buildVirtq lays out a minimal single-descriptor-chain virtqueue with its
// desc ring one page above DramBase (queue_pfn = 0x80001) matching §4.6's
// disk-access algorithm, and returns the guest-physical addresses of the
// two buffers the chain points at.
func buildVirtq(t *testing.T, b *Bus, sector uint64, writeToDisk bool) (hdrAddr, dataAddr uint64) {
	t.Helper()
	const pageOffset uint64 = 1
	desc := DramBase + pageOffset*4096
	pfn := desc / 4096
	avail := desc + 0x40
	used := desc + 4096

	require.NoError(t, b.Virtio.Store(0x040, 4, pfn)) // queue_pfn
	require.NoError(t, b.Virtio.Store(0x028, 4, 4096)) // guest page size

	hdrAddr = desc + 0x3000
	dataAddr = desc + 0x4000

	// descriptor 0: header {addr,len,flags,next=1}
	require.NoError(t, b.Store(desc+0, 8, hdrAddr))
	require.NoError(t, b.Store(desc+8, 4, 16))
	require.NoError(t, b.Store(desc+12, 2, 0))
	require.NoError(t, b.Store(desc+14, 2, 1))

	// descriptor 1: data buffer
	var flag1 uint64
	if !writeToDisk {
		flag1 = 0x2 // device writes to this buffer (disk -> guest)
	}
	require.NoError(t, b.Store(desc+16, 8, dataAddr))
	require.NoError(t, b.Store(desc+16+8, 4, 8))
	require.NoError(t, b.Store(desc+16+12, 2, flag1))
	require.NoError(t, b.Store(desc+16+14, 2, 0))

	// header: sector number at offset 8
	require.NoError(t, b.Store(hdrAddr+8, 8, sector))

	// avail ring: offset (idx) at avail+1, ring entry at avail+(offset%8)+2 = index 0
	require.NoError(t, b.Store(avail+1, 1, 0))
	require.NoError(t, b.Store(avail+2, 2, 0)) // descriptor chain head index = 0

	_ = used
	return hdrAddr, dataAddr
}

func TestBusDiskAccessGuestToDisk(t *testing.T) {
	b := newTestBus(4096)
	_, dataAddr := buildVirtq(t, b, 3, true)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	for i, bb := range payload {
		require.NoError(t, b.Store(dataAddr+uint64(i), 1, uint64(bb)))
	}

	b.DiskAccess()

	got := b.Virtio.Disk[3*device.SectorSize : 3*device.SectorSize+8]
	require.Equal(t, payload, got)
}

func TestBusDiskAccessDiskToGuest(t *testing.T) {
	b := newTestBus(4096)
	_, dataAddr := buildVirtq(t, b, 5, false)

	want := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	copy(b.Virtio.Disk[5*device.SectorSize:], want)

	b.DiskAccess()

	for i, w := range want {
		v, err := b.Load(dataAddr+uint64(i), 1)
		require.NoError(t, err)
		require.Equal(t, uint64(w), v)
	}
}

func TestBusDiskAccessWritesUsedRingID(t *testing.T) {
	b := newTestBus(4096)
	buildVirtq(t, b, 0, true)

	b.DiskAccess()

	desc := uint64(DramBase + 1*4096)
	used := desc + 4096
	v, err := b.Load(used+2, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v) // first NewID() call returns 1
}
