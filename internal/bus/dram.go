package bus

import "encoding/binary"

// Dram is the flat byte-addressable backing store for guest memory
//: a single slab allocated at construction, indexed relative
// to DramBase. Callers are expected to gate accesses through the bus
// decoder; an out-of-slab access here is a programming error, not a
// guest-visible fault.
const (
	DramBase = 0x8000_0000
	DramSize = 128 << 20 // 128 MiB
)

type Dram struct {
	data []byte
}

// NewDram allocates the backing slab and copies image (the guest kernel
// binary) in at offset 0, i.e. DramBase.
func NewDram(image []byte) *Dram {
	d := &Dram{data: make([]byte, DramSize)}
	copy(d.data, image)
	return d
}

func (d *Dram) Load(offset uint64, width uint) uint64 {
	switch width {
	case 1:
		return uint64(d.data[offset])
	case 2:
		return uint64(binary.LittleEndian.Uint16(d.data[offset : offset+2]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(d.data[offset : offset+4]))
	case 8:
		return binary.LittleEndian.Uint64(d.data[offset : offset+8])
	default:
		panic("dram: unsupported width")
	}
}

func (d *Dram) Store(offset uint64, width uint, value uint64) {
	switch width {
	case 1:
		d.data[offset] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(d.data[offset:offset+2], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(d.data[offset:offset+4], uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(d.data[offset:offset+8], value)
	default:
		panic("dram: unsupported width")
	}
}
