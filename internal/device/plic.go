package device

import "zemu/internal/trap"

// Plic models four 32-bit registers of the Platform-Level Interrupt
// Controller: pending, senable, spriority and sclaim. The trap-polling
// logic only writes sclaim (through Claim). There is no priority
// arbitration: the last IRQ written to Sclaim wins.
const (
	PlicBase = 0x0C00_0000
	PlicSize = 0x0400_0000

	plicPendingOff   = 0x1000
	plicSenableOff   = 0x2000
	plicSpriorityOff = 0x20_1000
	plicSclaimOff    = 0x20_1004
)

type Plic struct {
	Pending   uint32
	Senable   uint32
	Spriority uint32
	Sclaim    uint32
}

func NewPlic() *Plic {
	return &Plic{}
}

func (p *Plic) Load(offset uint64, width uint) (uint64, error) {
	if width != 4 {
		return 0, trap.AccessFault(false)
	}
	switch offset {
	case plicPendingOff:
		return uint64(p.Pending), nil
	case plicSenableOff:
		return uint64(p.Senable), nil
	case plicSpriorityOff:
		return uint64(p.Spriority), nil
	case plicSclaimOff:
		return uint64(p.Sclaim), nil
	default:
		return 0, nil
	}
}

func (p *Plic) Store(offset uint64, width uint, value uint64) error {
	if width != 4 {
		return trap.AccessFault(true)
	}
	switch offset {
	case plicPendingOff:
		p.Pending = uint32(value)
	case plicSenableOff:
		p.Senable = uint32(value)
	case plicSpriorityOff:
		p.Spriority = uint32(value)
	case plicSclaimOff:
		p.Sclaim = uint32(value)
	}
	return nil
}

// Claim records irq as the most recently claimed interrupt source, the
// way Hart.CheckPendingInterrupt does when a device interrupt fires.
func (p *Plic) Claim(irq uint32) {
	p.Sclaim = irq
}
