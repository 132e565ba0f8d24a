package trap

import "tsukuyomi/kernel/cpu"

// The legacy 8259 PIC pair, remapped so that IRQ0-7 land on vectors 32-39
// and IRQ8-15 on vectors 40-47, clear of the CPU exception range.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xa0
	picSlaveData     = 0xa1

	picEOI = 0x20

	icw1Init = 0x11
	icw4_8086 = 0x01
)

var (
	portOutFn = cpu.PortByteOut
	portInFn  = cpu.PortByteIn
)

// RemapPIC reprograms the PIC so hardware IRQs no longer collide with the
// CPU's reserved exception vectors 0-31.
func RemapPIC() {
	masterMask := portInFn(picMasterData)
	slaveMask := portInFn(picSlaveData)

	portOutFn(picMasterCommand, icw1Init)
	portOutFn(picSlaveCommand, icw1Init)
	portOutFn(picMasterData, uint8(VectorTimer))
	portOutFn(picSlaveData, uint8(VectorTimer)+8)
	portOutFn(picMasterData, 4) // tell master about the slave on IRQ2
	portOutFn(picSlaveData, 2)  // tell slave its cascade identity
	portOutFn(picMasterData, icw4_8086)
	portOutFn(picSlaveData, icw4_8086)

	portOutFn(picMasterData, masterMask)
	portOutFn(picSlaveData, slaveMask)
}

// sendEOI acknowledges a hardware interrupt so the PIC delivers further
// IRQs. Vectors handled by the slave PIC also require acknowledging the
// master (the cascade line).
func sendEOI(vector Vector) {
	if vector >= VectorTimer+8 {
		portOutFn(picSlaveCommand, picEOI)
	}
	portOutFn(picMasterCommand, picEOI)
}
