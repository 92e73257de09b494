package gpio

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// MemSize is the size of the GPIO register window in bytes.
const MemSize = 168

// Register is a byte offset into the GPIO register window.
// Layout per BCM2837 ARM Peripherals, section 6.1.
type Register uint32

const (
	GPFSEL0   Register = 0x00
	GPFSEL1   Register = 0x04
	GPFSEL2   Register = 0x08
	GPFSEL3   Register = 0x0C
	GPFSEL4   Register = 0x10
	GPFSEL5   Register = 0x14
	GPSET0    Register = 0x1C
	GPSET1    Register = 0x20
	GPCLR0    Register = 0x28
	GPCLR1    Register = 0x2C
	GPLEV0    Register = 0x34
	GPLEV1    Register = 0x38
	GPEDS0    Register = 0x40
	GPEDS1    Register = 0x44
	GPREN0    Register = 0x4C
	GPREN1    Register = 0x50
	GPFEN0    Register = 0x58
	GPFEN1    Register = 0x5C
	GPHEN0    Register = 0x64
	GPHEN1    Register = 0x68
	GPLEN0    Register = 0x70
	GPLEN1    Register = 0x74
	GPAREN0   Register = 0x7C
	GPAREN1   Register = 0x80
	GPAFEN0   Register = 0x88
	GPAFEN1   Register = 0x8C
	GPPUD     Register = 0x94
	GPPUDCLK0 Register = 0x98
	GPPUDCLK1 Register = 0x9C
	TEST      Register = 0xA4
)

const (
	fselBits  = 3
	fselMask  = 0b111
	fselPer   = 10
	bankWidth = 32
	pudMask   = 0b11
)

// RegisterMap is a bounds-checked view of the register window.
// Every access is a single aligned 32-bit load or store.
type RegisterMap struct {
	words []uint32
}

// NewRegisterMap overlays mem, which must hold at least MemSize bytes
// and be 4-byte aligned.
func NewRegisterMap(mem []byte) (*RegisterMap, error) {
	if len(mem) < MemSize {
		return nil, fmt.Errorf("gpio: register window is %d bytes, need %d", len(mem), MemSize)
	}
	if uintptr(unsafe.Pointer(&mem[0]))%4 != 0 {
		return nil, fmt.Errorf("gpio: register window is not 4-byte aligned")
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&mem[0])), MemSize/4)
	return &RegisterMap{words: words}, nil
}

func (m *RegisterMap) word(r Register) *uint32 {
	if r%4 != 0 || uint32(r)+4 > MemSize {
		panic(fmt.Sprintf("gpio: register offset %#x outside window", uint32(r)))
	}
	return &m.words[r/4]
}

// Load reads register r.
func (m *RegisterMap) Load(r Register) uint32 {
	return atomic.LoadUint32(m.word(r))
}

// Store writes v to register r.
func (m *RegisterMap) Store(r Register, v uint32) {
	atomic.StoreUint32(m.word(r), v)
}

// Modify replaces the bits selected by mask with value.
func (m *RegisterMap) Modify(r Register, mask, value uint32) {
	w := m.word(r)
	atomic.StoreUint32(w, atomic.LoadUint32(w)&^mask|value&mask)
}

// mustValid guards the register arithmetic. Pins are validated by the
// Controller before they get here, so a bad pin is a bug.
func mustValid(pin Pin) {
	if pin > MaxPin {
		panic(fmt.Sprintf("gpio: unvalidated pin %d reached register layer", pin))
	}
}

// fselField returns the function-select register holding pin and the
// shift of its 3-bit field.
func fselField(pin Pin) (Register, uint) {
	mustValid(pin)
	return GPFSEL0 + Register(4*(pin/fselPer)), uint(pin%fselPer) * fselBits
}

// bankBit returns the register bank (0 or 1) of pin and its bit mask.
func bankBit(pin Pin) (int, uint32) {
	mustValid(pin)
	return int(pin / bankWidth), 1 << (pin % bankWidth)
}

func banked(base Register, bank int) Register {
	return base + Register(4*bank)
}

func setRegister(pin Pin) (Register, uint32) {
	bank, bit := bankBit(pin)
	return banked(GPSET0, bank), bit
}

func clearRegister(pin Pin) (Register, uint32) {
	bank, bit := bankBit(pin)
	return banked(GPCLR0, bank), bit
}

func levelRegister(pin Pin) (Register, uint32) {
	bank, bit := bankBit(pin)
	return banked(GPLEV0, bank), bit
}

func pudClockRegister(pin Pin) (Register, uint32) {
	bank, bit := bankBit(pin)
	return banked(GPPUDCLK0, bank), bit
}
