// internal/kernel/context.go
//
// Context layout. This is the only code that knows what a saved register
// image looks like. The rest of the kernel uses initialFrame and
// switchContext.

package kernel

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/sigurn/crc16"
)

// Register image, lowest address first. R4-R11 are pushed by the switch
// routine, the rest is the exception frame the core stacks on entry.
const (
	regR4   = 0 // R4..R11 occupy words 0..7
	regR0   = 8 // R0..R3 occupy words 8..11
	regR12  = 12
	regLR   = 13
	regPC   = 14
	regXPSR = 15

	frameWords = 16
	frameSize  = frameWords * 4

	psrThumb        uint32 = 0x01000000
	excReturnThread uint32 = 0xFFFFFFFD // return to thread mode, main stack
)

var frameTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// resumeVector marks where a switched-out task continues: the return from
// its kernel call. Only its address is used.
func resumeVector() {}

var resumePC = uint32(reflect.ValueOf(resumeVector).Pointer())

// Frame is a decoded register image.
type Frame struct {
	R    [13]uint32 // R0..R12
	LR   uint32
	PC   uint32
	XPSR uint32
}

// initialFrame writes the first register image at the top of the region and
// returns the saved stack pointer. The first dispatch "returns" into entryPC
// with clean scratch registers.
func initialFrame(mem []byte, r Region, entryPC uintptr) (sp uint32, sum uint16) {
	top := r.End() &^ (StackAlignment - 1)
	sp = top - frameSize
	f := Frame{
		LR:   excReturnThread,
		PC:   uint32(entryPC),
		XPSR: psrThumb,
	}
	return sp, writeFrame(mem, sp, f)
}

// switchContext saves the outgoing task's registers and validates the
// incoming task's image. from may be nil (boot) or a dead task, whose context
// is not saved.
func switchContext(a *Arena, from, to *Task) error {
	if from != nil && from.State != StateInvalid {
		f := readFrame(a.mem, from.sp)
		f.PC = resumePC
		f.LR = excReturnThread
		f.XPSR |= psrThumb
		from.frameSum = writeFrame(a.mem, from.sp, f)
	}
	return verifyContext(a, to)
}

// verifyContext checks the stack canary and the image checksum of t.
func verifyContext(a *Arena, t *Task) error {
	if !a.canaryIntact(t.Region) {
		return fmt.Errorf("%w: task %d (%s) overran its stack %s", ErrStackCorrupted, t.ID, t.Name, t.Region)
	}
	if got := frameChecksum(a.mem, t.sp); got != t.frameSum {
		return fmt.Errorf("%w: task %d (%s) saved context checksum %#04x, want %#04x", ErrStackCorrupted, t.ID, t.Name, got, t.frameSum)
	}
	return nil
}

func writeFrame(mem []byte, sp uint32, f Frame) uint16 {
	w := mem[sp : sp+frameSize]
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(w[(regR4+i)*4:], f.R[4+i])
	}
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(w[(regR0+i)*4:], f.R[i])
	}
	binary.LittleEndian.PutUint32(w[regR12*4:], f.R[12])
	binary.LittleEndian.PutUint32(w[regLR*4:], f.LR)
	binary.LittleEndian.PutUint32(w[regPC*4:], f.PC)
	binary.LittleEndian.PutUint32(w[regXPSR*4:], f.XPSR)
	return crc16.Checksum(w, frameTable)
}

func readFrame(mem []byte, sp uint32) Frame {
	w := mem[sp : sp+frameSize]
	var f Frame
	for i := 0; i < 8; i++ {
		f.R[4+i] = binary.LittleEndian.Uint32(w[(regR4+i)*4:])
	}
	for i := 0; i < 4; i++ {
		f.R[i] = binary.LittleEndian.Uint32(w[(regR0+i)*4:])
	}
	f.R[12] = binary.LittleEndian.Uint32(w[regR12*4:])
	f.LR = binary.LittleEndian.Uint32(w[regLR*4:])
	f.PC = binary.LittleEndian.Uint32(w[regPC*4:])
	f.XPSR = binary.LittleEndian.Uint32(w[regXPSR*4:])
	return f
}

func frameChecksum(mem []byte, sp uint32) uint16 {
	return crc16.Checksum(mem[sp:sp+frameSize], frameTable)
}
