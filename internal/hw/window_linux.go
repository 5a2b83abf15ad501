//go:build linux

package hw

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Window — окно регистров SoftPLL, отображённое из /dev/mem.
// Требует root или CAP_SYS_RAWIO.
type Window struct {
	bank
	f   *os.File
	mem []byte
}

// Open отображает WindowSize байт по физическому адресу base
func Open(devMem string, base int64, nChanRef int) (*Window, error) {
	if devMem == "" {
		devMem = "/dev/mem"
	}
	f, err := os.OpenFile(devMem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devMem, err)
	}
	pageMask := int64(unix.Getpagesize() - 1)
	pageBase := base &^ pageMask
	delta := base - pageBase
	mem, err := unix.Mmap(int(f.Fd()), pageBase, int(delta)+WindowSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s @%#x: %w", devMem, base, err)
	}
	w := &Window{f: f, mem: mem}
	w.bank = bank{r: mmioRegs(mem[delta:]), nChanRef: nChanRef}
	return w, nil
}

// Close снимает отображение
func (w *Window) Close() error {
	if w.mem == nil {
		return nil
	}
	err := unix.Munmap(w.mem)
	w.mem = nil
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// mmioRegs — 32-битные доступы к отображённой памяти; atomic не даёт
// компилятору объединять или выбрасывать чтения регистров
type mmioRegs []byte

func (m mmioRegs) read32(off uintptr) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&m[off])))
}

func (m mmioRegs) write32(off uintptr, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&m[off])), v)
}
