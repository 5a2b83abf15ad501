// Package hw — доступ к регистрам SoftPLL (wr_softpll_ng) через отображение /dev/mem.
package hw

import "errors"

// Смещения регистров SoftPLL
const (
	RegCSR     = 0x00
	RegOCER    = 0x20 // включение тегеров выходных каналов, бит на канал
	RegRCER    = 0x24 // включение тегеров опорных каналов, бит на канал
	RegDACMain = 0x30
	RegTRRR0   = 0x5c // слово FIFO тегов
	RegTRRCSR  = 0x60

	WindowSize = 0x100
)

// Поля слова FIFO тегов
const (
	TagValueMask = 0x00ffffff
	TagChanShift = 24
	TagChanMask  = 0x7f000000
	TagDisc      = 0x80000000 // разрыв: FIFO переполнялась

	TRRCSREmpty = 1 << 17
)

// ErrUnsupported — отображение регистров недоступно на этой платформе
var ErrUnsupported = errors.New("hw: register window not supported on this platform")

// TagWord — разобранное слово FIFO
type TagWord struct {
	Channel int
	Value   uint32
	Disc    bool
}

// DecodeTagWord разбирает слово FIFO; значение обрезается до tagBits
func DecodeTagWord(w uint32, tagBits uint) TagWord {
	return TagWord{
		Channel: int((w & TagChanMask) >> TagChanShift),
		Value:   w & TagValueMask & (uint32(1)<<tagBits - 1),
		Disc:    w&TagDisc != 0,
	}
}

// EncodeTagWord — обратная операция (эмуляторы плат, тесты)
func EncodeTagWord(channel int, value uint32) uint32 {
	return uint32(channel)<<TagChanShift&TagChanMask | value&TagValueMask
}

// regs — доступ к 32-битным регистрам
type regs interface {
	read32(off uintptr) uint32
	write32(off uintptr, v uint32)
}

// bank — общая логика поверх регистров: тегеры, ЦАП, FIFO
type bank struct {
	r        regs
	nChanRef int
}

func (b *bank) enableTagger(channel int, on bool) {
	reg, bit := uintptr(RegRCER), channel
	if channel >= b.nChanRef {
		reg, bit = RegOCER, channel-b.nChanRef
	}
	v := b.r.read32(reg)
	if on {
		v |= 1 << uint(bit)
	} else {
		v &^= 1 << uint(bit)
	}
	b.r.write32(reg, v)
}

func (b *bank) setDAC(index int, value int32) {
	b.r.write32(RegDACMain+uintptr(4*index), uint32(value))
}

func (b *bank) popTag() (uint32, bool) {
	if b.r.read32(RegTRRCSR)&TRRCSREmpty != 0 {
		return 0, false
	}
	return b.r.read32(RegTRRR0), true
}
