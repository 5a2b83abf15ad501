// Package frame — кадровый обмен с платой тегирования по последовательному порту.
//
// Кадр: sync "WR", class, id, длина (LE uint16), payload, контрольная сумма
// Флетчера (2 байта) по class..payload.
package frame

import (
	"encoding/binary"
	"errors"
)

// Sync bytes кадра
const (
	Sync1 = 0x57 // 'W'
	Sync2 = 0x52 // 'R'
)

// HeaderSize — sync(2) + class + id + length(2)
const HeaderSize = 6

// MaxPayload — ограничение длины, защищает от мусора после потери синхронизации
const MaxPayload = 1024

// ErrChecksum — контрольная сумма кадра не совпала
var ErrChecksum = errors.New("frame: checksum mismatch")

// ErrTooLong — длина payload больше MaxPayload
var ErrTooLong = errors.New("frame: payload too long")

// Header — заголовок кадра
type Header struct {
	Class  uint8
	ID     uint8
	Length uint16
}

// Checksum вычисляет контрольную сумму (без sync bytes)
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode собирает кадр: header + payload + checksum
func Encode(class, id uint8, payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload)+2)
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	buf = append(buf, ckA, ckB)
	return buf
}

// ParseHeader парсит заголовок (минимум HeaderSize байт)
func ParseHeader(buf []byte) (h Header, ok bool) {
	if len(buf) < HeaderSize || buf[0] != Sync1 || buf[1] != Sync2 {
		return Header{}, false
	}
	h.Class = buf[2]
	h.ID = buf[3]
	h.Length = binary.LittleEndian.Uint16(buf[4:6])
	return h, true
}

// Verify проверяет контрольную сумму кадра и возвращает заголовок и payload
func Verify(packet []byte) (Header, []byte, error) {
	h, ok := ParseHeader(packet)
	if !ok || len(packet) != HeaderSize+int(h.Length)+2 {
		return Header{}, nil, ErrChecksum
	}
	ckA, ckB := Checksum(packet[2 : len(packet)-2])
	if packet[len(packet)-2] != ckA || packet[len(packet)-1] != ckB {
		return Header{}, nil, ErrChecksum
	}
	return h, packet[HeaderSize : HeaderSize+int(h.Length)], nil
}
