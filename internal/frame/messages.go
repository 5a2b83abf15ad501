package frame

import (
	"encoding/binary"
	"fmt"
)

// Классы и ID сообщений
const (
	ClassTag = 0x01
	IDWords  = 0x01 // пачка слов FIFO тегов (LE uint32)

	ClassCtl = 0x02
	IDTagger = 0x01 // включение тегера: channel(1) on(1)
	IDDAC    = 0x02 // запись ЦАП: index(1) value(4, int32)
	IDAck    = 0x7f
)

// TagWords собирает кадр с пачкой слов FIFO
func TagWords(words []uint32) []byte {
	payload := make([]byte, 0, 4*len(words))
	for _, w := range words {
		payload = binary.LittleEndian.AppendUint32(payload, w)
	}
	return Encode(ClassTag, IDWords, payload)
}

// ParseTagWords разбирает payload ClassTag/IDWords
func ParseTagWords(payload []byte) ([]uint32, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("frame: tag payload length %d not multiple of 4", len(payload))
	}
	words := make([]uint32, len(payload)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(payload[4*i:])
	}
	return words, nil
}

// TaggerCommand собирает команду включения/выключения тегера канала
func TaggerCommand(channel int, on bool) []byte {
	var v uint8
	if on {
		v = 1
	}
	return Encode(ClassCtl, IDTagger, []byte{uint8(channel), v})
}

// DACCommand собирает команду записи ЦАП
func DACCommand(index int, value int32) []byte {
	payload := []byte{uint8(index)}
	payload = binary.LittleEndian.AppendUint32(payload, uint32(value))
	return Encode(ClassCtl, IDDAC, payload)
}
