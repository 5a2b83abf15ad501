package frame

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Port — последовательный порт платы тегирования
type Port struct {
	rw     io.ReadWriteCloser
	device string
	wmu    sync.Mutex
}

// Open открывает последовательный порт; readTimeout ограничивает одно чтение
func Open(device string, baud int, readTimeout time.Duration) (*Port, error) {
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: readTimeout,
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return &Port{rw: p, device: device}, nil
}

// NewPort оборачивает уже открытый поток (pty, тесты)
func NewPort(rw io.ReadWriteCloser, name string) *Port {
	return &Port{rw: rw, device: name}
}

// Device — имя устройства
func (p *Port) Device() string {
	return p.device
}

// WriteFrame отправляет готовый кадр; запись из нескольких горутин сериализуется
func (p *Port) WriteFrame(packet []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err := p.rw.Write(packet)
	return err
}

// ReadFrame читает один кадр: ждёт sync, затем заголовок, payload и checksum
func (p *Port) ReadFrame() (Header, []byte, error) {
	var last [2]byte
	for last[0] != Sync1 || last[1] != Sync2 {
		var b [1]byte
		if _, err := io.ReadFull(p.rw, b[:]); err != nil {
			return Header{}, nil, err
		}
		last[0], last[1] = last[1], b[0]
	}
	rest := make([]byte, HeaderSize-2)
	if _, err := io.ReadFull(p.rw, rest); err != nil {
		return Header{}, nil, err
	}
	buf := append([]byte{Sync1, Sync2}, rest...)
	h, _ := ParseHeader(buf)
	if h.Length > MaxPayload {
		return Header{}, nil, ErrTooLong
	}
	body := make([]byte, int(h.Length)+2)
	if _, err := io.ReadFull(p.rw, body); err != nil {
		return Header{}, nil, err
	}
	buf = append(buf, body...)
	h, payload, err := Verify(buf)
	if err != nil {
		return Header{}, nil, err
	}
	return h, payload, nil
}

// EnableTagger отправляет команду тегеру платы (spll.Tagger).
// Ошибка записи не возвращается: запрос без подтверждения.
func (p *Port) EnableTagger(channel int, on bool) {
	_ = p.WriteFrame(TaggerCommand(channel, on))
}

// SetDAC отправляет слово ЦАП (spll.DAC)
func (p *Port) SetDAC(index int, value int32) {
	_ = p.WriteFrame(DACCommand(index, value))
}

// Close закрывает порт
func (p *Port) Close() error {
	if p.rw == nil {
		return nil
	}
	return p.rw.Close()
}
