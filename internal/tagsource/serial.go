package tagsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shiwa/timecard-mini/spll-backup/internal/frame"
	"github.com/shiwa/timecard-mini/spll-backup/internal/hw"
	"github.com/shiwa/timecard-mini/spll-backup/internal/logger"
)

// serialReadTimeout — ограничение одного чтения; по нему Run проверяет ctx
const serialReadTimeout = 200 * time.Millisecond

// Serial — плата тегирования на последовательном порту (кадры WR, см. internal/frame)
type Serial struct {
	port    *frame.Port
	tagBits uint
}

// NewSerial открывает порт платы
func NewSerial(device string, baud int, tagBits uint) (*Serial, error) {
	p, err := frame.Open(device, baud, serialReadTimeout)
	if err != nil {
		return nil, err
	}
	return &Serial{port: p, tagBits: tagBits}, nil
}

// NewSerialPort — источник поверх уже открытого порта
func NewSerialPort(p *frame.Port, tagBits uint) *Serial {
	return &Serial{port: p, tagBits: tagBits}
}

// Name возвращает имя источника
func (s *Serial) Name() string {
	return fmt.Sprintf("serial:%s", s.port.Device())
}

// Protocol возвращает протокол
func (s *Serial) Protocol() string {
	return "serial"
}

// Port — порт платы; через него же включаются тегеры
func (s *Serial) Port() *frame.Port {
	return s.port
}

// Run читает кадры тегов. Таймаут чтения считается простоем, битые кадры пропускаются.
func (s *Serial) Run(ctx context.Context, out chan<- Tag) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h, payload, err := s.port.ReadFrame()
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			continue
		case errors.Is(err, frame.ErrChecksum), errors.Is(err, frame.ErrTooLong):
			logger.Debug("%s: %v", s.Name(), err)
			continue
		case err != nil:
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		if h.Class != frame.ClassTag || h.ID != frame.IDWords {
			continue
		}
		words, err := frame.ParseTagWords(payload)
		if err != nil {
			logger.Debug("%s: %v", s.Name(), err)
			continue
		}
		for _, w := range words {
			tw := hw.DecodeTagWord(w, s.tagBits)
			if tw.Disc {
				logger.Debug("%s: tag FIFO overflow on channel %d", s.Name(), tw.Channel)
				continue
			}
			if err := send(ctx, out, Tag{Channel: tw.Channel, Value: tw.Value}); err != nil {
				return err
			}
		}
	}
}

// Close закрывает порт
func (s *Serial) Close() error {
	return s.port.Close()
}
