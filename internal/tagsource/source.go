// Package tagsource — источники тегов фазы SoftPLL: плата по последовательному
// порту, окно регистров /dev/mem и запись из файла.
package tagsource

import (
	"context"
	"errors"
)

// ErrUnsupported — неизвестный протокол источника
var ErrUnsupported = errors.New("tagsource: unsupported protocol")

// Tag — один тег фазы: номер канала и значение DDMTD счётчика
type Tag struct {
	Channel int
	Value   uint32
}

// Source — поток тегов
type Source interface {
	// Name возвращает имя источника для логов
	Name() string
	// Protocol возвращает протокол: serial, mmio, replay
	Protocol() string
	// Run пишет теги в out до отмены ctx или ошибки; io.EOF — источник исчерпан
	Run(ctx context.Context, out chan<- Tag) error
	// Close освобождает ресурсы
	Close() error
}

// send отдаёт тег, если ctx не отменён
func send(ctx context.Context, out chan<- Tag, t Tag) error {
	select {
	case out <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
